package technical

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"marketpulse/internal/agent"
	"marketpulse/internal/marketdata"
)

// decliningSeries builds n daily points with steadily falling closes,
// newest first, the way providers return them.
func decliningSeries(n int) []marketdata.Point {
	points := make([]marketdata.Point, n)
	for i := 0; i < n; i++ {
		// points[0] is the most recent, also the lowest close.
		close := 100.0 + float64(i)
		points[i] = marketdata.Point{
			Time:   fmt.Sprintf("2023-03-%02d", n-i),
			Open:   close + 0.5,
			High:   close + 1,
			Low:    close - 1,
			Close:  close,
			Volume: 1000,
		}
	}
	return points
}

func risingSeries(n int) []marketdata.Point {
	points := make([]marketdata.Point, n)
	for i := 0; i < n; i++ {
		close := 200.0 - float64(i)
		points[i] = marketdata.Point{
			Time:   fmt.Sprintf("2023-03-%02d", n-i),
			Open:   close - 0.5,
			High:   close + 1,
			Low:    close - 1,
			Close:  close,
			Volume: 1000,
		}
	}
	return points
}

func TestAnalyzeOversoldRSI(t *testing.T) {
	a := New()

	// 20 days of falling closes drives the 14-period RSI to the floor.
	report, err := a.Analyze(context.Background(), "AAPL", decliningSeries(20), []string{"rsi"})
	require.NoError(t, err)

	require.NotNil(t, report.RSI)
	require.Less(t, *report.RSI, 30.0)
	require.Nil(t, report.MACD)

	require.Equal(t, []Signal{{Indicator: "RSI", Reason: "Oversold (RSI < 30)"}}, report.Signals.Buy)
	require.Empty(t, report.Signals.Sell)
	require.Equal(t, "buy", report.Strength)
}

func TestAnalyzeOverboughtRSI(t *testing.T) {
	a := New()

	report, err := a.Analyze(context.Background(), "AAPL", risingSeries(20), []string{"rsi"})
	require.NoError(t, err)

	require.NotNil(t, report.RSI)
	require.Greater(t, *report.RSI, 70.0)
	require.Equal(t, []Signal{{Indicator: "RSI", Reason: "Overbought (RSI > 70)"}}, report.Signals.Sell)
	require.Equal(t, "sell", report.Strength)
}

func TestAnalyzeEmptySeries(t *testing.T) {
	a := New()

	_, err := a.Analyze(context.Background(), "AAPL", nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no data points")
}

func TestAnalyzeOmitsInsufficientIndicators(t *testing.T) {
	a := New()

	// Five points: too few for RSI(14), Bollinger(20) and the longer MAs.
	report, err := a.Analyze(context.Background(), "AAPL", decliningSeries(5), nil)
	require.NoError(t, err)

	require.Nil(t, report.RSI)
	require.Nil(t, report.Bollinger)
	require.NotContains(t, report.SMA, 20)
	require.NotContains(t, report.SMA, 50)
	require.NotContains(t, report.SMA, 200)
	// MACD needs just two points so it still reports.
	require.NotNil(t, report.MACD)
}

func TestAnalyzeAllIndicatorsByDefault(t *testing.T) {
	a := New()

	report, err := a.Analyze(context.Background(), "AAPL", decliningSeries(60), nil)
	require.NoError(t, err)

	require.Contains(t, report.SMA, 9)
	require.Contains(t, report.SMA, 20)
	require.Contains(t, report.SMA, 50)
	require.NotContains(t, report.SMA, 200)
	require.Contains(t, report.EMA, 50)
	require.NotNil(t, report.RSI)
	require.NotNil(t, report.MACD)
	require.NotNil(t, report.Bollinger)
	require.InDelta(t, report.MACD.MACD-report.MACD.Signal, report.MACD.Histogram, 1e-9)
}

func TestExecuteRejectsWrongPayload(t *testing.T) {
	a := New()

	_, err := a.Execute(context.Background(), agent.Request{Symbol: "AAPL", Payload: "nope"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected technical.Input")
}

func TestExecuteWrapsAnalyze(t *testing.T) {
	a := New()

	res, err := a.Execute(context.Background(), agent.Request{
		Symbol:  "AAPL",
		Payload: Input{Points: decliningSeries(20), Indicators: []string{"rsi"}},
	})
	require.NoError(t, err)
	require.Equal(t, AgentName, res.Agent)
	require.Equal(t, "AAPL", res.Symbol)

	report, ok := res.Data.(Report)
	require.True(t, ok)
	require.Equal(t, "AAPL", report.Symbol)
}

func TestDeriveSignalsNeutral(t *testing.T) {
	rsi := 55.0
	s := deriveSignals(Report{
		RSI:  &rsi,
		MACD: &MACDValue{MACD: 1.0, Signal: 1.0, Histogram: 0},
	})

	require.Empty(t, s.Buy)
	require.Empty(t, s.Sell)
	require.Len(t, s.Hold, 2)
	require.Equal(t, "neutral", overallStrength(s))
}

func TestDeriveSignalsMACDCrossover(t *testing.T) {
	s := deriveSignals(Report{MACD: &MACDValue{MACD: 2.0, Signal: 1.0, Histogram: 1.0}})
	require.Equal(t, []Signal{{Indicator: "MACD", Reason: "MACD above signal with positive histogram"}}, s.Buy)

	s = deriveSignals(Report{MACD: &MACDValue{MACD: 1.0, Signal: 2.0, Histogram: -1.0}})
	require.Equal(t, []Signal{{Indicator: "MACD", Reason: "MACD below signal with negative histogram"}}, s.Sell)
}

func TestClosesOldestFirst(t *testing.T) {
	points := []marketdata.Point{
		{Time: "2023-01-03", Close: 3},
		{Time: "2023-01-02", Close: 2},
		{Time: "2023-01-01", Close: 1},
	}
	require.Equal(t, []float64{1, 2, 3}, closesOldestFirst(points))
}
