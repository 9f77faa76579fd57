// Package technical computes indicator values and buy/sell/hold signals
// over daily OHLCV series. Indicator math is delegated to
// github.com/cinar/indicator; this package only orchestrates it and
// applies the signal rules.
package technical

import (
	"context"
	"fmt"

	"github.com/cinar/indicator"

	"marketpulse/internal/agent"
	"marketpulse/internal/logger"
	"marketpulse/internal/marketdata"
	"marketpulse/internal/trace"
)

const AgentName = "technical"

// Moving average windows computed for sma and ema.
var maPeriods = []int{9, 20, 50, 200}

const (
	rsiPeriod       = 14
	bollingerPeriod = 20
)

// Input is the payload Execute expects.
type Input struct {
	// Points as providers return them, newest first.
	Points []marketdata.Point
	// Indicators is a subset of sma, ema, rsi, macd, bollinger.
	// Empty means all.
	Indicators []string
}

// Signal is one indicator verdict.
type Signal struct {
	Indicator string `json:"indicator"`
	Reason    string `json:"reason"`
}

// Signals buckets verdicts by direction.
type Signals struct {
	Buy  []Signal `json:"buy"`
	Sell []Signal `json:"sell"`
	Hold []Signal `json:"hold"`
}

// MACDValue is the latest MACD state.
type MACDValue struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BollingerValue is the latest band state.
type BollingerValue struct {
	Middle float64 `json:"middle"`
	Upper  float64 `json:"upper"`
	Lower  float64 `json:"lower"`
}

// Report is the analysis output for one symbol.
type Report struct {
	Symbol    string          `json:"symbol"`
	SMA       map[int]float64 `json:"sma,omitempty"`
	EMA       map[int]float64 `json:"ema,omitempty"`
	RSI       *float64        `json:"rsi,omitempty"`
	MACD      *MACDValue      `json:"macd,omitempty"`
	Bollinger *BollingerValue `json:"bollinger,omitempty"`
	Signals   Signals         `json:"signals"`
	Strength  string          `json:"strength"`
}

// Agent orchestrates the indicator library over fetched series.
type Agent struct{}

var _ agent.Agent = (*Agent)(nil)

func New() *Agent { return &Agent{} }

func (a *Agent) Name() string { return AgentName }

func (a *Agent) Init(ctx context.Context) error { return nil }

func (a *Agent) Cleanup(ctx context.Context) error { return nil }

// Execute runs Analyze on an Input payload.
func (a *Agent) Execute(ctx context.Context, req agent.Request) (agent.Result, error) {
	in, ok := req.Payload.(Input)
	if !ok {
		return agent.Result{}, fmt.Errorf("technical: expected technical.Input payload, got %T", req.Payload)
	}
	report, err := a.Analyze(ctx, req.Symbol, in.Points, in.Indicators)
	if err != nil {
		return agent.Result{}, err
	}
	return agent.Result{Agent: AgentName, Symbol: req.Symbol, Data: report}, nil
}

// Analyze computes the requested indicators and their signals. An
// indicator with insufficient data is omitted with a warning rather than
// failing the analysis.
func (a *Agent) Analyze(ctx context.Context, symbol string, points []marketdata.Point, indicators []string) (Report, error) {
	ctx, span := trace.StartSpan(ctx, "technical-analyze")
	defer span.End()

	if len(points) == 0 {
		return Report{}, fmt.Errorf("technical: no data points for %s", symbol)
	}

	requested := indicatorSet(indicators)
	closes := closesOldestFirst(points)

	report := Report{Symbol: symbol}

	if requested["sma"] {
		report.SMA = movingAverages(ctx, symbol, "sma", closes, indicator.Sma)
	}
	if requested["ema"] {
		report.EMA = movingAverages(ctx, symbol, "ema", closes, indicator.Ema)
	}
	if requested["rsi"] {
		if len(closes) > rsiPeriod {
			_, rsi := indicator.Rsi(closes)
			v := rsi[len(rsi)-1]
			report.RSI = &v
		} else {
			logger.Warn(ctx, "Not enough data for RSI", "symbol", symbol, "points", len(closes))
		}
	}
	if requested["macd"] {
		if len(closes) >= 2 {
			macd, signal := indicator.Macd(closes)
			last := len(macd) - 1
			report.MACD = &MACDValue{
				MACD:      macd[last],
				Signal:    signal[last],
				Histogram: macd[last] - signal[last],
			}
		} else {
			logger.Warn(ctx, "Not enough data for MACD", "symbol", symbol, "points", len(closes))
		}
	}
	if requested["bollinger"] {
		if len(closes) >= bollingerPeriod {
			middle, upper, lower := indicator.BollingerBands(closes)
			last := len(middle) - 1
			report.Bollinger = &BollingerValue{
				Middle: middle[last],
				Upper:  upper[last],
				Lower:  lower[last],
			}
		} else {
			logger.Warn(ctx, "Not enough data for Bollinger bands", "symbol", symbol, "points", len(closes))
		}
	}

	report.Signals = deriveSignals(report)
	report.Strength = overallStrength(report.Signals)

	for _, s := range report.Signals.Buy {
		logger.Signal(ctx, symbol, s.Indicator, "buy", s.Reason)
	}
	for _, s := range report.Signals.Sell {
		logger.Signal(ctx, symbol, s.Indicator, "sell", s.Reason)
	}

	return report, nil
}

func indicatorSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	if len(names) == 0 {
		return map[string]bool{"sma": true, "ema": true, "rsi": true, "macd": true, "bollinger": true}
	}
	for _, n := range names {
		set[n] = true
	}
	return set
}

func closesOldestFirst(points []marketdata.Point) []float64 {
	closes := make([]float64, len(points))
	for i, p := range points {
		closes[len(points)-1-i] = p.Close
	}
	return closes
}

func movingAverages(ctx context.Context, symbol, kind string, closes []float64, fn func(int, []float64) []float64) map[int]float64 {
	out := make(map[int]float64)
	for _, period := range maPeriods {
		if len(closes) < period {
			logger.Warn(ctx, "Not enough data for moving average",
				"symbol", symbol, "indicator", kind, "period", period, "points", len(closes))
			continue
		}
		series := fn(period, closes)
		out[period] = series[len(series)-1]
	}
	return out
}

// deriveSignals applies the rule layer over the latest indicator values.
func deriveSignals(r Report) Signals {
	var s Signals

	if r.RSI != nil {
		switch {
		case *r.RSI < 30:
			s.Buy = append(s.Buy, Signal{Indicator: "RSI", Reason: "Oversold (RSI < 30)"})
		case *r.RSI > 70:
			s.Sell = append(s.Sell, Signal{Indicator: "RSI", Reason: "Overbought (RSI > 70)"})
		default:
			s.Hold = append(s.Hold, Signal{Indicator: "RSI", Reason: "RSI in neutral range"})
		}
	}

	if r.MACD != nil {
		switch {
		case r.MACD.MACD > r.MACD.Signal && r.MACD.Histogram > 0:
			s.Buy = append(s.Buy, Signal{Indicator: "MACD", Reason: "MACD above signal with positive histogram"})
		case r.MACD.MACD < r.MACD.Signal && r.MACD.Histogram < 0:
			s.Sell = append(s.Sell, Signal{Indicator: "MACD", Reason: "MACD below signal with negative histogram"})
		default:
			s.Hold = append(s.Hold, Signal{Indicator: "MACD", Reason: "MACD and signal converging"})
		}
	}

	return s
}

func overallStrength(s Signals) string {
	buys, sells := len(s.Buy), len(s.Sell)
	switch {
	case buys > sells && buys > 2:
		return "strong buy"
	case buys > sells:
		return "buy"
	case sells > buys && sells > 2:
		return "strong sell"
	case sells > buys:
		return "sell"
	default:
		return "neutral"
	}
}
