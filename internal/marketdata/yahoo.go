package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"marketpulse/internal/httpx"
	"marketpulse/internal/logger"
	"marketpulse/internal/marketdata/archive"
	"marketpulse/internal/trace"
)

const (
	yahooName    = "yahoo"
	yahooBaseURL = "https://query1.finance.yahoo.com"

	// The chart endpoint is unauthenticated and publishes no quota
	// signal, so the batch pacing is a fixed courtesy delay.
	yahooBatchDelay = 500 * time.Millisecond
)

var yahooPeriods = map[string]bool{
	"1d": true, "5d": true, "1mo": true, "3mo": true, "6mo": true,
	"1y": true, "2y": true, "5y": true, "10y": true, "max": true,
}

var yahooIntervals = map[string]bool{
	"1d": true, "1wk": true, "1mo": true,
}

// Yahoo fetches chart data from the Yahoo Finance v8 API.
type Yahoo struct {
	period   string
	interval string
	baseURL  string
	http     httpx.Doer
	store    *archive.Archive
	sleep    sleepFunc

	// symbolMap translates common index aliases to Yahoo tickers.
	symbolMap map[string]string
}

// NewYahoo constructs the provider. Period and interval must come from
// the chart API's fixed enumerations.
func NewYahoo(opts Options) (*Yahoo, error) {
	period := opts.Period
	if period == "" {
		period = "1mo"
	}
	interval := opts.Interval
	if interval == "" {
		interval = "1d"
	}
	if !yahooPeriods[period] {
		return nil, fmt.Errorf("yahoo: invalid period %q", period)
	}
	if !yahooIntervals[interval] {
		return nil, fmt.Errorf("yahoo: invalid interval %q", interval)
	}

	p := &Yahoo{
		period:   period,
		interval: interval,
		baseURL:  yahooBaseURL,
		http:     opts.httpClient(),
		sleep:    sleepContext,
		symbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
		},
	}

	if opts.Store {
		if opts.StorageDir == "" {
			return nil, fmt.Errorf("%w: store enabled but no storage dir", ErrStorage)
		}
		st, err := archive.New(yahooName, opts.StorageDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		p.store = st
	}

	return p, nil
}

func (p *Yahoo) Name() string { return yahooName }

// HasValidCredentials always reports true; the chart API needs no auth.
func (p *Yahoo) HasValidCredentials() bool { return true }

func (p *Yahoo) yahooSymbol(symbol string) string {
	if mapped, ok := p.symbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from the Yahoo Finance chart API.
// OHLCV entries are pointers because the vendor emits nulls for holidays
// and halted sessions.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchDailyTimeSeries fetches one symbol's chart window, newest first.
// Indices with any null OHLCV field are skipped, never interpolated.
func (p *Yahoo) FetchDailyTimeSeries(ctx context.Context, symbol string) ([]Point, error) {
	ctx, span := trace.StartSpan(ctx, "yahoo-fetch")
	defer span.End()

	q := url.Values{}
	q.Set("period", p.period)
	q.Set("interval", p.interval)
	q.Set("includePrePost", "false")
	q.Set("events", "div,split")

	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", p.baseURL, url.PathEscape(p.yahooSymbol(symbol)), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo http %d", resp.StatusCode)
	}

	p.archiveResponse(ctx, symbol, body)

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFormat, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: empty chart.result", ErrUpstreamFormat)
	}

	result := chart.Chart.Result[0]
	if result.Timestamp == nil || len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: missing timestamp or quote arrays", ErrUpstreamFormat)
	}
	quote := result.Indicators.Quote[0]
	if quote.Open == nil || quote.High == nil || quote.Low == nil || quote.Close == nil || quote.Volume == nil {
		return nil, fmt.Errorf("%w: missing OHLCV arrays", ErrUpstreamFormat)
	}

	points := make([]Point, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) ||
			i >= len(quote.Close) || i >= len(quote.Volume) {
			break
		}
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil ||
			quote.Close[i] == nil || quote.Volume[i] == nil {
			continue
		}
		points = append(points, Point{
			Time:   time.Unix(ts, 0).UTC().Format("2006-01-02"),
			Open:   *quote.Open[i],
			High:   *quote.High[i],
			Low:    *quote.Low[i],
			Close:  *quote.Close[i],
			Volume: *quote.Volume[i],
		})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Time > points[j].Time })
	return points, nil
}

// FetchMultipleSymbols fetches sequentially with a fixed delay between
// symbols. The first symbol never waits.
func (p *Yahoo) FetchMultipleSymbols(ctx context.Context, symbols []string) (map[string][]Point, *FetchSummary) {
	results := make(map[string][]Point, len(symbols))
	summary := newFetchSummary()

	for i, symbol := range symbols {
		if i > 0 {
			if err := p.sleep(ctx, yahooBatchDelay); err != nil {
				for _, rest := range symbols[i:] {
					summary.recordFailure(rest, err)
				}
				return results, summary
			}
		}

		points, err := p.FetchDailyTimeSeries(ctx, symbol)
		if err != nil {
			logger.ErrorWithErr(ctx, "Symbol fetch failed", err, "provider", yahooName, "symbol", symbol)
			summary.recordFailure(symbol, err)
			continue
		}
		logger.Fetch(ctx, yahooName, symbol, len(points))
		results[symbol] = points
		summary.recordSuccess(symbol)
	}

	return results, summary
}

func (p *Yahoo) archiveResponse(ctx context.Context, symbol string, body []byte) {
	if p.store == nil {
		return
	}
	meta := map[string]string{"period": p.period, "interval": p.interval}
	if _, err := p.store.Write(symbol, body, meta); err != nil {
		logger.Warn(ctx, "Failed to archive response", "symbol", symbol, "error", err)
	}
}
