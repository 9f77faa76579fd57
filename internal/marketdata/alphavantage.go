package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"marketpulse/internal/httpx"
	"marketpulse/internal/logger"
	"marketpulse/internal/marketdata/archive"
	"marketpulse/internal/trace"
)

const (
	alphaVantageName    = "alphavantage"
	alphaVantageBaseURL = "https://www.alphavantage.co/query"

	// Pacing between symbols in a batch. The long delay applies after a
	// response carrying a throttle notice.
	alphaVantageThrottleDelay = 60 * time.Second
	alphaVantagePoliteDelay   = 1500 * time.Millisecond
)

// Keys the vendor hands out in examples; treated as absent.
var alphaVantagePlaceholderKeys = map[string]bool{
	"":             true,
	"demo":         true,
	"your_api_key": true,
}

// AlphaVantage fetches TIME_SERIES_DAILY from the Alpha Vantage REST API.
type AlphaVantage struct {
	apiKey     string
	outputSize string
	baseURL    string
	http       httpx.Doer
	store      *archive.Archive
	sleep      sleepFunc
}

// NewAlphaVantage constructs the provider. The API key comes from opts
// or ALPHAVANTAGE_API_KEY. Archival setup failures are fatal here, before
// any network call.
func NewAlphaVantage(opts Options) (*AlphaVantage, error) {
	outputSize := opts.OutputSize
	if outputSize == "" {
		outputSize = "compact"
	}
	if outputSize != "compact" && outputSize != "full" {
		return nil, fmt.Errorf("alphavantage: output size must be 'compact' or 'full', got %q", outputSize)
	}

	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ALPHAVANTAGE_API_KEY")
	}

	p := &AlphaVantage{
		apiKey:     apiKey,
		outputSize: outputSize,
		baseURL:    alphaVantageBaseURL,
		http:       opts.httpClient(),
		sleep:      sleepContext,
	}

	if opts.Store {
		if opts.StorageDir == "" {
			return nil, fmt.Errorf("%w: store enabled but no storage dir", ErrStorage)
		}
		st, err := archive.New(alphaVantageName, opts.StorageDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		p.store = st
	}

	return p, nil
}

func (p *AlphaVantage) Name() string { return alphaVantageName }

// HasValidCredentials reports whether a usable API key is configured.
func (p *AlphaVantage) HasValidCredentials() bool {
	return !alphaVantagePlaceholderKeys[strings.ToLower(p.apiKey)]
}

// FetchDailyTimeSeries fetches one symbol's daily series, newest first.
func (p *AlphaVantage) FetchDailyTimeSeries(ctx context.Context, symbol string) ([]Point, error) {
	points, _, err := p.fetch(ctx, symbol)
	return points, err
}

// fetch additionally reports whether the response carried a throttle
// notice, so the batch loop can size its next delay.
func (p *AlphaVantage) fetch(ctx context.Context, symbol string) ([]Point, bool, error) {
	ctx, span := trace.StartSpan(ctx, "alphavantage-fetch")
	defer span.End()

	if !p.HasValidCredentials() {
		return nil, false, fmt.Errorf("%w: set ALPHAVANTAGE_API_KEY", ErrCredentials)
	}

	q := url.Values{}
	q.Set("function", "TIME_SERIES_DAILY")
	q.Set("symbol", symbol)
	q.Set("outputsize", p.outputSize)
	q.Set("apikey", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}
	if resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("alphavantage http %d", resp.StatusCode)
	}

	p.archiveResponse(ctx, symbol, body)

	if msg := gjson.GetBytes(body, "Error Message"); msg.Exists() {
		return nil, false, fmt.Errorf("alphavantage error: %s", msg.String())
	}

	throttled := isThrottleNotice(gjson.GetBytes(body, "Note").String()) ||
		isThrottleNotice(gjson.GetBytes(body, "Information").String())
	if throttled {
		logger.Warn(ctx, "Alpha Vantage throttle notice received", "symbol", symbol)
	}

	series := gjson.GetBytes(body, "Time Series (Daily)")
	if !series.Exists() {
		return nil, throttled, fmt.Errorf("%w: missing 'Time Series (Daily)'", ErrUpstreamFormat)
	}

	points, err := parseDailySeries(series)
	if err != nil {
		return nil, throttled, err
	}
	return points, throttled, nil
}

// FetchMultipleSymbols fetches sequentially, waiting 60s after a
// throttled response and 1.5s otherwise. The first symbol never waits.
func (p *AlphaVantage) FetchMultipleSymbols(ctx context.Context, symbols []string) (map[string][]Point, *FetchSummary) {
	results := make(map[string][]Point, len(symbols))
	summary := newFetchSummary()

	throttled := false
	for i, symbol := range symbols {
		if i > 0 {
			delay := alphaVantagePoliteDelay
			if throttled {
				delay = alphaVantageThrottleDelay
				logger.Warn(ctx, "Backing off after throttle notice", "delay", delay.String())
			}
			throttled = false
			if err := p.sleep(ctx, delay); err != nil {
				for _, rest := range symbols[i:] {
					summary.recordFailure(rest, err)
				}
				return results, summary
			}
		}

		points, thr, err := p.fetch(ctx, symbol)
		throttled = thr
		if err != nil {
			logger.ErrorWithErr(ctx, "Symbol fetch failed", err, "provider", alphaVantageName, "symbol", symbol)
			summary.recordFailure(symbol, err)
			continue
		}
		logger.Fetch(ctx, alphaVantageName, symbol, len(points))
		results[symbol] = points
		summary.recordSuccess(symbol)
	}

	return results, summary
}

func (p *AlphaVantage) archiveResponse(ctx context.Context, symbol string, body []byte) {
	if p.store == nil {
		return
	}
	// Archival never fails the fetch.
	if _, err := p.store.Write(symbol, body, map[string]string{"outputsize": p.outputSize}); err != nil {
		logger.Warn(ctx, "Failed to archive response", "symbol", symbol, "error", err)
	}
}

// isThrottleNotice matches the vendor's throttle prose. Alpha Vantage
// signals rate limiting in free text, not a status code, so this is
// substring matching on wording the vendor may change.
func isThrottleNotice(notice string) bool {
	if notice == "" {
		return false
	}
	return strings.Contains(notice, "call frequency") ||
		strings.Contains(notice, "Thank you for using Alpha Vantage")
}

// parseDailySeries converts the vendor's date-keyed object into points
// sorted descending by date.
func parseDailySeries(series gjson.Result) ([]Point, error) {
	entries := series.Map()
	points := make([]Point, 0, len(entries))

	for date, fields := range entries {
		values := fields.Map()

		open, err := parsePrice(values, "1. open", date)
		if err != nil {
			return nil, err
		}
		high, err := parsePrice(values, "2. high", date)
		if err != nil {
			return nil, err
		}
		low, err := parsePrice(values, "3. low", date)
		if err != nil {
			return nil, err
		}
		closePrice, err := parsePrice(values, "4. close", date)
		if err != nil {
			return nil, err
		}

		volRaw, ok := values["5. volume"]
		if !ok {
			return nil, fmt.Errorf("%w: entry %s missing '5. volume'", ErrUpstreamFormat, date)
		}
		volume, err := strconv.ParseInt(volRaw.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %s volume %q: %v", ErrUpstreamFormat, date, volRaw.String(), err)
		}

		points = append(points, Point{
			Time:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}

	// ISO dates sort lexicographically.
	sort.Slice(points, func(i, j int) bool { return points[i].Time > points[j].Time })
	return points, nil
}

func parsePrice(values map[string]gjson.Result, key, date string) (float64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("%w: entry %s missing %q", ErrUpstreamFormat, date, key)
	}
	v, err := strconv.ParseFloat(raw.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: entry %s field %q: %v", ErrUpstreamFormat, date, key, err)
	}
	return v, nil
}
