package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const alphaVantageFixture = `{
  "Meta Data": {"2. Symbol": "TEST"},
  "Time Series (Daily)": {
    "2023-01-03": {"1. open": "10", "2. high": "12", "3. low": "9", "4. close": "11", "5. volume": "100"},
    "2023-01-02": {"1. open": "8", "2. high": "10", "3. low": "7", "4. close": "9", "5. volume": "50"}
  }
}`

func newAlphaVantageForTest(t *testing.T, srv *httptest.Server, opts Options) *AlphaVantage {
	t.Helper()
	if opts.APIKey == "" {
		opts.APIKey = "test-key"
	}
	opts.HTTP = srv.Client()
	p, err := NewAlphaVantage(opts)
	require.NoError(t, err)
	p.baseURL = srv.URL
	return p
}

func TestAlphaVantageParseDaily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "TIME_SERIES_DAILY", r.URL.Query().Get("function"))
		require.Equal(t, "TEST", r.URL.Query().Get("symbol"))
		require.Equal(t, "compact", r.URL.Query().Get("outputsize"))
		w.Write([]byte(alphaVantageFixture))
	}))
	defer srv.Close()

	p := newAlphaVantageForTest(t, srv, Options{})

	points, err := p.FetchDailyTimeSeries(context.Background(), "TEST")
	require.NoError(t, err)
	require.Len(t, points, 2)

	// Newest first.
	require.Equal(t, Point{Time: "2023-01-03", Open: 10, High: 12, Low: 9, Close: 11, Volume: 100}, points[0])
	require.Equal(t, Point{Time: "2023-01-02", Open: 8, High: 10, Low: 7, Close: 9, Volume: 50}, points[1])
}

func TestAlphaVantageVendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Error Message": "Invalid API call."}`))
	}))
	defer srv.Close()

	p := newAlphaVantageForTest(t, srv, Options{})

	_, err := p.FetchDailyTimeSeries(context.Background(), "NOPE")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid API call.")
}

func TestAlphaVantageMissingSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Meta Data": {}}`))
	}))
	defer srv.Close()

	p := newAlphaVantageForTest(t, srv, Options{})

	_, err := p.FetchDailyTimeSeries(context.Background(), "TEST")
	require.ErrorIs(t, err, ErrUpstreamFormat)
}

func TestAlphaVantageCredentials(t *testing.T) {
	for _, key := range []string{"demo", "YOUR_API_KEY"} {
		p, err := NewAlphaVantage(Options{APIKey: key})
		require.NoError(t, err)
		require.False(t, p.HasValidCredentials())

		// Fails before any network call; baseURL points at nothing reachable.
		_, err = p.FetchDailyTimeSeries(context.Background(), "TEST")
		require.ErrorIs(t, err, ErrCredentials)
	}

	p, err := NewAlphaVantage(Options{APIKey: "real-looking-key"})
	require.NoError(t, err)
	require.True(t, p.HasValidCredentials())
}

func TestAlphaVantageStoreRequiresDir(t *testing.T) {
	_, err := NewAlphaVantage(Options{APIKey: "k", Store: true})
	require.ErrorIs(t, err, ErrStorage)
}

func TestAlphaVantageArchivesRawResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(alphaVantageFixture))
	}))
	defer srv.Close()

	dir := t.TempDir()
	p := newAlphaVantageForTest(t, srv, Options{Store: true, StorageDir: dir})

	_, err := p.FetchDailyTimeSeries(context.Background(), "TEST")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	name := entries[0].Name()
	require.True(t, strings.HasPrefix(name, "ALPHAVANTAGE_"), "unexpected archive name %q", name)
	require.Contains(t, name, "_TEST")
	require.Contains(t, name, "outputsize-compact")
	require.Equal(t, ".json", filepath.Ext(name))
}

func TestAlphaVantageBatchBackoff(t *testing.T) {
	throttled := `{
  "Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute.",
  "Time Series (Daily)": {
    "2023-01-03": {"1. open": "1", "2. high": "1", "3. low": "1", "4. close": "1", "5. volume": "1"}
  }
}`
	responses := []string{throttled, alphaVantageFixture, alphaVantageFixture}
	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(responses[call]))
		call++
	}))
	defer srv.Close()

	p := newAlphaVantageForTest(t, srv, Options{})

	var sleeps []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	results, summary := p.FetchMultipleSymbols(context.Background(), []string{"A", "B", "C"})
	require.Len(t, results, 3)
	require.Empty(t, summary.Failed)

	// First symbol never waits; 60s after the throttle notice, then the
	// polite delay once the flag has reset.
	require.Equal(t, []time.Duration{60 * time.Second, 1500 * time.Millisecond}, sleeps)
}

func TestAlphaVantageBatchPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BAD" {
			w.Write([]byte(`{"Error Message": "Invalid API call."}`))
			return
		}
		w.Write([]byte(alphaVantageFixture))
	}))
	defer srv.Close()

	p := newAlphaVantageForTest(t, srv, Options{})
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	results, summary := p.FetchMultipleSymbols(context.Background(), []string{"GOOD1", "BAD", "GOOD2"})

	require.Len(t, results, 2)
	require.Contains(t, results, "GOOD1")
	require.Contains(t, results, "GOOD2")
	require.Equal(t, []string{"GOOD1", "GOOD2"}, summary.Succeeded)
	require.Len(t, summary.Failed, 1)
	require.Contains(t, summary.Failed["BAD"], "Invalid API call.")
}

func TestAlphaVantageBatchCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(alphaVantageFixture))
	}))
	defer srv.Close()

	p := newAlphaVantageForTest(t, srv, Options{})
	p.sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }

	results, summary := p.FetchMultipleSymbols(context.Background(), []string{"A", "B", "C"})

	// A fetched before the first wait; B and C are recorded as failed.
	require.Len(t, results, 1)
	require.Len(t, summary.Failed, 2)
}

func TestIsThrottleNotice(t *testing.T) {
	require.True(t, isThrottleNotice("Our standard API call frequency is 5 calls per minute."))
	require.True(t, isThrottleNotice("Thank you for using Alpha Vantage!"))
	require.False(t, isThrottleNotice(""))
	require.False(t, isThrottleNotice("all good"))
}

func TestAlphaVantageInvalidOutputSize(t *testing.T) {
	_, err := NewAlphaVantage(Options{APIKey: "k", OutputSize: "huge"})
	require.Error(t, err)
}
