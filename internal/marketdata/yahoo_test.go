package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const yahooFixture = `{
  "chart": {
    "result": [{
      "timestamp": [1672531200, 1672617600, 1672704000],
      "indicators": {
        "quote": [{
          "open":   [10.0, null, 12.0],
          "high":   [11.0, 21.0, 13.0],
          "low":    [9.0,  19.0, 11.0],
          "close":  [10.5, 20.5, 12.5],
          "volume": [100,  200,  300]
        }]
      }
    }],
    "error": null
  }
}`

func newYahooForTest(t *testing.T, srv *httptest.Server, opts Options) *Yahoo {
	t.Helper()
	opts.HTTP = srv.Client()
	p, err := NewYahoo(opts)
	require.NoError(t, err)
	p.baseURL = srv.URL
	return p
}

func TestYahooParseSkipsNullIndices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "3mo", q.Get("period"))
		require.Equal(t, "1d", q.Get("interval"))
		require.Equal(t, "false", q.Get("includePrePost"))
		require.Equal(t, "div,split", q.Get("events"))
		w.Write([]byte(yahooFixture))
	}))
	defer srv.Close()

	p := newYahooForTest(t, srv, Options{Period: "3mo", Interval: "1d"})

	points, err := p.FetchDailyTimeSeries(context.Background(), "AAPL")
	require.NoError(t, err)

	// The middle index has a null open and is skipped; output is newest first.
	require.Len(t, points, 2)
	require.Equal(t, Point{Time: "2023-01-03", Open: 12, High: 13, Low: 11, Close: 12.5, Volume: 300}, points[0])
	require.Equal(t, Point{Time: "2023-01-01", Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100}, points[1])
}

func TestYahooAllNullIndices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[{"timestamp":[1672531200],"indicators":{"quote":[{"open":[1.0],"high":[1.0],"low":[1.0],"close":[null],"volume":[1]}]}}],"error":null}}`))
	}))
	defer srv.Close()

	p := newYahooForTest(t, srv, Options{})

	points, err := p.FetchDailyTimeSeries(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Empty(t, points)
}

func TestYahooEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
	}))
	defer srv.Close()

	p := newYahooForTest(t, srv, Options{})

	_, err := p.FetchDailyTimeSeries(context.Background(), "AAPL")
	require.ErrorIs(t, err, ErrUpstreamFormat)
}

func TestYahooVendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	defer srv.Close()

	p := newYahooForTest(t, srv, Options{})

	_, err := p.FetchDailyTimeSeries(context.Background(), "GONE")
	require.Error(t, err)
	require.Contains(t, err.Error(), "symbol may be delisted")
}

func TestYahooInvalidWindow(t *testing.T) {
	_, err := NewYahoo(Options{Period: "7mo"})
	require.Error(t, err)

	_, err = NewYahoo(Options{Interval: "5m"})
	require.Error(t, err)
}

func TestYahooSymbolAlias(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(yahooFixture))
	}))
	defer srv.Close()

	p := newYahooForTest(t, srv, Options{})

	_, err := p.FetchDailyTimeSeries(context.Background(), "SPX500")
	require.NoError(t, err)
	require.Equal(t, "/v8/finance/chart/%5EGSPC", path)
}

func TestYahooCredentialsAlwaysValid(t *testing.T) {
	p, err := NewYahoo(Options{})
	require.NoError(t, err)
	require.True(t, p.HasValidCredentials())
}

func TestYahooBatchPacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(yahooFixture))
	}))
	defer srv.Close()

	p := newYahooForTest(t, srv, Options{})

	var sleeps []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	results, summary := p.FetchMultipleSymbols(context.Background(), []string{"A", "B", "C"})
	require.Len(t, results, 3)
	require.Empty(t, summary.Failed)
	require.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, sleeps)
}

func TestYahooBatchPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v8/finance/chart/BAD" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(yahooFixture))
	}))
	defer srv.Close()

	p := newYahooForTest(t, srv, Options{})
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	results, summary := p.FetchMultipleSymbols(context.Background(), []string{"GOOD", "BAD"})
	require.Len(t, results, 1)
	require.Contains(t, results, "GOOD")
	require.Len(t, summary.Failed, 1)
	require.Contains(t, summary.Failed, "BAD")
}
