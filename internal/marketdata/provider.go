package marketdata

import (
	"context"
	"time"

	"marketpulse/internal/httpx"
)

// Provider is the capability contract every market data source implements.
// Instances are constructed once per configuration and reused across
// fetches; the only mutable state is a throttle flag scoped to a single
// FetchMultipleSymbols call.
type Provider interface {
	Name() string

	// HasValidCredentials reports whether the provider can authenticate
	// against its vendor. Unauthenticated vendors always return true.
	HasValidCredentials() bool

	// FetchDailyTimeSeries fetches one symbol's daily series, newest
	// first. It fails with ErrCredentials, ErrUpstreamFormat, or the
	// underlying transport error.
	FetchDailyTimeSeries(ctx context.Context, symbol string) ([]Point, error)

	// FetchMultipleSymbols fetches each symbol sequentially, never
	// concurrently, pausing between symbols per the provider's rate
	// policy. Individual failures are recorded in the summary and do
	// not abort the batch.
	FetchMultipleSymbols(ctx context.Context, symbols []string) (map[string][]Point, *FetchSummary)
}

// Options configures a provider instance.
type Options struct {
	// Store enables archival of raw vendor responses. StorageDir must be
	// set and creatable when Store is true; construction fails otherwise.
	Store      bool
	StorageDir string

	// APIKey overrides the vendor's environment variable, where one applies.
	APIKey string

	// OutputSize selects "compact" (~100 points) or "full" history.
	// Alpha Vantage only; defaults to "compact".
	OutputSize string

	// Period and Interval select the chart window. Yahoo Finance only;
	// default to "1mo" and "1d".
	Period   string
	Interval string

	// HTTP substitutes the transport. Defaults to a shared client with a
	// 30 second timeout.
	HTTP httpx.Doer
}

func (o Options) httpClient() httpx.Doer {
	if o.HTTP != nil {
		return o.HTTP
	}
	return httpx.New(30 * time.Second)
}

// sleepFunc waits for d or until ctx is done. Providers hold one so
// tests can observe batch pacing without real waits.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
