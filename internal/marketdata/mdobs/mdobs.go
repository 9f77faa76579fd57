// Package mdobs wraps a market data provider with logging and tracing.
package mdobs

import (
	"context"

	"marketpulse/internal/logger"
	"marketpulse/internal/marketdata"
	"marketpulse/internal/trace"
)

// observableProvider wraps a Provider with observability (logging & tracing)
type observableProvider struct {
	provider marketdata.Provider
}

// Compile-time interface check
var _ marketdata.Provider = (*observableProvider)(nil)

// Wrap wraps a provider with observability middleware
func Wrap(provider marketdata.Provider) marketdata.Provider {
	return &observableProvider{provider: provider}
}

func (op *observableProvider) Name() string { return op.provider.Name() }

func (op *observableProvider) HasValidCredentials() bool {
	return op.provider.HasValidCredentials()
}

// FetchDailyTimeSeries fetches one symbol with observability
func (op *observableProvider) FetchDailyTimeSeries(ctx context.Context, symbol string) ([]marketdata.Point, error) {
	ctx, span := trace.StartSpan(ctx, "marketdata.FetchDailyTimeSeries")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching daily time series",
		"provider", op.provider.Name(),
		"symbol", symbol,
	)

	points, err := op.provider.FetchDailyTimeSeries(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch daily time series", err,
			"provider", op.provider.Name(),
			"symbol", symbol,
		)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Daily time series fetched",
		"provider", op.provider.Name(),
		"symbol", symbol,
		"points", len(points),
	)

	return points, nil
}

// FetchMultipleSymbols fetches a batch with observability
func (op *observableProvider) FetchMultipleSymbols(ctx context.Context, symbols []string) (map[string][]marketdata.Point, *marketdata.FetchSummary) {
	ctx, span := trace.StartSpan(ctx, "marketdata.FetchMultipleSymbols")
	defer span.End()

	results, summary := op.provider.FetchMultipleSymbols(ctx, symbols)

	logger.InfoSkip(ctx, 1, "Batch fetch completed",
		"provider", op.provider.Name(),
		"requested", len(symbols),
		"succeeded", len(summary.Succeeded),
		"failed", len(summary.Failed),
	)

	return results, summary
}
