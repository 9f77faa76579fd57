package marketdata

import "fmt"

// New constructs a fresh provider for the given tag. Each call returns a
// new instance; no state is shared between calls.
func New(kind string, opts Options) (Provider, error) {
	switch kind {
	case "alphavantage":
		return NewAlphaVantage(opts)
	case "yahoo":
		return NewYahoo(opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, kind)
	}
}
