package marketdata

import "errors"

var (
	// ErrCredentials means the provider's API key is missing or a placeholder.
	ErrCredentials = errors.New("marketdata: invalid or missing credentials")
	// ErrUpstreamFormat means the vendor response lacked the expected shape.
	ErrUpstreamFormat = errors.New("marketdata: unexpected vendor response shape")
	// ErrStorage means the archive directory could not be prepared.
	ErrStorage = errors.New("marketdata: archive storage unavailable")
	// ErrUnknownProvider is returned by the factory for an unrecognized tag.
	ErrUnknownProvider = errors.New("marketdata: unknown provider")
)
