package marketdata

// Point is the normalized daily OHLCV record shared by all providers.
// Time is a calendar date in "2006-01-02" form; a fetched series holds
// unique dates sorted newest-first.
type Point struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// FetchSummary records the outcome of a multi-symbol batch. Failed maps
// each failing symbol to its error text; the batch itself never aborts.
type FetchSummary struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

func newFetchSummary() *FetchSummary {
	return &FetchSummary{Failed: make(map[string]string)}
}

func (s *FetchSummary) recordSuccess(symbol string) {
	s.Succeeded = append(s.Succeeded, symbol)
}

func (s *FetchSummary) recordFailure(symbol string, err error) {
	s.Failed[symbol] = err.Error()
}
