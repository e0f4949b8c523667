package models

// MBar is one OHLCV bucket. Time is the bucket start in unix seconds.
type MBar struct {
	Time   int64   `json:"time" yaml:"time"`
	Open   float64 `json:"open" yaml:"open"`
	High   float64 `json:"high" yaml:"high"`
	Low    float64 `json:"low" yaml:"low"`
	Close  float64 `json:"close" yaml:"close"`
	Volume float64 `json:"volume" yaml:"volume"`
}

// -----------------------------------------------------------------------------

// MPeriodParams is the window requested by the charting widget for one history call.
type MPeriodParams struct {
	From             int64 `json:"from"`
	To               int64 `json:"to"`
	CountBack        int   `json:"countBack"`
	FirstDataRequest bool  `json:"firstDataRequest"`
}

// -----------------------------------------------------------------------------

// MHistoryRequest is transient, one per GetBars call.
type MHistoryRequest struct {
	Symbol     MSymbol
	Resolution string
	Period     MPeriodParams
}

// -----------------------------------------------------------------------------

// MHistoryResult is what the widget receives from GetBars.
// NextTime is set when the window was empty but older data exists.
type MHistoryResult struct {
	Bars     []MBar `json:"bars"`
	NoData   bool   `json:"noData"`
	NextTime *int64 `json:"nextTime,omitempty"`
}

// -----------------------------------------------------------------------------

// MHistoryPageRequest is a single paginated query against a history source.
type MHistoryPageRequest struct {
	Symbol     MSymbol
	Resolution string
	Limit      int
	ToTs       int64 // 0 means "up to now"
}

// MHistoryPage mirrors the REST response {Data, TimeFrom, TimeTo}.
type MHistoryPage struct {
	Response string `json:"Response,omitempty"`
	Message  string `json:"Message,omitempty"`
	Data     []MBar `json:"Data"`
	TimeFrom int64  `json:"TimeFrom"`
	TimeTo   int64  `json:"TimeTo"`
}
