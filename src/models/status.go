package models

// MFeedStatus is a point-in-time snapshot of the live feed.
type MFeedStatus struct {
	State    string          `json:"state"`
	Attempts int             `json:"attempts"`
	Streams  []MStreamStatus `json:"streams"`
}

// MStreamStatus describes one multiplexed upstream stream.
type MStreamStatus struct {
	Symbol      string `json:"symbol"`
	Resolution  string `json:"resolution"`
	Subscribers int    `json:"subscribers"`
}
