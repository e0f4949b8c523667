package models

// Gateway push message types.
const (
	PushBar          = "bar"
	PushReset        = "reset"
	PushError        = "error"
	PushStatus       = "status"
	PushSubscribed   = "subscribed"
	PushUnsubscribed = "unsubscribed"
)

// MClientCommand is what a UI client sends over the gateway websocket.
type MClientCommand struct {
	Command    string `json:"command"` // subscribe or unsubscribe
	Symbol     string `json:"symbol"`
	Resolution string `json:"resolution"`
}

// MGatewayMessage is pushed to UI clients.
type MGatewayMessage struct {
	Type       string       `json:"type"`
	Symbol     string       `json:"symbol,omitempty"`
	Resolution string       `json:"resolution,omitempty"`
	Bar        *MBar        `json:"bar,omitempty"`
	Message    string       `json:"message,omitempty"`
	Status     *MFeedStatus `json:"status,omitempty"`
}
