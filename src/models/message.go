package models

// Inbound message types on the live transport.
const (
	MsgSubscriptionSuccess   = "subscription_success"
	MsgUnsubscriptionSuccess = "unsubscription_success"
	MsgPriceUpdate           = "price_update"
)

// Outbound control message types.
const (
	CtrlSubscribe   = "subscribe"
	CtrlUnsubscribe = "unsubscribe"
)

// MInboundMessage is one decoded frame from the live transport.
// Optional fields are pointers so a missing value differs from zero.
type MInboundMessage struct {
	Type       string   `json:"type"`
	Symbol     string   `json:"symbol"`
	Resolution string   `json:"resolution,omitempty"`
	Timestamp  int64    `json:"timestamp"`
	Price      *float64 `json:"price,omitempty"`
	High       *float64 `json:"high,omitempty"`
	Low        *float64 `json:"low,omitempty"`
	Volume     *float64 `json:"volume,omitempty"`
}

// -----------------------------------------------------------------------------

// MControlMessage is sent upstream to add or drop a stream.
type MControlMessage struct {
	Type       string `json:"type"`
	Symbol     string `json:"symbol"`
	Resolution string `json:"resolution"`
	ID         uint64 `json:"id"`
}

// -----------------------------------------------------------------------------

// MTick is the aggregator input extracted from a price_update.
type MTick struct {
	Timestamp int64
	Price     float64
	High      *float64
	Low       *float64
	Volume    float64
}

// Tick converts a price_update into an MTick. ok is false when the price is missing.
func (m MInboundMessage) Tick() (MTick, bool) {
	if m.Price == nil {
		return MTick{}, false
	}
	t := MTick{
		Timestamp: m.Timestamp,
		Price:     *m.Price,
		High:      m.High,
		Low:       m.Low,
	}
	if m.Volume != nil {
		t.Volume = *m.Volume
	}
	return t, true
}
