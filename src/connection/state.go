package connection

import (
	"time"

	"market-feed/src/models"
)

// State of one Manager. Transitions are the only way it changes.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	}
	return "unknown"
}

// -----------------------------------------------------------------------------

// EventKind classifies lifecycle events.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventFatal
)

// Event is emitted on every lifecycle transition subscribers care about.
// Reconnect is true on a Connected event that follows an earlier session.
type Event struct {
	Kind      EventKind
	Reconnect bool
	Err       error
	At        time.Time
}

// -----------------------------------------------------------------------------

// Options is the retry policy of a Manager.
type Options struct {
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	BackoffFactor        float64
	ConnectTimeout       time.Duration
}

// OptionsFromConfig converts the feed section of the config.
func OptionsFromConfig(cfg models.MFeedConfig) Options {
	return Options{
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectDelay:       time.Duration(cfg.ReconnectDelayMs) * time.Millisecond,
		MaxReconnectDelay:    time.Duration(cfg.MaxReconnectDelayMs) * time.Millisecond,
		BackoffFactor:        cfg.BackoffFactor,
		ConnectTimeout:       time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond,
	}
}

// Backoff returns the wait before reconnect attempt n (1-based).
func (o Options) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	factor := o.BackoffFactor
	if factor < 1 {
		factor = 1
	}

	wait := o.ReconnectDelay
	for i := 1; i < n; i++ {
		wait = time.Duration(float64(wait) * factor)
		if o.MaxReconnectDelay > 0 && wait >= o.MaxReconnectDelay {
			return o.MaxReconnectDelay
		}
	}
	if o.MaxReconnectDelay > 0 && wait > o.MaxReconnectDelay {
		return o.MaxReconnectDelay
	}
	return wait
}
