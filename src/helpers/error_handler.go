package helpers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-feed/src/logger"
)

// -----------------------------------------------------------------------------
// Sentinels
// -----------------------------------------------------------------------------

var (
	ErrSymbolNotFound      = errors.New("symbol not found")
	ErrReconnectExhausted  = errors.New("reconnect attempts exhausted")
	ErrNotConnected        = errors.New("transport not connected")
	ErrConnectTimeout      = errors.New("connect timed out")
	ErrMalformedMessage    = errors.New("malformed inbound message")
	ErrDuplicateSubscriber = errors.New("subscriber already registered")
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type FeedError struct {
	Message string
	Cause   error
}

func (e *FeedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *FeedError) Unwrap() error {
	return e.Cause
}

// Distinct types so callers can errors.As on the failure class.
type TransportError struct{ FeedError }
type ProtocolError struct{ FeedError }
type HistoryFetchError struct{ FeedError }
type SymbolNotFoundError struct{ FeedError }
type ReconnectExhaustedError struct{ FeedError }

// -----------------------------------------------------------------------------

func NewTransportError(message string, cause error) *TransportError {
	return &TransportError{FeedError{Message: message, Cause: cause}}
}

func NewProtocolError(message string, cause error) *ProtocolError {
	if cause == nil {
		cause = ErrMalformedMessage
	}
	return &ProtocolError{FeedError{Message: message, Cause: cause}}
}

func NewHistoryFetchError(message string, cause error) *HistoryFetchError {
	return &HistoryFetchError{FeedError{Message: message, Cause: cause}}
}

func NewSymbolNotFound(name string) *SymbolNotFoundError {
	return &SymbolNotFoundError{FeedError{Message: fmt.Sprintf("resolve %q", name), Cause: ErrSymbolNotFound}}
}

func NewReconnectExhausted(attempts int, cause error) *ReconnectExhaustedError {
	msg := fmt.Sprintf("gave up after %d reconnect attempts", attempts)
	if cause != nil {
		msg = fmt.Sprintf("%s (last error: %v)", msg, cause)
	}
	return &ReconnectExhaustedError{FeedError{Message: msg, Cause: ErrReconnectExhausted}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// IsPermanent reports errors that no retry can fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrSymbolNotFound)
}

// RetryWithBackoff runs fn up to maxRetries+1 times, doubling baseDelay between
// attempts. It stops early when ctx is done or the error is permanent.
func RetryWithBackoff[T any](ctx context.Context, log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}

		lastErr = err
		if attempt == maxRetries || ctx.Err() != nil || IsPermanent(err) {
			break
		}

		delay := baseDelay * (1 << attempt)
		log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, maxRetries+1, operation, err, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}

	return zero, lastErr
}

// -----------------------------------------------------------------------------

// SafeCall runs fn and converts a panic into an error so one misbehaving
// subscriber callback cannot unwind the caller.
func SafeCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panic: %v", r)
		}
	}()
	fn()
	return nil
}
