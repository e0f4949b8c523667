package interfaces

import "context"

// -----------------------------------------------------------------------------
// ITransport opens connections to the live market-data source.
// -----------------------------------------------------------------------------

type ITransport interface {

	// Dial opens one connection. It must return when ctx is done.
	Dial(ctx context.Context) (IConn, error)
}

// -----------------------------------------------------------------------------
// IConn is one open message-oriented connection.
// -----------------------------------------------------------------------------

type IConn interface {

	// ReadMessage blocks until the next frame or an error. After Close it
	// returns an error.
	ReadMessage() ([]byte, error)

	// -----------------------------------------------------------------------------

	// WriteMessage sends one frame. Safe for concurrent use.
	WriteMessage(data []byte) error

	// -----------------------------------------------------------------------------

	Close() error
}
