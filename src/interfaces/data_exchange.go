package interfaces

import (
	"context"

	"market-feed/src/models"
)

// -----------------------------------------------------------------------------
// IDataExchanger is the outward gateway serving the UI layer.
// -----------------------------------------------------------------------------

type IDataExchanger interface {

	// Broadcast pushes a payload to every connected client.
	Broadcast(payload interface{})

	// -----------------------------------------------------------------------------

	// Start the server
	Start() error

	// -----------------------------------------------------------------------------

	// Stop the server gracefully
	Stop() error
}

// -----------------------------------------------------------------------------
// IFeedController is what the control plane needs from the datafeed.
// -----------------------------------------------------------------------------

type IFeedController interface {
	Status() models.MFeedStatus

	// Reconnect clears an exhausted connection and dials again.
	Reconnect(ctx context.Context) error
}
