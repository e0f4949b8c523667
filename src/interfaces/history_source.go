package interfaces

import (
	"context"

	"market-feed/src/models"
)

// -----------------------------------------------------------------------------
// IHistorySource answers one paginated history query.
// -----------------------------------------------------------------------------

type IHistorySource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// FetchPage returns the newest req.Limit bars with time <= req.ToTs.
	// An empty page means nothing older is available.
	FetchPage(ctx context.Context, req models.MHistoryPageRequest) (models.MHistoryPage, error)
}
