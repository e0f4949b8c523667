package interfaces

import "market-feed/src/models"

// -----------------------------------------------------------------------------
// IBarStore defines the contract for bar persistence.
// -----------------------------------------------------------------------------

type IBarStore interface {

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveBars upserts bars for one (symbol, resolution) stream.
	SaveBars(symbol, resolution string, bars []models.MBar) error

	// -----------------------------------------------------------------------------

	// LoadBars returns stored bars with from <= time <= to, ascending, newest
	// limit bars when limit > 0.
	LoadBars(symbol, resolution string, from, to int64, limit int) ([]models.MBar, error)

	// -----------------------------------------------------------------------------

	// RegisterSymbols upserts the symbol catalogue.
	RegisterSymbols(symbols []models.MSymbol) error

	// -----------------------------------------------------------------------------

	// LoadSymbols returns every catalogued symbol ordered by full name.
	LoadSymbols() ([]models.MSymbol, error)

	// -----------------------------------------------------------------------------

	// CleanupOldData removes data older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
