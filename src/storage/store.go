package storage

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"market-feed/src/interfaces"
	"market-feed/src/logger"
	"market-feed/src/models"
)

// -----------------------------------------------------------------------------

// NewBarStore builds and initializes the store selected by storage.db_type.
// It returns nil, nil for "none".
func NewBarStore(cfg models.MStorageConfig, log *logger.Logger) (interfaces.IBarStore, error) {
	var (
		store interfaces.IBarStore
		err   error
	)

	switch cfg.DBType {
	case "", "none":
		return nil, nil
	case "sqlite":
		store, err = NewAsyncSQLiteDB(cfg, log.Named("SQLiteDB"))
	case "postgres":
		store, err = NewPostgresDB(cfg, log.Named("PostgresDB"))
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", cfg.DBType, err)
	}
	return store, nil
}

// -----------------------------------------------------------------------------

// scanBarsDesc reads rows ordered newest first and returns them ascending.
func scanBarsDesc(rows *sql.Rows) ([]models.MBar, error) {
	var bars []models.MBar
	for rows.Next() {
		var b models.MBar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// -----------------------------------------------------------------------------

func scanSymbols(rows *sql.Rows) ([]models.MSymbol, error) {
	var symbols []models.MSymbol
	for rows.Next() {
		var (
			s           models.MSymbol
			exchange    sql.NullString
			symType     sql.NullString
			description sql.NullString
			resolutions sql.NullString
			precision   sql.NullInt64
			basePrice   sql.NullFloat64
		)
		if err := rows.Scan(&s.Ticker, &exchange, &symType, &description, &precision, &basePrice, &resolutions); err != nil {
			return nil, err
		}
		s.Exchange = exchange.String
		s.Type = symType.String
		s.Description = description.String
		s.PricePrecision = int(precision.Int64)
		s.BasePrice = basePrice.Float64
		s.SupportedResolutions = splitResolutions(resolutions.String)
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return symbols, nil
}

// -----------------------------------------------------------------------------

func joinResolutions(res []string) string {
	return strings.Join(res, ",")
}

func splitResolutions(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// -----------------------------------------------------------------------------

// retentionCutoff is the oldest bar time kept. A non-positive retention keeps everything.
func retentionCutoff(days int, now time.Time) int64 {
	if days <= 0 {
		return math.MinInt64
	}
	return now.UTC().AddDate(0, 0, -days).Unix()
}
