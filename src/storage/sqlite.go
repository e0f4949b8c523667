package storage

import (
	"database/sql"
	"fmt"
	"time"

	"market-feed/src/logger"
	"market-feed/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	Config models.MStorageConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg models.MStorageConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("sqlite db_path is empty")
	}
	return &AsyncSQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	db, err := sql.Open("sqlite", d.Config.DBPath)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	// database/sql pools connections; sqlite serializes writers anyway.
	db.SetMaxOpenConns(1)
	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) createTables() error {
	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT NOT NULL,
			resolution TEXT NOT NULL,
			time INTEGER NOT NULL,
			open REAL,
			high REAL,
			low REAL,
			close REAL,
			volume REAL,
			PRIMARY KEY (symbol, resolution, time)
		);`,
		`CREATE TABLE IF NOT EXISTS symbols (
			full_name TEXT PRIMARY KEY,
			ticker TEXT NOT NULL,
			exchange TEXT,
			type TEXT,
			description TEXT,
			price_precision INTEGER,
			base_price REAL,
			resolutions TEXT,
			updated_at INTEGER
		);`,
	}
	for _, q := range queries {
		if _, err := d.DB.Exec(q); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveBars(symbol, resolution string, bars []models.MBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO bars (symbol, resolution, time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, resolution, time) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(symbol, resolution, b.Time, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) LoadBars(symbol, resolution string, from, to int64, limit int) ([]models.MBar, error) {
	query := `
		SELECT time, open, high, low, close, volume FROM bars
		WHERE symbol = ? AND resolution = ? AND time >= ? AND time <= ?
		ORDER BY time DESC`
	args := []interface{}{symbol, resolution, from, to}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBarsDesc(rows)
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) RegisterSymbols(symbols []models.MSymbol) error {
	if len(symbols) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO symbols (full_name, ticker, exchange, type, description, price_precision, base_price, resolutions, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (full_name) DO UPDATE SET
			ticker = excluded.ticker,
			exchange = excluded.exchange,
			type = excluded.type,
			description = excluded.description,
			price_precision = excluded.price_precision,
			base_price = excluded.base_price,
			resolutions = excluded.resolutions,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for _, s := range symbols {
		_, err := stmt.Exec(s.FullName(), s.Ticker, s.Exchange, s.Type, s.Description,
			s.PricePrecision, s.BasePrice, joinResolutions(s.SupportedResolutions), now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) LoadSymbols() ([]models.MSymbol, error) {
	rows, err := d.DB.Query(`
		SELECT ticker, exchange, type, description, price_precision, base_price, resolutions
		FROM symbols ORDER BY full_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSymbols(rows)
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) CleanupOldData() error {
	cutoff := retentionCutoff(d.Config.RetentionDays, time.Now())
	d.Logger.Info("Cleaning up bars older than %d days (time < %d)...", d.Config.RetentionDays, cutoff)

	res, err := d.DB.Exec("DELETE FROM bars WHERE time < ?", cutoff)
	if err != nil {
		d.Logger.Error("Cleanup bars error: %v", err)
		return err
	}

	n, _ := res.RowsAffected()
	d.Logger.Info("Cleanup completed, %d bars removed", n)
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
