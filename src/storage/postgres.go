package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"market-feed/src/logger"
	"market-feed/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config models.MStorageConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg models.MStorageConfig, log *logger.Logger) (*PostgresDB, error) {
	if cfg.DBConnectionString == "" {
		return nil, fmt.Errorf("postgres db_connection_string is empty")
	}

	// One schema per binary so several deployments can share a database.
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}

	return &PostgresDB{
		Config: cfg,
		Schema: schemaName(exe),
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

// schemaName derives a safe identifier from an executable path.
func schemaName(exe string) string {
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "market_feed"
	}
	return b.String()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) table(name string) string {
	return fmt.Sprintf(`"%s"."%s"`, d.Schema, name)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	db, err := sql.Open("postgres", d.Config.DBConnectionString)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	d.DB = db

	// Create Schema
	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	queries := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol TEXT NOT NULL,
			resolution TEXT NOT NULL,
			time BIGINT NOT NULL,
			open DOUBLE PRECISION,
			high DOUBLE PRECISION,
			low DOUBLE PRECISION,
			close DOUBLE PRECISION,
			volume DOUBLE PRECISION,
			PRIMARY KEY (symbol, resolution, time)
		)`, d.table("bars")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			full_name TEXT PRIMARY KEY,
			ticker TEXT NOT NULL,
			exchange TEXT,
			type TEXT,
			description TEXT,
			price_precision INTEGER,
			base_price DOUBLE PRECISION,
			resolutions TEXT,
			updated_at TIMESTAMPTZ
		)`, d.table("symbols")),
	}
	for _, q := range queries {
		if _, err := d.DB.Exec(q); err != nil {
			return fmt.Errorf("failed to create tables in schema %s: %w", d.Schema, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveBars(symbol, resolution string, bars []models.MBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (symbol, resolution, time, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, resolution, time) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`, d.table("bars")))
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

func (d *PostgresDB) LoadBars(symbol, resolution string, from, to int64, limit int) ([]models.MBar, error) {
	query := fmt.Sprintf(`
		SELECT time, open, high, low, close, volume FROM %s
		WHERE symbol = $1 AND resolution = $2 AND time >= $3 AND time <= $4
		ORDER BY time DESC`, d.table("bars"))
	args := []interface{}{symbol, resolution, from, to}
	if limit > 0 {
		query += " LIMIT $5"
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

func (d *PostgresDB) CleanupOldData() error {
	cutoff := retentionCutoff(d.Config.RetentionDays, time.Now())
	d.Logger.Info("Cleaning up bars older than %d days (time < %d)...", d.Config.RetentionDays, cutoff)

	res, err := d.DB.Exec(fmt.Sprintf("DELETE FROM %s WHERE time < $1", d.table("bars")), cutoff)
	if err != nil {
		d.Logger.Error("Cleanup bars error: %v", err)
		return err
	}

	n, _ := res.RowsAffected()
	d.Logger.Info("Cleanup completed, %d bars removed", n)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
