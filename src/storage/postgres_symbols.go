package storage

import (
	"fmt"
	"time"

	"market-feed/src/models"
)

// Symbol catalogue for Postgres. Rows are keyed by EXCHANGE:TICKER.

// -----------------------------------------------------------------------------

func (d *PostgresDB) RegisterSymbols(symbols []models.MSymbol) error {
	if len(symbols) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (full_name, ticker, exchange, type, description, price_precision, base_price, resolutions, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (full_name) DO UPDATE SET
			ticker = EXCLUDED.ticker,
			exchange = EXCLUDED.exchange,
			type = EXCLUDED.type,
			description = EXCLUDED.description,
			price_precision = EXCLUDED.price_precision,
			base_price = EXCLUDED.base_price,
			resolutions = EXCLUDED.resolutions,
			updated_at = EXCLUDED.updated_at
	`, d.table("symbols"))

	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
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

func (d *PostgresDB) LoadSymbols() ([]models.MSymbol, error) {
	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT ticker, exchange, type, description, price_precision, base_price, resolutions
		FROM %s ORDER BY full_name`, d.table("symbols")))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSymbols(rows)
}
