package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"imovel-search/models"
)

// PostgresWriter persists observed listings to PostgreSQL. Observations
// accumulate as history: a re-observed URL updates its price and timestamp
// instead of duplicating the row.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS property_listings (
			id            SERIAL PRIMARY KEY,
			source        VARCHAR(50)   NOT NULL,
			source_id     TEXT          NOT NULL DEFAULT '',
			url           TEXT          UNIQUE NOT NULL,
			title         TEXT          NOT NULL DEFAULT '',
			price         NUMERIC(14,2) NOT NULL DEFAULT 0,
			size_m2       NUMERIC(8,2)  NOT NULL DEFAULT 0,
			bedrooms      INT           NOT NULL DEFAULT 0,
			bathrooms     INT           NOT NULL DEFAULT 0,
			property_type VARCHAR(50)   NOT NULL DEFAULT '',
			city          TEXT          NOT NULL DEFAULT '',
			neighborhood  TEXT          NOT NULL DEFAULT '',
			address       TEXT          NOT NULL DEFAULT '',
			fetched_at    TIMESTAMPTZ   NOT NULL,
			created_at    TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_property_listings_price  ON property_listings(price);
		CREATE INDEX IF NOT EXISTS idx_property_listings_city   ON property_listings(city);
		CREATE INDEX IF NOT EXISTS idx_property_listings_source ON property_listings(source);
	`)
	return err
}

// Write batch-upserts every record of the result set. Synthetic records are
// the caller's responsibility to exclude; the writer stores whatever arrives.
func (pw *PostgresWriter) Write(ctx context.Context, rs *models.ResultSet) error {
	if rs == nil || len(rs.Records) == 0 {
		return nil
	}

	const batchSize = 50
	records := rs.Records
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := pw.upsertBatch(ctx, records[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (pw *PostgresWriter) upsertBatch(ctx context.Context, batch []*models.ListingRecord) error {
	const cols = 13
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*cols)

	for idx, r := range batch {
		base := idx * cols
		placeholders := make([]string, cols)
		for c := 0; c < cols; c++ {
			placeholders[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			r.Source, r.SourceID, r.URL, r.Title, r.Price, r.SizeM2,
			r.Bedrooms, r.Bathrooms, r.PropertyType, r.City,
			r.Neighborhood, r.Address, r.FetchedAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO property_listings
			(source, source_id, url, title, price, size_m2, bedrooms,
			 bathrooms, property_type, city, neighborhood, address, fetched_at)
		VALUES %s
		ON CONFLICT (url) DO UPDATE SET
			price      = EXCLUDED.price,
			title      = EXCLUDED.title,
			fetched_at = EXCLUDED.fetched_at
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		return fmt.Errorf("postgres: upsert batch: %w", err)
	}
	return nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
