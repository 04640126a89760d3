package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"regent-tracker/models"
)

// PostgresWriter mirrors the listing history into PostgreSQL so it can be
// queried alongside other data. The JSON cache stays authoritative.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 5; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS regent_listings (
			fingerprint     VARCHAR(16)  PRIMARY KEY,
			tower           INTEGER      NOT NULL DEFAULT 0,
			floor           VARCHAR(16)  NOT NULL DEFAULT 'unknown',
			unit            VARCHAR(16)  NOT NULL DEFAULT 'unknown',
			size            INTEGER      NOT NULL DEFAULT 0,
			rooms           INTEGER      NOT NULL DEFAULT 0,
			price           BIGINT       NOT NULL,
			price_per_ft    BIGINT       NOT NULL DEFAULT 0,
			source          VARCHAR(50)  NOT NULL,
			url             TEXT         NOT NULL DEFAULT '',
			description     TEXT         NOT NULL DEFAULT '',
			first_seen_at   TIMESTAMPTZ  NOT NULL,
			last_seen_at    TIMESTAMPTZ  NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_regent_listings_price      ON regent_listings(price);
		CREATE INDEX IF NOT EXISTS idx_regent_listings_tower      ON regent_listings(tower);
		CREATE INDEX IF NOT EXISTS idx_regent_listings_source     ON regent_listings(source);
		CREATE INDEX IF NOT EXISTS idx_regent_listings_first_seen ON regent_listings(first_seen_at);
	`)
	return err
}

// Write upserts every listing in batches. first_seen_at is never moved later.
func (pw *PostgresWriter) Write(ctx context.Context, listings []models.SnapshotListing) error {
	const batchSize = 50
	for i := 0; i < len(listings); i += batchSize {
		end := i + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		if err := pw.upsertBatch(ctx, listings[i:end]); err != nil {
			return fmt.Errorf("postgres: upsert batch %d: %w", i/batchSize, err)
		}
	}
	return nil
}

const upsertColumns = 13

func (pw *PostgresWriter) upsertBatch(ctx context.Context, batch []models.SnapshotListing) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*upsertColumns)

	for idx, l := range batch {
		base := idx * upsertColumns
		placeholders := make([]string, upsertColumns)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			l.Fingerprint, l.Tower, l.Floor, l.Unit, l.Size, l.Rooms, l.Price, l.PricePerArea,
			l.Source, l.URL, l.RawDescription, l.FirstSeenAt, l.LastSeenAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO regent_listings (fingerprint, tower, floor, unit, size, rooms, price,
			price_per_ft, source, url, description, first_seen_at, last_seen_at)
		VALUES %s
		ON CONFLICT (fingerprint) DO UPDATE SET
			url           = EXCLUDED.url,
			description   = EXCLUDED.description,
			first_seen_at = LEAST(regent_listings.first_seen_at, EXCLUDED.first_seen_at),
			last_seen_at  = GREATEST(regent_listings.last_seen_at, EXCLUDED.last_seen_at)
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.ExecContext(ctx, query, valueArgs...)
	return err
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
