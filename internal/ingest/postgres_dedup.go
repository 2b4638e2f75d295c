package ingest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDeduper is a PostgreSQL implementation of Deduper, for deployments
// that run without Redis.
type PostgresDeduper struct {
	db *pgxpool.Pool
}

// NewPostgresDeduper creates a new PostgreSQL-backed deduper.
func NewPostgresDeduper(db *pgxpool.Pool) *PostgresDeduper {
	return &PostgresDeduper{db: db}
}

// CheckAndSet implements Deduper.CheckAndSet using INSERT ... ON CONFLICT to
// atomically check and set the key.
func (d *PostgresDeduper) CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	expiresAt := time.Now().Add(ttl)

	// The INSERT succeeds for a new key; an existing key is only replaced
	// when its previous expiration has passed.
	query := `
		INSERT INTO ticket_event_keys (key, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET expires_at = EXCLUDED.expires_at, created_at = NOW()
		WHERE ticket_event_keys.expires_at < NOW()
		RETURNING key
	`

	var returnedKey string
	err := d.db.QueryRow(ctx, query, key, expiresAt).Scan(&returnedKey)
	if err != nil {
		// No rows returned means the key exists and has not expired.
		if err.Error() == "no rows in result set" {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// Delete implements Deduper.Delete for PostgreSQL storage.
func (d *PostgresDeduper) Delete(ctx context.Context, key string) error {
	_, err := d.db.Exec(ctx, "DELETE FROM ticket_event_keys WHERE key = $1", key)
	return err
}

// Cleanup removes all expired keys from the database. It is called
// periodically by the cleanup job.
func (d *PostgresDeduper) Cleanup(ctx context.Context) (int64, error) {
	result, err := d.db.Exec(ctx, "DELETE FROM ticket_event_keys WHERE expires_at < NOW()")
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
