package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"loanconnect/internal/db"
)

// StateRepository persists client store snapshots in the client_state table.
// It backs the "postgres" storage driver.
type StateRepository struct {
	db *db.DB
}

// NewStateRepository creates a new state repository.
func NewStateRepository(database *db.DB) *StateRepository {
	return &StateRepository{db: database}
}

// GetItem retrieves the snapshot stored under key.
func (r *StateRepository) GetItem(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.Pool().QueryRow(ctx,
		`SELECT value::text FROM client_state WHERE key = $1`, key,
	).Scan(&value)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// SetItem upserts the snapshot stored under key.
func (r *StateRepository) SetItem(ctx context.Context, key string, value []byte) error {
	_, err := r.Upsert(ctx, key, value)
	return err
}

// Upsert writes the snapshot and returns its new revision.
func (r *StateRepository) Upsert(ctx context.Context, key string, value []byte) (int64, error) {
	query := `
		INSERT INTO client_state (key, value)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
			revision = client_state.revision + 1,
			updated_at = NOW()
		RETURNING revision`

	revision, err := db.WithTxResult(ctx, r.db, func(tx pgx.Tx) (int64, error) {
		var rev int64
		err := tx.QueryRow(ctx, query, key, string(value)).Scan(&rev)
		return rev, err
	})
	if err != nil {
		return 0, fmt.Errorf("set %s: %w", key, err)
	}
	return revision, nil
}

// RemoveItem deletes the snapshot stored under key.
func (r *StateRepository) RemoveItem(ctx context.Context, key string) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM client_state WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Ping checks the database connection.
func (r *StateRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
