package feedcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists cache entries in the feed_cache table using
// parallel post_ids/scores array columns.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed cache store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the user's entry, or (nil, nil) when absent.
func (s *PostgresStore) Get(ctx context.Context, userID string) (*Entry, error) {
	const query = `
		SELECT user_id, post_ids, scores, experiment_id, variant,
		       computed_at, expires_at
		FROM feed_cache
		WHERE user_id = $1`

	var (
		e            Entry
		experimentID sql.NullString
		variant      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&e.UserID, pq.Array(&e.PostIDs), pq.Array(&e.Scores),
		&experimentID, &variant, &e.ComputedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query feed cache: %w", err)
	}
	e.ExperimentID = experimentID.String
	e.Variant = variant.String
	return &e, nil
}

// Put deletes any existing entry for the user and inserts the new one in a
// single transaction.
func (s *PostgresStore) Put(ctx context.Context, entry Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin feed cache write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM feed_cache WHERE user_id = $1`, entry.UserID); err != nil {
		return fmt.Errorf("delete feed cache entry: %w", err)
	}

	const insert = `
		INSERT INTO feed_cache (user_id, post_ids, scores, experiment_id, variant, computed_at, expires_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)`
	if _, err := tx.ExecContext(ctx, insert,
		entry.UserID, pq.Array(entry.PostIDs), pq.Array(entry.Scores),
		entry.ExperimentID, entry.Variant, entry.ComputedAt, entry.ExpiresAt); err != nil {
		return fmt.Errorf("insert feed cache entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit feed cache write: %w", err)
	}
	return nil
}

// Delete removes the user's entry.
func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM feed_cache WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete feed cache entry: %w", err)
	}
	return nil
}
