package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// PostgresEventStore appends events to the feed_events table. Rows are
// write-once; there is no update or delete path.
type PostgresEventStore struct {
	db *sql.DB
}

// NewPostgresEventStore creates a Postgres-backed event store.
func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

// Append inserts the batch in one transaction.
func (s *PostgresEventStore) Append(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event append: %w", err)
	}
	defer tx.Rollback()

	const insert = `
		INSERT INTO feed_events (id, user_id, session_id, post_id, author_id, event_type,
		                         position, metadata, experiment_id, variant, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11)`

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		var metadata []byte
		if len(e.Metadata) > 0 {
			metadata, err = json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("encode event metadata: %w", err)
			}
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(), e.UserID, e.SessionID, e.PostID, e.AuthorID, e.Type,
			e.Position, metadata, e.ExperimentID, e.Variant, e.CreatedAt); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event append: %w", err)
	}
	return nil
}
