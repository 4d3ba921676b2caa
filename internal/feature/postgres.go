package feature

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresSignalStore reads precomputed signals from the post_features,
// content_embeddings, and user_interaction_affinities tables, all of which
// are materialized by external aggregation jobs.
type PostgresSignalStore struct {
	db *sql.DB
}

// NewPostgresSignalStore creates a Postgres-backed signal store.
func NewPostgresSignalStore(db *sql.DB) *PostgresSignalStore {
	return &PostgresSignalStore{db: db}
}

// PostFeatures batch-loads precomputed per-post feature rows.
func (s *PostgresSignalStore) PostFeatures(ctx context.Context, postIDs []string) (map[string]Row, error) {
	const query = `
		SELECT post_id, like_count, reply_count
		FROM post_features
		WHERE post_id = ANY($1)`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(postIDs))
	if err != nil {
		return nil, fmt.Errorf("query post features: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Row, len(postIDs))
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.PostID, &r.LikeCount, &r.ReplyCount); err != nil {
			return nil, fmt.Errorf("scan post feature row: %w", err)
		}
		out[r.PostID] = r
	}
	return out, rows.Err()
}

// ContentEmbeddings batch-loads per-post topic/keyword extractions.
func (s *PostgresSignalStore) ContentEmbeddings(ctx context.Context, postIDs []string) (map[string]Embedding, error) {
	const query = `
		SELECT post_id, topics, keywords
		FROM content_embeddings
		WHERE post_id = ANY($1)`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(postIDs))
	if err != nil {
		return nil, fmt.Errorf("query content embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Embedding, len(postIDs))
	for rows.Next() {
		var e Embedding
		if err := rows.Scan(&e.PostID, pq.Array(&e.Topics), pq.Array(&e.Keywords)); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		out[e.PostID] = e
	}
	return out, rows.Err()
}

// Affinities batch-loads the viewer's interaction affinities for the
// distinct author set.
func (s *PostgresSignalStore) Affinities(ctx context.Context, viewerID string, authorIDs []string) (map[string]float64, error) {
	const query = `
		SELECT target_user_id, affinity
		FROM user_interaction_affinities
		WHERE user_id = $1 AND target_user_id = ANY($2)`

	rows, err := s.db.QueryContext(ctx, query, viewerID, pq.Array(authorIDs))
	if err != nil {
		return nil, fmt.Errorf("query affinities: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64, len(authorIDs))
	for rows.Next() {
		var (
			authorID string
			affinity float64
		)
		if err := rows.Scan(&authorID, &affinity); err != nil {
			return nil, fmt.Errorf("scan affinity row: %w", err)
		}
		out[authorID] = affinity
	}
	return out, rows.Err()
}
