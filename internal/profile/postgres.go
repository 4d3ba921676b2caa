package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/driftwood-collective/driftfeed/internal/feed"
)

// PostgresStore reads durable profiles from user_interest_profiles.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed profile store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the stored profile, or (nil, nil) when absent.
func (s *PostgresStore) Get(ctx context.Context, userID string) (*feed.InterestProfile, error) {
	const query = `
		SELECT user_id, topic_weights, type_preferences, creator_affinities,
		       interaction_count, last_active_at, computed_at
		FROM user_interest_profiles
		WHERE user_id = $1`

	var (
		p             feed.InterestProfile
		topicsRaw     []byte
		typesRaw      []byte
		affinitiesRaw []byte
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &topicsRaw, &typesRaw, &affinitiesRaw,
		&p.InteractionCount, &p.LastActiveAt, &p.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query interest profile: %w", err)
	}

	if err := json.Unmarshal(topicsRaw, &p.TopicWeights); err != nil {
		return nil, fmt.Errorf("decode topic weights: %w", err)
	}
	if err := json.Unmarshal(typesRaw, &p.TypePreferences); err != nil {
		return nil, fmt.Errorf("decode type preferences: %w", err)
	}
	if err := json.Unmarshal(affinitiesRaw, &p.CreatorAffinities); err != nil {
		return nil, fmt.Errorf("decode creator affinities: %w", err)
	}
	return &p, nil
}

// PostgresRecomputer triggers the compute_user_interest_profile database
// function, which rewrites the durable profile as a side effect.
type PostgresRecomputer struct {
	db *sql.DB
}

// NewPostgresRecomputer creates a Postgres-backed recomputer.
func NewPostgresRecomputer(db *sql.DB) *PostgresRecomputer {
	return &PostgresRecomputer{db: db}
}

// Recompute invokes the aggregation function for one user.
func (r *PostgresRecomputer) Recompute(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `SELECT compute_user_interest_profile($1)`, userID); err != nil {
		return fmt.Errorf("compute_user_interest_profile: %w", err)
	}
	return nil
}
