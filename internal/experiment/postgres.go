package experiment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore reads experiment definitions from the feed_experiments table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed experiment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ActiveExperiment returns the most recently created active experiment,
// or nil when none is running.
func (s *PostgresStore) ActiveExperiment(ctx context.Context) (*Experiment, error) {
	const query = `
		SELECT id, name, variants, active, created_at
		FROM feed_experiments
		WHERE active = TRUE
		ORDER BY created_at DESC
		LIMIT 1`

	var (
		exp         Experiment
		variantsRaw []byte
	)
	err := s.db.QueryRowContext(ctx, query).Scan(
		&exp.ID, &exp.Name, &variantsRaw, &exp.Active, &exp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active experiment: %w", err)
	}

	if err := json.Unmarshal(variantsRaw, &exp.Variants); err != nil {
		return nil, fmt.Errorf("decode experiment variants: %w", err)
	}
	return &exp, nil
}

// PostgresAssignmentStore persists assignments in feed_experiment_assignments.
type PostgresAssignmentStore struct {
	db *sql.DB
}

// NewPostgresAssignmentStore creates a Postgres-backed assignment store.
func NewPostgresAssignmentStore(db *sql.DB) *PostgresAssignmentStore {
	return &PostgresAssignmentStore{db: db}
}

// Get returns the stored assignment, or nil when none exists.
func (s *PostgresAssignmentStore) Get(ctx context.Context, experimentID, userID string) (*Assignment, error) {
	const query = `
		SELECT experiment_id, user_id, variant, bucket, assigned_at
		FROM feed_experiment_assignments
		WHERE experiment_id = $1 AND user_id = $2`

	var a Assignment
	err := s.db.QueryRowContext(ctx, query, experimentID, userID).Scan(
		&a.ExperimentID, &a.UserID, &a.Variant, &a.Bucket, &a.AssignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query assignment: %w", err)
	}
	return &a, nil
}

// Put stores an assignment. ON CONFLICT DO NOTHING makes racing duplicate
// writes of the same deterministic value benign.
func (s *PostgresAssignmentStore) Put(ctx context.Context, a *Assignment) error {
	const query = `
		INSERT INTO feed_experiment_assignments (experiment_id, user_id, variant, bucket, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (experiment_id, user_id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query,
		a.ExperimentID, a.UserID, a.Variant, a.Bucket, a.AssignedAt); err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}
