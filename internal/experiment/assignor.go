package experiment

import (
	"context"
	"hash/fnv"
	"log/slog"
	"time"
)

// DefaultBucketCount is the number of hash buckets users are spread over.
const DefaultBucketCount = 10000

// Store provides experiment definitions.
type Store interface {
	// ActiveExperiment returns the currently active experiment, or nil
	// when no experiment is running.
	ActiveExperiment(ctx context.Context) (*Experiment, error)
}

// AssignmentStore persists user-to-variant assignments.
type AssignmentStore interface {
	// Get returns the stored assignment, or nil when none exists.
	Get(ctx context.Context, experimentID, userID string) (*Assignment, error)
	// Put stores an assignment. Duplicate writes for the same
	// (experiment, user) pair must be tolerated: racing first-requests
	// compute the same deterministic result.
	Put(ctx context.Context, a *Assignment) error
}

// Assignor buckets users into experiment variants. Bucketing is a pure
// function of (experiment id, user id), so concurrent first-requests are
// benign; the persisted assignment is authoritative afterwards even if
// variant weights change.
type Assignor struct {
	experiments Store
	assignments AssignmentStore
	buckets     int
	logger      *slog.Logger
}

// NewAssignor creates an experiment assignor.
func NewAssignor(experiments Store, assignments AssignmentStore, logger *slog.Logger) *Assignor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assignor{
		experiments: experiments,
		assignments: assignments,
		buckets:     DefaultBucketCount,
		logger:      logger,
	}
}

// Assign resolves the user's variant for the active experiment. Returns nil
// when no experiment is active or the experiment subsystem fails; the
// pipeline proceeds with default weights in that case.
func (a *Assignor) Assign(ctx context.Context, userID string) *Assignment {
	if a == nil || a.experiments == nil {
		return nil
	}

	exp, err := a.experiments.ActiveExperiment(ctx)
	if err != nil {
		a.logger.Warn("experiment lookup failed, proceeding without experiment",
			"user_id", userID,
			"error", err)
		return nil
	}
	if exp == nil || !exp.Active || len(exp.Variants) == 0 {
		return nil
	}

	// A persisted assignment always wins over recomputation.
	if a.assignments != nil {
		stored, err := a.assignments.Get(ctx, exp.ID, userID)
		if err != nil {
			a.logger.Warn("assignment lookup failed, recomputing",
				"experiment_id", exp.ID,
				"user_id", userID,
				"error", err)
		} else if stored != nil {
			return stored
		}
	}

	bucket := Bucket(exp.ID, userID, a.buckets)
	variant := pickVariant(exp, bucket, a.buckets)

	assignment := &Assignment{
		ExperimentID: exp.ID,
		UserID:       userID,
		Variant:      variant.Name,
		Bucket:       bucket,
		AssignedAt:   time.Now().UTC(),
	}

	if a.assignments != nil {
		// Duplicate inserts from racing requests carry the same
		// deterministic value; failures only cost a recompute next time.
		if err := a.assignments.Put(ctx, assignment); err != nil {
			a.logger.Warn("failed to persist assignment",
				"experiment_id", exp.ID,
				"user_id", userID,
				"error", err)
		}
	}

	return assignment
}

// VariantConfig returns the variant config behind an assignment, or nil
// when the assignment or experiment cannot be resolved.
func (a *Assignor) VariantConfig(ctx context.Context, assignment *Assignment) *VariantConfig {
	if a == nil || assignment == nil {
		return nil
	}
	exp, err := a.experiments.ActiveExperiment(ctx)
	if err != nil || exp == nil || exp.ID != assignment.ExperimentID {
		return nil
	}
	v := exp.Variant(assignment.Variant)
	if v == nil {
		return nil
	}
	cfg := v.Config
	return &cfg
}

// Bucket hashes (experiment id, user id) into [0, buckets). FNV-1a keeps
// the function pure and order-independent of call history.
func Bucket(experimentID, userID string, buckets int) int {
	if buckets <= 0 {
		buckets = DefaultBucketCount
	}
	h := fnv.New32a()
	h.Write([]byte(experimentID))
	h.Write([]byte(":"))
	h.Write([]byte(userID))
	return int(h.Sum32() % uint32(buckets))
}

// pickVariant walks variants in declared order, accumulating each variant's
// proportional share of bucket space; the first variant whose cumulative
// share exceeds the bucket wins.
func pickVariant(exp *Experiment, bucket, buckets int) Variant {
	total := 0.0
	for _, v := range exp.Variants {
		total += v.Weight
	}
	if total <= 0 {
		return exp.Variants[0]
	}

	cumulative := 0.0
	for _, v := range exp.Variants {
		cumulative += v.Weight / total * float64(buckets)
		if float64(bucket) < cumulative {
			return v
		}
	}
	// Floating point rounding can leave the last sliver unclaimed.
	return exp.Variants[len(exp.Variants)-1]
}
