// Package experiment provides A/B experiment definitions, deterministic
// hash bucketing of users into variants, and persistent assignments that
// stay authoritative even when variant weights are edited later.
package experiment

import (
	"errors"
	"fmt"
	"time"

	"github.com/driftwood-collective/driftfeed/internal/ranking"
)

// Common errors for experiment operations.
var (
	ErrNoVariants = errors.New("experiment has no variants")
)

// VariantConfig is the strongly typed configuration a variant applies to
// the pipeline. Overrides merge over the default weight table rather than
// replacing it.
type VariantConfig struct {
	// Weights partially overrides the Tier-1 weight table.
	Weights *ranking.Weights `json:"weights,omitempty"`

	// DiversityWeight scales scores during the diversity pass. Zero means
	// "no adjustment" (treated as 1.0).
	DiversityWeight float64 `json:"diversity_weight,omitempty"`

	// FreshnessTilt adds an extra freshness-proportional term during the
	// diversity pass.
	FreshnessTilt float64 `json:"freshness_tilt,omitempty"`
}

// Variant is one arm of an experiment with a relative traffic weight.
type Variant struct {
	Name   string        `json:"name"`
	Weight float64       `json:"weight"`
	Config VariantConfig `json:"config"`
}

// Experiment is a named feed experiment with ordered variants.
type Experiment struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Variants  []Variant `json:"variants"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the experiment definition at creation time so malformed
// variant configs never reach the scorer.
func (e *Experiment) Validate() error {
	if len(e.Variants) == 0 {
		return ErrNoVariants
	}
	total := 0.0
	for _, v := range e.Variants {
		if v.Name == "" {
			return fmt.Errorf("variant name is required")
		}
		if v.Weight < 0 {
			return fmt.Errorf("variant %s: weight must be >= 0 (got %f)", v.Name, v.Weight)
		}
		if v.Config.Weights != nil {
			merged := ranking.Merge(ranking.DefaultWeights(), v.Config.Weights)
			if err := merged.Validate(); err != nil {
				return fmt.Errorf("variant %s: %w", v.Name, err)
			}
		}
		if v.Config.DiversityWeight < 0 {
			return fmt.Errorf("variant %s: diversity_weight must be >= 0", v.Name)
		}
		total += v.Weight
	}
	if total == 0 {
		return fmt.Errorf("variant weights must sum to > 0")
	}
	return nil
}

// Variant returns the named variant, or nil if absent.
func (e *Experiment) Variant(name string) *Variant {
	for i := range e.Variants {
		if e.Variants[i].Name == name {
			return &e.Variants[i]
		}
	}
	return nil
}

// Assignment binds one user to one variant for the lifetime of an
// experiment. Once written it takes precedence over recomputation.
type Assignment struct {
	ExperimentID string    `json:"experiment_id"`
	UserID       string    `json:"user_id"`
	Variant      string    `json:"variant"`
	Bucket       int       `json:"bucket"`
	AssignedAt   time.Time `json:"assigned_at"`
}
