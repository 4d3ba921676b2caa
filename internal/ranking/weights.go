package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Weights is the fixed named weight table for Tier-1 scoring. Every field
// multiplies the matching feature vector component; the score is their sum.
type Weights struct {
	Engagement          float64 `json:"engagement"`           // Weight for normalized like count (default: 0.18)
	Virality            float64 `json:"virality"`             // Weight for normalized reply count (default: 0.08)
	Following           float64 `json:"following"`            // Weight for the viewer-follows-author flag (default: 0.20)
	FriendOfFriend      float64 `json:"friend_of_friend"`     // Weight for second-degree authors (default: 0.08)
	InteractionAffinity float64 `json:"interaction_affinity"` // Weight for viewer<->author affinity (default: 0.10)
	CreatorAffinity     float64 `json:"creator_affinity"`     // Weight for the profile's creator affinity (default: 0.08)
	TopicOverlap        float64 `json:"topic_overlap"`        // Weight for topic/keyword overlap (default: 0.12)
	Freshness           float64 `json:"freshness"`            // Weight for time-decayed recency (default: 0.10)
	TypePreference      float64 `json:"type_preference"`      // Weight for content-type preference (default: 0.04)
	MediaPresence       float64 `json:"media_presence"`       // Weight for the has-media flag (default: 0.02)
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"` // Config version for future compatibility
	Weights Weights `json:"weights"` // Weight overrides
}

// DefaultWeights returns the default Tier-1 weight table. Social signals
// (following, affinity) carry the most weight, engagement next, and the
// media flag acts as a mild tilt rather than a driver. The defaults sum
// to 1.0 so a fully saturated vector scores 1.0.
func DefaultWeights() *Weights {
	return &Weights{
		Engagement:          0.18,
		Virality:            0.08,
		Following:           0.20,
		FriendOfFriend:      0.08,
		InteractionAffinity: 0.10,
		CreatorAffinity:     0.08,
		TopicOverlap:        0.12,
		Freshness:           0.10,
		TypePreference:      0.04,
		MediaPresence:       0.02,
	}
}

// LoadCalibration loads Tier-1 weights from a JSON calibration file.
// Partial configurations are merged over defaults for graceful degradation.
// On any error the defaults are returned alongside the error.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	merged := Merge(DefaultWeights(), &config.Weights)
	slog.Info("loaded ranking calibration", "path", filePath)

	return merged, nil
}

// Merge merges override weights over a base table. Only non-zero override
// fields are applied, so experiments and calibration files can adjust a
// subset of weights without restating the rest.
func Merge(base, override *Weights) *Weights {
	if base == nil {
		return DefaultWeights()
	}
	if override == nil {
		result := *base
		return &result
	}

	result := *base

	if override.Engagement != 0 {
		result.Engagement = override.Engagement
	}
	if override.Virality != 0 {
		result.Virality = override.Virality
	}
	if override.Following != 0 {
		result.Following = override.Following
	}
	if override.FriendOfFriend != 0 {
		result.FriendOfFriend = override.FriendOfFriend
	}
	if override.InteractionAffinity != 0 {
		result.InteractionAffinity = override.InteractionAffinity
	}
	if override.CreatorAffinity != 0 {
		result.CreatorAffinity = override.CreatorAffinity
	}
	if override.TopicOverlap != 0 {
		result.TopicOverlap = override.TopicOverlap
	}
	if override.Freshness != 0 {
		result.Freshness = override.Freshness
	}
	if override.TypePreference != 0 {
		result.TypePreference = override.TypePreference
	}
	if override.MediaPresence != 0 {
		result.MediaPresence = override.MediaPresence
	}

	return &result
}

// Validate checks that every weight is non-negative and at least one weight
// is positive. Experiment definitions run this at creation time so malformed
// overrides are rejected before they ever reach the scorer.
func (w *Weights) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"engagement", w.Engagement},
		{"virality", w.Virality},
		{"following", w.Following},
		{"friend_of_friend", w.FriendOfFriend},
		{"interaction_affinity", w.InteractionAffinity},
		{"creator_affinity", w.CreatorAffinity},
		{"topic_overlap", w.TopicOverlap},
		{"freshness", w.Freshness},
		{"type_preference", w.TypePreference},
		{"media_presence", w.MediaPresence},
	}

	sum := 0.0
	for _, f := range fields {
		if f.value < 0 {
			return fmt.Errorf("weight %s must be >= 0 (got %f)", f.name, f.value)
		}
		sum += f.value
	}
	if sum == 0 {
		return fmt.Errorf("at least one weight must be > 0")
	}
	return nil
}
