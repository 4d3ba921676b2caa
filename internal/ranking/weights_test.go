package ranking

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultWeights(t *testing.T) {
	w := DefaultWeights()

	if w.Following != 0.20 {
		t.Errorf("Following = %f, want 0.20", w.Following)
	}
	if w.Engagement != 0.18 {
		t.Errorf("Engagement = %f, want 0.18", w.Engagement)
	}
	if w.MediaPresence != 0.02 {
		t.Errorf("MediaPresence = %f, want 0.02", w.MediaPresence)
	}

	sum := w.Engagement + w.Virality + w.Following + w.FriendOfFriend +
		w.InteractionAffinity + w.CreatorAffinity + w.TopicOverlap +
		w.Freshness + w.TypePreference + w.MediaPresence
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("default weights sum = %f, want 1.0", sum)
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		base     *Weights
		override *Weights
		check    func(t *testing.T, got *Weights)
	}{
		{
			name:     "nil base returns defaults",
			base:     nil,
			override: &Weights{Engagement: 0.5},
			check: func(t *testing.T, got *Weights) {
				if got.Engagement != DefaultWeights().Engagement {
					t.Errorf("Engagement = %f, want default", got.Engagement)
				}
			},
		},
		{
			name:     "nil override copies base",
			base:     &Weights{Engagement: 0.3, Following: 0.7},
			override: nil,
			check: func(t *testing.T, got *Weights) {
				if got.Engagement != 0.3 || got.Following != 0.7 {
					t.Errorf("got %+v, want base copy", got)
				}
			},
		},
		{
			name:     "partial override keeps untouched fields",
			base:     DefaultWeights(),
			override: &Weights{Freshness: 0.5, TopicOverlap: 0.25},
			check: func(t *testing.T, got *Weights) {
				if got.Freshness != 0.5 {
					t.Errorf("Freshness = %f, want 0.5", got.Freshness)
				}
				if got.TopicOverlap != 0.25 {
					t.Errorf("TopicOverlap = %f, want 0.25", got.TopicOverlap)
				}
				if got.Following != DefaultWeights().Following {
					t.Errorf("Following = %f, want default", got.Following)
				}
			},
		},
		{
			name:     "zero override fields are ignored",
			base:     DefaultWeights(),
			override: &Weights{},
			check: func(t *testing.T, got *Weights) {
				if *got != *DefaultWeights() {
					t.Errorf("got %+v, want defaults", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.base, tt.override)
			tt.check(t, got)
		})
	}
}

func TestMergeDoesNotMutateBase(t *testing.T) {
	base := DefaultWeights()
	orig := *base

	Merge(base, &Weights{Engagement: 0.99})

	if *base != orig {
		t.Errorf("Merge mutated base: %+v", base)
	}
}

func TestLoadCalibration(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		w, err := LoadCalibration("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *w != *DefaultWeights() {
			t.Errorf("got %+v, want defaults", w)
		}
	})

	t.Run("missing file returns defaults with error", func(t *testing.T) {
		w, err := LoadCalibration("/nonexistent/calibration.json")
		if err == nil {
			t.Error("expected error for missing file")
		}
		if *w != *DefaultWeights() {
			t.Errorf("got %+v, want defaults", w)
		}
	})

	t.Run("partial file merges over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "calibration.json")
		content := `{"version": "1", "weights": {"freshness": 0.4}}`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write calibration file: %v", err)
		}

		w, err := LoadCalibration(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w.Freshness != 0.4 {
			t.Errorf("Freshness = %f, want 0.4", w.Freshness)
		}
		if w.Following != DefaultWeights().Following {
			t.Errorf("Following = %f, want default", w.Following)
		}
	})

	t.Run("malformed file returns defaults with error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "calibration.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
			t.Fatalf("failed to write calibration file: %v", err)
		}

		w, err := LoadCalibration(path)
		if err == nil {
			t.Error("expected error for malformed file")
		}
		if *w != *DefaultWeights() {
			t.Errorf("got %+v, want defaults", w)
		}
	})
}

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"defaults are valid", *DefaultWeights(), false},
		{"negative weight rejected", Weights{Engagement: -0.1, Following: 0.5}, true},
		{"all-zero rejected", Weights{}, true},
		{"single positive weight ok", Weights{Freshness: 1.0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
