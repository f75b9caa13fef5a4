// Package config loads the engine's tuning parameters. All fields are
// pointers so a partial JSON file overrides only what it names; everything
// else keeps its default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/banshee-data/smn.report/internal/cnv"
)

// Tuning is the configuration surface consumed by the calling engine. The
// CLI layer supplies it; the core packages receive resolved option structs.
type Tuning struct {
	// Normalization
	MinReferenceSamples *int     `json:"min_reference_samples,omitempty"`
	MinCoveredFraction  *float64 `json:"min_covered_fraction,omitempty"`

	// Training
	SearchMin          *float64 `json:"search_min_z,omitempty"`
	SearchMax          *float64 `json:"search_max_z,omitempty"`
	SearchStep         *float64 `json:"search_step_z,omitempty"`
	MinTrainingSamples *int     `json:"min_training_samples,omitempty"`
	MinNewLabels       *int     `json:"min_new_labels,omitempty"`
	StalenessWindow    *string  `json:"staleness_window,omitempty"` // duration string like "720h"
	LeaseTTL           *string  `json:"training_lease_ttl,omitempty"`

	// Calling
	FallbackConfidencePenalty *float64 `json:"fallback_confidence_penalty,omitempty"`
	ConfidenceScale           *float64 `json:"confidence_scale,omitempty"`

	// Interpretation
	EvidenceTimeout *string `json:"evidence_timeout,omitempty"`

	// Target panel (optional override of the SMN defaults)
	Panel *cnv.Panel `json:"panel,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// DefaultTuning returns the canonical defaults the thresholds were validated
// with.
func DefaultTuning() *Tuning {
	return &Tuning{
		MinReferenceSamples:       ptrInt(3),
		MinCoveredFraction:        ptrFloat64(0.8),
		SearchMin:                 ptrFloat64(-4.0),
		SearchMax:                 ptrFloat64(4.0),
		SearchStep:                ptrFloat64(0.1),
		MinTrainingSamples:        ptrInt(10),
		MinNewLabels:              ptrInt(5),
		StalenessWindow:           ptrString("720h"),
		LeaseTTL:                  ptrString("15m"),
		FallbackConfidencePenalty: ptrFloat64(0.75),
		ConfidenceScale:           ptrFloat64(2.0),
		EvidenceTimeout:           ptrString("2s"),
	}
}

// LoadTuning reads a tuning file and merges it over the defaults. An empty
// path returns the defaults unchanged.
func LoadTuning(path string) (*Tuning, error) {
	base := DefaultTuning()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tuning file %s: %w", path, err)
	}
	var overlay Tuning
	if err := json.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	base.Merge(&overlay)
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("tuning file %s: %w", path, err)
	}
	return base, nil
}

// Merge overlays non-nil fields of other onto t.
func (t *Tuning) Merge(other *Tuning) {
	if other == nil {
		return
	}
	if other.MinReferenceSamples != nil {
		t.MinReferenceSamples = other.MinReferenceSamples
	}
	if other.MinCoveredFraction != nil {
		t.MinCoveredFraction = other.MinCoveredFraction
	}
	if other.SearchMin != nil {
		t.SearchMin = other.SearchMin
	}
	if other.SearchMax != nil {
		t.SearchMax = other.SearchMax
	}
	if other.SearchStep != nil {
		t.SearchStep = other.SearchStep
	}
	if other.MinTrainingSamples != nil {
		t.MinTrainingSamples = other.MinTrainingSamples
	}
	if other.MinNewLabels != nil {
		t.MinNewLabels = other.MinNewLabels
	}
	if other.StalenessWindow != nil {
		t.StalenessWindow = other.StalenessWindow
	}
	if other.LeaseTTL != nil {
		t.LeaseTTL = other.LeaseTTL
	}
	if other.FallbackConfidencePenalty != nil {
		t.FallbackConfidencePenalty = other.FallbackConfidencePenalty
	}
	if other.ConfidenceScale != nil {
		t.ConfidenceScale = other.ConfidenceScale
	}
	if other.EvidenceTimeout != nil {
		t.EvidenceTimeout = other.EvidenceTimeout
	}
	if other.Panel != nil {
		t.Panel = other.Panel
	}
}

// Validate rejects values the engine cannot work with.
func (t *Tuning) Validate() error {
	if t.MinReferenceSamples != nil && *t.MinReferenceSamples < 3 {
		return fmt.Errorf("min_reference_samples %d below hard floor 3", *t.MinReferenceSamples)
	}
	if t.MinCoveredFraction != nil && (*t.MinCoveredFraction < 0 || *t.MinCoveredFraction > 1) {
		return fmt.Errorf("min_covered_fraction %.2f outside [0,1]", *t.MinCoveredFraction)
	}
	if t.SearchMin != nil && *t.SearchMin >= 0 {
		return fmt.Errorf("search_min_z %.2f must be negative", *t.SearchMin)
	}
	if t.SearchMax != nil && *t.SearchMax <= 0 {
		return fmt.Errorf("search_max_z %.2f must be positive", *t.SearchMax)
	}
	if t.SearchStep != nil && *t.SearchStep <= 0 {
		return fmt.Errorf("search_step_z %.3f must be positive", *t.SearchStep)
	}
	if t.FallbackConfidencePenalty != nil && (*t.FallbackConfidencePenalty <= 0 || *t.FallbackConfidencePenalty >= 1) {
		return fmt.Errorf("fallback_confidence_penalty %.2f outside (0,1)", *t.FallbackConfidencePenalty)
	}
	for name, v := range map[string]*string{
		"staleness_window":   t.StalenessWindow,
		"training_lease_ttl": t.LeaseTTL,
		"evidence_timeout":   t.EvidenceTimeout,
	} {
		if v == nil {
			continue
		}
		if _, err := time.ParseDuration(*v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (t *Tuning) panel() cnv.Panel {
	if t.Panel != nil {
		return *t.Panel
	}
	return cnv.DefaultPanel()
}

func (t *Tuning) duration(v *string, fallback time.Duration) time.Duration {
	if v == nil {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}

// BaselineOptions resolves the normalization settings.
func (t *Tuning) BaselineOptions() cnv.BaselineOptions {
	opts := cnv.DefaultBaselineOptions()
	if t.MinCoveredFraction != nil {
		opts.MinCoveredFraction = *t.MinCoveredFraction
	}
	if t.MinReferenceSamples != nil {
		opts.MinReferenceSamples = *t.MinReferenceSamples
	}
	return opts
}

// TrainOptions resolves the trainer settings.
func (t *Tuning) TrainOptions() cnv.TrainOptions {
	opts := cnv.DefaultTrainOptions()
	opts.Panel = t.panel()
	if t.SearchMin != nil {
		opts.SearchMin = *t.SearchMin
	}
	if t.SearchMax != nil {
		opts.SearchMax = *t.SearchMax
	}
	if t.SearchStep != nil {
		opts.SearchStep = *t.SearchStep
	}
	if t.MinTrainingSamples != nil {
		opts.MinTrainingSamples = *t.MinTrainingSamples
	}
	if t.MinNewLabels != nil {
		opts.MinNewLabels = *t.MinNewLabels
	}
	opts.StalenessWindow = t.duration(t.StalenessWindow, opts.StalenessWindow)
	opts.LeaseTTL = t.duration(t.LeaseTTL, opts.LeaseTTL)
	return opts
}

// CallConfig resolves the caller settings.
func (t *Tuning) CallConfig() cnv.CallConfig {
	cfg := cnv.DefaultCallConfig()
	cfg.Panel = t.panel()
	if t.MinCoveredFraction != nil {
		cfg.MinCoveredFraction = *t.MinCoveredFraction
	}
	if t.FallbackConfidencePenalty != nil {
		cfg.FallbackPenalty = *t.FallbackConfidencePenalty
	}
	if t.ConfidenceScale != nil {
		cfg.ConfidenceScale = *t.ConfidenceScale
	}
	return cfg
}

// EvidenceTimeoutDuration resolves the interpreter's evidence budget.
func (t *Tuning) EvidenceTimeoutDuration() time.Duration {
	return t.duration(t.EvidenceTimeout, 2*time.Second)
}
