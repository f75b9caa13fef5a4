package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTuningFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write tuning file: %v", err)
	}
	return path
}

func TestLoadTuning_EmptyPathReturnsDefaults(t *testing.T) {
	tuning, err := LoadTuning("")
	if err != nil {
		t.Fatalf("LoadTuning failed: %v", err)
	}
	if got := *tuning.MinTrainingSamples; got != 10 {
		t.Errorf("MinTrainingSamples = %d, want 10", got)
	}
	if got := *tuning.MinCoveredFraction; got != 0.8 {
		t.Errorf("MinCoveredFraction = %v, want 0.8", got)
	}
	if got := tuning.EvidenceTimeoutDuration(); got != 2*time.Second {
		t.Errorf("EvidenceTimeoutDuration = %v, want 2s", got)
	}
}

func TestLoadTuning_PartialOverlay(t *testing.T) {
	path := writeTuningFile(t, `{
		"min_training_samples": 20,
		"staleness_window": "168h"
	}`)

	tuning, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning failed: %v", err)
	}
	if got := *tuning.MinTrainingSamples; got != 20 {
		t.Errorf("MinTrainingSamples = %d, want 20", got)
	}
	// Unnamed fields keep their defaults.
	if got := *tuning.MinCoveredFraction; got != 0.8 {
		t.Errorf("MinCoveredFraction = %v, want default 0.8", got)
	}

	opts := tuning.TrainOptions()
	if opts.MinTrainingSamples != 20 {
		t.Errorf("TrainOptions.MinTrainingSamples = %d, want 20", opts.MinTrainingSamples)
	}
	if opts.StalenessWindow != 168*time.Hour {
		t.Errorf("TrainOptions.StalenessWindow = %v, want 168h", opts.StalenessWindow)
	}
}

func TestLoadTuning_MissingFileFails(t *testing.T) {
	if _, err := LoadTuning(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected an error for a missing tuning file")
	}
}

func TestLoadTuning_InvalidJSONFails(t *testing.T) {
	path := writeTuningFile(t, "{not json")
	if _, err := LoadTuning(path); err == nil {
		t.Fatal("expected an error for invalid JSON")
	}
}

func TestTuningValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Tuning)
		wantErr bool
	}{
		{"defaults are valid", func(t *Tuning) {}, false},
		{"reference floor", func(t *Tuning) { t.MinReferenceSamples = ptrInt(2) }, true},
		{"fraction too high", func(t *Tuning) { t.MinCoveredFraction = ptrFloat64(1.2) }, true},
		{"search min positive", func(t *Tuning) { t.SearchMin = ptrFloat64(0.5) }, true},
		{"search max negative", func(t *Tuning) { t.SearchMax = ptrFloat64(-1) }, true},
		{"zero step", func(t *Tuning) { t.SearchStep = ptrFloat64(0) }, true},
		{"penalty at one", func(t *Tuning) { t.FallbackConfidencePenalty = ptrFloat64(1.0) }, true},
		{"bad duration", func(t *Tuning) { t.LeaseTTL = ptrString("soonish") }, true},
		{"valid duration", func(t *Tuning) { t.LeaseTTL = ptrString("30m") }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tuning := DefaultTuning()
			tc.mutate(tuning)
			err := tuning.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected a validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestTuningMerge(t *testing.T) {
	base := DefaultTuning()
	base.Merge(&Tuning{
		SearchStep:      ptrFloat64(0.05),
		EvidenceTimeout: ptrString("500ms"),
	})

	if got := *base.SearchStep; got != 0.05 {
		t.Errorf("SearchStep = %v, want 0.05", got)
	}
	if got := base.EvidenceTimeoutDuration(); got != 500*time.Millisecond {
		t.Errorf("EvidenceTimeoutDuration = %v, want 500ms", got)
	}
	if got := *base.MinNewLabels; got != 5 {
		t.Errorf("MinNewLabels = %d, want default 5", got)
	}

	// Nil overlay is a no-op.
	base.Merge(nil)
	if got := *base.SearchStep; got != 0.05 {
		t.Errorf("SearchStep after nil merge = %v, want 0.05", got)
	}
}

func TestTuningCallConfig(t *testing.T) {
	tuning := DefaultTuning()
	tuning.FallbackConfidencePenalty = ptrFloat64(0.5)
	tuning.ConfidenceScale = ptrFloat64(3.0)

	cfg := tuning.CallConfig()
	if cfg.FallbackPenalty != 0.5 {
		t.Errorf("FallbackPenalty = %v, want 0.5", cfg.FallbackPenalty)
	}
	if cfg.ConfidenceScale != 3.0 {
		t.Errorf("ConfidenceScale = %v, want 3.0", cfg.ConfidenceScale)
	}
	if cfg.Panel.Gene1.Gene != "SMN1" {
		t.Errorf("Panel.Gene1 = %q, want SMN1", cfg.Panel.Gene1.Gene)
	}
}
