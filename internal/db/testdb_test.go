package db

import (
	"os"
	"testing"
	"time"

	"github.com/banshee-data/smn.report/internal/cnv"
	"github.com/banshee-data/smn.report/internal/timeutil"
)

// Helper functions

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	fname := t.Name() + ".db"
	_ = os.Remove(fname)

	db, err := OpenDB(fname)
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}

	migrations, err := MigrationsFS()
	if err != nil {
		t.Fatalf("failed to load embedded migrations: %v", err)
	}
	if err := db.MigrateUp(migrations); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}
	return db
}

func cleanupTestDB(t *testing.T, db *DB) {
	t.Helper()
	fname := t.Name() + ".db"
	db.Close()
	_ = os.Remove(fname)
	_ = os.Remove(fname + "-shm")
	_ = os.Remove(fname + "-wal")
}

func setupMockClock(db *DB) *timeutil.MockClock {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	db.SetClock(clock)
	return clock
}

func intPtr(v int) *int {
	return &v
}

func sampleVersion() *cnv.ThresholdVersion {
	return &cnv.ThresholdVersion{
		Cutoffs: map[string]cnv.ExonCutoffs{
			"SMN1_exon7": {DeletionZ: -1.5, DuplicationZ: 1.5},
			"SMN1_exon8": {DeletionZ: -1.5, DuplicationZ: 1.5},
			"SMN2_exon7": {DeletionZ: -1.8, DuplicationZ: 1.8},
			"SMN2_exon8": {DeletionZ: -1.8, DuplicationZ: 1.8},
		},
		Metrics: cnv.FitMetrics{
			Concordance:     0.96,
			MCC:             0.91,
			TrainingSamples: 42,
		},
		LabelSnapshot: "abc123",
	}
}
