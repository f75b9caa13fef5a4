package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/smn.report/internal/cnv"
)

func sampleEvidence() []cnv.EvidenceEntry {
	return []cnv.EvidenceEntry{
		{Gene: "SMN1", Key: "SMN1:del_ex7", Frequency: "1/54", ClinicalSignificance: "pathogenic"},
		{Gene: "SMN1", Key: "SMN1:carrier_freq", Frequency: "1/47", ClinicalSignificance: "risk factor"},
		{Gene: "SMN2", Key: "SMN2:cn_dist", Frequency: "", ClinicalSignificance: "modifier"},
	}
}

func TestEvidenceUpsertAndReadBack(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)
	setupMockClock(db)
	ctx := context.Background()

	if err := db.UpsertEvidence(ctx, sampleEvidence()); err != nil {
		t.Fatalf("UpsertEvidence failed: %v", err)
	}

	got, err := db.EvidenceForGene(ctx, "SMN1")
	if err != nil {
		t.Fatalf("EvidenceForGene failed: %v", err)
	}
	// Ordered by key.
	want := []cnv.EvidenceEntry{
		{Gene: "SMN1", Key: "SMN1:carrier_freq", Frequency: "1/47", ClinicalSignificance: "risk factor"},
		{Gene: "SMN1", Key: "SMN1:del_ex7", Frequency: "1/54", ClinicalSignificance: "pathogenic"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SMN1 evidence mismatch (-want +got):\n%s", diff)
	}

	got, err = db.EvidenceForGene(ctx, "SMN2")
	if err != nil {
		t.Fatalf("EvidenceForGene failed: %v", err)
	}
	if len(got) != 1 || got[0].Key != "SMN2:cn_dist" {
		t.Errorf("unexpected SMN2 evidence: %+v", got)
	}
}

func TestEvidenceUpsertOverwrites(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)
	setupMockClock(db)
	ctx := context.Background()

	if err := db.UpsertEvidence(ctx, sampleEvidence()); err != nil {
		t.Fatalf("UpsertEvidence failed: %v", err)
	}
	update := []cnv.EvidenceEntry{
		{Gene: "SMN1", Key: "SMN1:del_ex7", Frequency: "1/60", ClinicalSignificance: "pathogenic"},
	}
	if err := db.UpsertEvidence(ctx, update); err != nil {
		t.Fatalf("UpsertEvidence failed: %v", err)
	}

	got, err := db.EvidenceForGene(ctx, "SMN1")
	if err != nil {
		t.Fatalf("EvidenceForGene failed: %v", err)
	}
	for _, e := range got {
		if e.Key == "SMN1:del_ex7" && e.Frequency != "1/60" {
			t.Errorf("frequency not refreshed: got %q, want %q", e.Frequency, "1/60")
		}
	}
	if len(got) != 2 {
		t.Errorf("upsert must not duplicate rows: got %d entries", len(got))
	}
}

func TestEvidenceMissReportsStale(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)
	setupMockClock(db)

	_, err := db.EvidenceForGene(context.Background(), "SMN1")
	if !errors.Is(err, ErrEvidenceStale) {
		t.Fatalf("expected ErrEvidenceStale on empty cache, got %v", err)
	}
}

func TestEvidenceExpiresAfterTTL(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)
	clock := setupMockClock(db)
	ctx := context.Background()

	if err := db.UpsertEvidence(ctx, sampleEvidence()); err != nil {
		t.Fatalf("UpsertEvidence failed: %v", err)
	}

	clock.Advance(DefaultEvidenceTTL + time.Hour)

	if _, err := db.EvidenceForGene(ctx, "SMN1"); !errors.Is(err, ErrEvidenceStale) {
		t.Fatalf("expected ErrEvidenceStale after TTL, got %v", err)
	}

	// A refresh makes the entries readable again.
	if err := db.UpsertEvidence(ctx, sampleEvidence()); err != nil {
		t.Fatalf("UpsertEvidence failed: %v", err)
	}
	if _, err := db.EvidenceForGene(ctx, "SMN1"); err != nil {
		t.Fatalf("EvidenceForGene after refresh failed: %v", err)
	}
}

func TestEvidenceRespectsContextCancellation(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)
	setupMockClock(db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := db.EvidenceForGene(ctx, "SMN1"); err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
}
