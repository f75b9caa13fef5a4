package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/smn.report/internal/cnv"
	"github.com/banshee-data/smn.report/internal/monitoring"
)

// ErrEvidenceStale marks cache entries older than the TTL. The interpreter
// treats it like a miss and proceeds unannotated.
var ErrEvidenceStale = errors.New("population evidence cache entry is stale")

// DefaultEvidenceTTL matches the out-of-band refresh cadence of the
// population evidence feed.
const DefaultEvidenceTTL = 30 * 24 * time.Hour

// EvidenceForGene reads the cached population evidence for a gene. Entries
// older than the TTL yield ErrEvidenceStale. The read respects ctx, so the
// interpreter's lookup timeout bounds it. Implements cnv.EvidenceSource.
func (db *DB) EvidenceForGene(ctx context.Context, gene string) ([]cnv.EvidenceEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT gene, key, frequency, clinical_significance, fetched_at
		FROM population_evidence WHERE gene = ? ORDER BY key`, gene)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := db.clock.Now().UTC()
	var out []cnv.EvidenceEntry
	for rows.Next() {
		var (
			e       cnv.EvidenceEntry
			fetched string
		)
		if err := rows.Scan(&e.Gene, &e.Key, &e.Frequency, &e.ClinicalSignificance, &fetched); err != nil {
			return nil, err
		}
		fetchedAt, err := time.Parse(time.RFC3339Nano, fetched)
		if err != nil {
			return nil, fmt.Errorf("parse fetched_at %q: %w", fetched, err)
		}
		if now.Sub(fetchedAt) > DefaultEvidenceTTL {
			monitoring.Logf("evidence %s/%s fetched %s ago, treating as stale", e.Gene, e.Key, now.Sub(fetchedAt))
			continue
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("gene %s: no fresh evidence cached: %w", gene, ErrEvidenceStale)
	}
	return out, nil
}

// UpsertEvidence refreshes cache entries. Called by the out-of-band refresh
// job, never by the calling path.
func (db *DB) UpsertEvidence(ctx context.Context, entries []cnv.EvidenceEntry) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := db.clock.Now().UTC().Format(time.RFC3339Nano)
	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO population_evidence (gene, key, frequency, clinical_significance, fetched_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(gene, key) DO UPDATE SET
				frequency = excluded.frequency,
				clinical_significance = excluded.clinical_significance,
				fetched_at = excluded.fetched_at`,
			e.Gene, e.Key, e.Frequency, e.ClinicalSignificance, now)
		if err != nil {
			return fmt.Errorf("upsert evidence %s/%s: %w", e.Gene, e.Key, err)
		}
	}
	return tx.Commit()
}
