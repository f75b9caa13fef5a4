package db

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/smn.report/internal/cnv"
)

// RunCallRow is one row of the consolidated run table exposed to the
// reporting layer: both gene copy numbers, the clinical category, and the
// worst quality flag for one sample.
type RunCallRow struct {
	RunID              string          `json:"run_id"`
	SampleID           string          `json:"sample_id"`
	Gene1CopyNumber    *int            `json:"gene1_copy_number"`
	Gene2CopyNumber    *int            `json:"gene2_copy_number"`
	Category           cnv.Category    `json:"category"`
	QualityFlag        cnv.QualityFlag `json:"quality_flag"`
	Confidence         float64         `json:"confidence"`
	ThresholdVersionID int64           `json:"threshold_version_id"`
}

// RecordRun persists a completed batch run and its consolidated per-sample
// rows in one transaction.
func (db *DB) RecordRun(ctx context.Context, run *cnv.RunResult) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, threshold_version_id, started_at, sample_count)
		VALUES (?, ?, ?, ?)`,
		run.RunID, run.ThresholdVersionID,
		db.clock.Now().UTC().Format(time.RFC3339Nano), len(run.Results))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}

	for _, res := range run.Results {
		row := consolidate(run.RunID, res)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_calls (
				run_id, sample_id, gene1_copy_number, gene2_copy_number,
				category, quality_flag, confidence, threshold_version_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			row.RunID, row.SampleID, row.Gene1CopyNumber, row.Gene2CopyNumber,
			string(row.Category), string(row.QualityFlag), row.Confidence, row.ThresholdVersionID)
		if err != nil {
			return fmt.Errorf("insert run call %s/%s: %w", run.RunID, res.SampleID, err)
		}
	}
	return tx.Commit()
}

// RunCalls reads back a run's consolidated table, ordered by sample ID.
func (db *DB) RunCalls(ctx context.Context, runID string) ([]RunCallRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, sample_id, gene1_copy_number, gene2_copy_number,
		       category, quality_flag, confidence, threshold_version_id
		FROM run_calls WHERE run_id = ? ORDER BY sample_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunCallRow
	for rows.Next() {
		var r RunCallRow
		if err := rows.Scan(&r.RunID, &r.SampleID, &r.Gene1CopyNumber, &r.Gene2CopyNumber,
			&r.Category, &r.QualityFlag, &r.Confidence, &r.ThresholdVersionID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// consolidate flattens one sample result into its table row. Confidence is
// the lower of the two gene confidences: the row answers "how sure is the
// weakest link".
func consolidate(runID string, res cnv.SampleResult) RunCallRow {
	row := RunCallRow{
		RunID:       runID,
		SampleID:    res.SampleID,
		Category:    res.Interpretation.Category,
		QualityFlag: res.Interpretation.Flag,
		Confidence:  1,
	}
	for _, call := range res.Calls {
		if call.Confidence < row.Confidence {
			row.Confidence = call.Confidence
		}
		row.ThresholdVersionID = call.ThresholdVersionID
	}
	if len(res.Calls) == 2 {
		row.Gene1CopyNumber = res.Calls[0].CopyNumber
		row.Gene2CopyNumber = res.Calls[1].CopyNumber
	}
	return row
}
