package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/smn.report/internal/cnv"
)

// PublishThresholdVersion inserts a new immutable version row and returns its
// monotonically increasing ID. Published rows are never updated or deleted;
// tv.ID is ignored on input.
func (db *DB) PublishThresholdVersion(ctx context.Context, tv *cnv.ThresholdVersion) (int64, error) {
	cutoffs, err := json.Marshal(tv.Cutoffs)
	if err != nil {
		return 0, fmt.Errorf("marshal cutoffs: %w", err)
	}
	createdAt := tv.CreatedAt
	if createdAt.IsZero() {
		createdAt = db.clock.Now().UTC()
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO threshold_versions (
			created_at, cutoffs_json, concordance, matthews_correlation,
			training_sample_count, label_snapshot
		) VALUES (?, ?, ?, ?, ?, ?)`,
		createdAt.Format(time.RFC3339Nano),
		string(cutoffs),
		tv.Metrics.Concordance,
		tv.Metrics.MCC,
		tv.Metrics.TrainingSamples,
		tv.LabelSnapshot,
	)
	if err != nil {
		return 0, fmt.Errorf("insert threshold version: %w", err)
	}
	return res.LastInsertId()
}

// ActivateThresholdVersion atomically repoints the active pointer at the
// given published version. In-flight readers see either the old or the new
// version, never a partial one.
func (db *DB) ActivateThresholdVersion(ctx context.Context, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM threshold_versions WHERE version_id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("threshold version %d not published", id)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO active_threshold (id, version_id, activated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id, activated_at = excluded.activated_at`,
		id, db.clock.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("update active pointer: %w", err)
	}
	return tx.Commit()
}

// ActiveThresholdVersion reads the currently active version, or
// cnv.ErrNoActiveVersion when the pointer has never been set.
func (db *DB) ActiveThresholdVersion(ctx context.Context) (*cnv.ThresholdVersion, error) {
	row := db.QueryRowContext(ctx, `
		SELECT v.version_id, v.created_at, v.cutoffs_json, v.concordance,
		       v.matthews_correlation, v.training_sample_count, v.label_snapshot
		FROM active_threshold a
		JOIN threshold_versions v ON v.version_id = a.version_id
		WHERE a.id = 1`)
	tv, err := scanThresholdVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cnv.ErrNoActiveVersion
	}
	return tv, err
}

// ThresholdVersionByID reads one published version. Calls carry the version
// ID they were made with, so audits can re-read exactly that version.
func (db *DB) ThresholdVersionByID(ctx context.Context, id int64) (*cnv.ThresholdVersion, error) {
	row := db.QueryRowContext(ctx, `
		SELECT version_id, created_at, cutoffs_json, concordance,
		       matthews_correlation, training_sample_count, label_snapshot
		FROM threshold_versions WHERE version_id = ?`, id)
	tv, err := scanThresholdVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("threshold version %d not found", id)
	}
	return tv, err
}

// ListThresholdVersions returns the full version history, newest first.
func (db *DB) ListThresholdVersions(ctx context.Context) ([]cnv.ThresholdVersion, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT version_id, created_at, cutoffs_json, concordance,
		       matthews_correlation, training_sample_count, label_snapshot
		FROM threshold_versions ORDER BY version_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cnv.ThresholdVersion
	for rows.Next() {
		tv, err := scanThresholdVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tv)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThresholdVersion(row rowScanner) (*cnv.ThresholdVersion, error) {
	var (
		tv        cnv.ThresholdVersion
		createdAt string
		cutoffs   string
	)
	err := row.Scan(&tv.ID, &createdAt, &cutoffs,
		&tv.Metrics.Concordance, &tv.Metrics.MCC, &tv.Metrics.TrainingSamples, &tv.LabelSnapshot)
	if err != nil {
		return nil, err
	}
	tv.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if err := json.Unmarshal([]byte(cutoffs), &tv.Cutoffs); err != nil {
		return nil, fmt.Errorf("unmarshal cutoffs: %w", err)
	}
	return &tv, nil
}

// AcquireTrainingLease takes the single-writer retrain lease. It returns
// false when another live owner holds it; an expired lease or the caller's
// own lease is reacquired. BEGIN IMMEDIATE serializes competing acquirers at
// the sqlite level.
func (db *DB) AcquireTrainingLease(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return false, fmt.Errorf("begin immediate: %w", err)
	}
	commit := false
	defer func() {
		if commit {
			_, _ = conn.ExecContext(ctx, `COMMIT`)
		} else {
			_, _ = conn.ExecContext(ctx, `ROLLBACK`)
		}
	}()

	now := db.clock.Now().UTC()
	var (
		holder  string
		expires string
	)
	err = conn.QueryRowContext(ctx, `SELECT owner, expires_at FROM training_lease WHERE id = 1`).Scan(&holder, &expires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Lease never taken.
	case err != nil:
		return false, err
	default:
		expiresAt, perr := time.Parse(time.RFC3339Nano, expires)
		if perr != nil {
			return false, fmt.Errorf("parse lease expiry %q: %w", expires, perr)
		}
		if holder != owner && now.Before(expiresAt) {
			return false, nil
		}
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO training_lease (id, owner, expires_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at`,
		owner, now.Add(ttl).Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("take training lease: %w", err)
	}
	commit = true
	return true, nil
}

// ReleaseTrainingLease drops the lease if owner still holds it. Releasing a
// lease someone else took over (after expiry) is a no-op.
func (db *DB) ReleaseTrainingLease(ctx context.Context, owner string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM training_lease WHERE id = 1 AND owner = ?`, owner)
	return err
}
