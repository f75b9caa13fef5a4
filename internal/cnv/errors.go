package cnv

import "errors"

// Sentinel errors for the calling engine. Per-exon and per-sample failures
// wrap these and degrade the affected result only; they never abort a batch.
var (
	// ErrInsufficientReference: fewer than the minimum qualifying reference
	// samples exist for an exon, so its baseline is undefined for the run.
	ErrInsufficientReference = errors.New("insufficient reference samples for baseline")

	// ErrDegenerateBaseline: the reference cohort has zero depth variance at
	// an exon and the observed depth differs from the baseline mean.
	ErrDegenerateBaseline = errors.New("degenerate zero-variance baseline")

	// ErrInsufficientTrainingData: too few labeled samples (or too little
	// label diversity) to fit thresholds. The previous active version stays
	// in force.
	ErrInsufficientTrainingData = errors.New("insufficient labeled samples for threshold training")

	// ErrTrainingLocked: another retrain holds the store's training lease.
	ErrTrainingLocked = errors.New("threshold training already in progress")

	// ErrNoActiveVersion: the store has no activated threshold version.
	ErrNoActiveVersion = errors.New("no active threshold version")
)
