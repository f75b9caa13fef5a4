package cnv

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/banshee-data/smn.report/internal/monitoring"
	"github.com/banshee-data/smn.report/internal/timeutil"
)

// tiers for threshold fitting: the trainer optimizes the three-way decision
// the cutoffs actually make; the hom/het split inside a tier is the fixed
// homOffset.
const (
	tierDeletion = iota
	tierNormal
	tierDuplication
	tierCount
)

// ThresholdStore is the persistence the trainer needs: append-only version
// publishing, an atomic active pointer, and a single-writer training lease.
type ThresholdStore interface {
	ActiveThresholdVersion(ctx context.Context) (*ThresholdVersion, error)
	PublishThresholdVersion(ctx context.Context, tv *ThresholdVersion) (int64, error)
	ActivateThresholdVersion(ctx context.Context, id int64) error
	AcquireTrainingLease(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	ReleaseTrainingLease(ctx context.Context, owner string) error
}

// TrainOptions bound the grid search and the retrain policy.
type TrainOptions struct {
	Panel Panel

	// Grid search bounds and step for the deletion cutoff (negative side)
	// and duplication cutoff (positive side).
	SearchMin  float64 // most negative deletion cutoff tried
	SearchMax  float64 // most positive duplication cutoff tried
	SearchStep float64

	// MinTrainingSamples is the smallest labeled set a fit accepts. The set
	// must also span at least two copy-number tiers.
	MinTrainingSamples int

	// StalenessWindow triggers an unforced retrain once the active version
	// is this old.
	StalenessWindow time.Duration

	// MinNewLabels triggers an unforced retrain when at least this many
	// labeled samples have been added since the active version was fit.
	MinNewLabels int

	// LeaseTTL bounds how long a crashed trainer can hold the lease.
	LeaseTTL time.Duration
}

// DefaultTrainOptions mirrors the tuning the thresholds were validated with.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Panel:              DefaultPanel(),
		SearchMin:          -4.0,
		SearchMax:          4.0,
		SearchStep:         0.1,
		MinTrainingSamples: 10,
		StalenessWindow:    30 * 24 * time.Hour,
		MinNewLabels:       5,
		LeaseTTL:           15 * time.Minute,
	}
}

// Trainer fits and publishes threshold versions against a store. Reads of
// the active version by concurrent callers are always safe: a version is
// fully published before the activation pointer moves.
type Trainer struct {
	Store ThresholdStore
	Clock timeutil.Clock
	Opts  TrainOptions

	// Owner identifies this trainer instance on the lease.
	Owner string
}

// NewTrainer wires a trainer with the real clock.
func NewTrainer(store ThresholdStore, opts TrainOptions) *Trainer {
	return &Trainer{Store: store, Clock: timeutil.RealClock{}, Opts: opts, Owner: "trainer"}
}

// Retrain applies the retrain policy and, when due, fits and publishes a new
// threshold version. With force=false it is idempotent: an active version
// fit from the same label set, still fresh and not behind on new labels, is
// returned unchanged with no new version created. With force=true a new
// version is always published, even if the fitted cutoffs are numerically
// identical.
//
// On ErrInsufficientTrainingData the previous active version (if any) stays
// active; when no version exists at all, a bootstrap version with default
// cutoffs is published so calling can proceed.
func (t *Trainer) Retrain(ctx context.Context, zscores []ZScore, labels []TrainingLabel, force bool) (*ThresholdVersion, error) {
	ok, err := t.Store.AcquireTrainingLease(ctx, t.Owner, t.Opts.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire training lease: %w", err)
	}
	if !ok {
		return nil, ErrTrainingLocked
	}
	defer func() {
		if err := t.Store.ReleaseTrainingLease(context.WithoutCancel(ctx), t.Owner); err != nil {
			monitoring.Logf("release training lease: %v", err)
		}
	}()

	snapshot := labelSnapshot(labels)

	active, err := t.Store.ActiveThresholdVersion(ctx)
	switch {
	case err == nil:
		if !force && !t.retrainDue(active, snapshot, len(labels)) {
			return active, nil
		}
	case errors.Is(err, ErrNoActiveVersion):
		active = nil
	default:
		return nil, fmt.Errorf("read active threshold version: %w", err)
	}

	fitted, err := t.Fit(zscores, labels)
	if err != nil {
		if active != nil {
			monitoring.Logf("threshold retrain skipped, keeping version %d: %v", active.ID, err)
			return active, err
		}
		// First run with no trainable labels: publish the defaults so the
		// caller has something to work with.
		monitoring.Logf("no trainable labels and no active version, bootstrapping defaults: %v", err)
		fitted = t.bootstrapVersion()
	}
	fitted.LabelSnapshot = snapshot
	fitted.CreatedAt = t.Clock.Now().UTC()

	id, err := t.Store.PublishThresholdVersion(ctx, fitted)
	if err != nil {
		return nil, fmt.Errorf("publish threshold version: %w", err)
	}
	fitted.ID = id
	if err := t.Store.ActivateThresholdVersion(ctx, id); err != nil {
		return nil, fmt.Errorf("activate threshold version %d: %w", id, err)
	}
	monitoring.Logf("published and activated threshold version %d (mcc=%.3f concordance=%.3f n=%d)",
		id, fitted.Metrics.MCC, fitted.Metrics.Concordance, fitted.Metrics.TrainingSamples)
	return fitted, nil
}

func (t *Trainer) retrainDue(active *ThresholdVersion, snapshot string, labelCount int) bool {
	// Staleness is independent of the label set: the z-scores drift with the
	// reference cohort even when no new labels arrive.
	if t.Clock.Since(active.CreatedAt) >= t.Opts.StalenessWindow {
		return true
	}
	if active.LabelSnapshot == snapshot {
		return false
	}
	return labelCount-active.Metrics.TrainingSamples >= t.Opts.MinNewLabels
}

// Fit joins z-scores to labels by sample ID and grid-searches per-exon
// deletion and duplication cutoffs maximizing the Matthews correlation of
// tier predictions against the label-derived tiers. Pure: it does not touch
// the store.
func (t *Trainer) Fit(zscores []ZScore, labels []TrainingLabel) (*ThresholdVersion, error) {
	byExon, sampleCount, tierSpread := t.joinTrainingData(zscores, labels)
	if sampleCount < t.Opts.MinTrainingSamples {
		return nil, fmt.Errorf("%d labeled samples joined, need %d: %w",
			sampleCount, t.Opts.MinTrainingSamples, ErrInsufficientTrainingData)
	}
	if tierSpread < 2 {
		return nil, fmt.Errorf("labels span %d copy-number tiers, need at least 2: %w",
			tierSpread, ErrInsufficientTrainingData)
	}

	cutoffs := make(map[string]ExonCutoffs, len(byExon))
	overall := NewConfusionMatrix(tierCount)
	exons := make([]string, 0, len(byExon))
	for exon := range byExon {
		exons = append(exons, exon)
	}
	sort.Strings(exons)

	for _, exon := range exons {
		points := byExon[exon]
		best := t.searchExon(points)
		cutoffs[exon] = best
		for _, p := range points {
			overall.Add(p.tier, predictTier(p.z, best))
		}
	}

	return &ThresholdVersion{
		Cutoffs: cutoffs,
		Metrics: FitMetrics{
			Concordance:     overall.Concordance(),
			MCC:             overall.MCC(),
			TrainingSamples: sampleCount,
		},
	}, nil
}

type trainPoint struct {
	z    float64
	tier int
}

// joinTrainingData matches z-scores and labels by sample, mapping each
// labeled copy number to its tier via the exon's gene. Samples without a
// label are dropped from training (they can still be scored later).
func (t *Trainer) joinTrainingData(zscores []ZScore, labels []TrainingLabel) (map[string][]trainPoint, int, int) {
	labelBySample := make(map[string]TrainingLabel, len(labels))
	for _, l := range labels {
		labelBySample[l.SampleID] = l
	}

	byExon := make(map[string][]trainPoint)
	joined := make(map[string]bool)
	tiersSeen := make(map[int]bool)
	for _, zs := range zscores {
		label, ok := labelBySample[zs.SampleID]
		if !ok {
			continue
		}
		target, ok := t.Opts.Panel.GeneFor(zs.ExonID)
		if !ok {
			continue
		}
		cn := label.Gene1CopyNumber
		if target.Gene == t.Opts.Panel.Gene2.Gene {
			cn = label.Gene2CopyNumber
		}
		tier := tierForCopyNumber(cn)
		byExon[zs.ExonID] = append(byExon[zs.ExonID], trainPoint{z: zs.Z, tier: tier})
		joined[zs.SampleID] = true
		tiersSeen[tier] = true
	}
	return byExon, len(joined), len(tiersSeen)
}

// searchExon scans the (deletion, duplication) cutoff grid for one exon.
// Iteration order makes ties deterministic: among equally scoring grids the
// widest normal band (most negative deletion cutoff, most positive
// duplication cutoff) wins, so ambiguous training data never narrows the
// normal range arbitrarily.
func (t *Trainer) searchExon(points []trainPoint) ExonCutoffs {
	best := ExonCutoffs{DeletionZ: -1.5, DuplicationZ: 1.5}
	bestScore := -2.0

	// Integer grid indices keep the cutoffs strictly inside (SearchMin, 0)
	// and (0, SearchMax); accumulating the step would let float drift walk
	// the last candidate onto zero.
	delSteps := int(-t.Opts.SearchMin/t.Opts.SearchStep + 0.5)
	dupSteps := int(t.Opts.SearchMax/t.Opts.SearchStep + 0.5)
	for i := 0; i < delSteps; i++ {
		d := t.Opts.SearchMin + float64(i)*t.Opts.SearchStep
		for j := 0; j < dupSteps; j++ {
			u := t.Opts.SearchMax - float64(j)*t.Opts.SearchStep
			m := NewConfusionMatrix(tierCount)
			for _, p := range points {
				m.Add(p.tier, predictTier(p.z, ExonCutoffs{DeletionZ: d, DuplicationZ: u}))
			}
			if score := m.MCC(); score > bestScore {
				bestScore = score
				best = ExonCutoffs{DeletionZ: round1(d), DuplicationZ: round1(u)}
			}
		}
	}
	return best
}

// round1 squares away the float drift of grid stepping so published cutoffs
// stay on the 0.1 grid.
func round1(v float64) float64 {
	if v < 0 {
		return float64(int(v*10-0.5)) / 10
	}
	return float64(int(v*10+0.5)) / 10
}

func predictTier(z float64, cut ExonCutoffs) int {
	switch {
	case z <= cut.DeletionZ:
		return tierDeletion
	case z >= cut.DuplicationZ:
		return tierDuplication
	default:
		return tierNormal
	}
}

func tierForCopyNumber(cn int) int {
	switch {
	case cn <= 1:
		return tierDeletion
	case cn >= 3:
		return tierDuplication
	default:
		return tierNormal
	}
}

// bootstrapVersion carries the literature-derived default cutoffs used before
// any MLPA-trained version exists. SMN2 bands are wider: its depth signal is
// noisier than SMN1's.
func (t *Trainer) bootstrapVersion() *ThresholdVersion {
	p := t.Opts.Panel
	cutoffs := map[string]ExonCutoffs{
		p.Gene1.PrimaryExon:  {DeletionZ: -1.5, DuplicationZ: 1.5},
		p.Gene1.FallbackExon: {DeletionZ: -1.5, DuplicationZ: 1.5},
		p.Gene2.PrimaryExon:  {DeletionZ: -1.8, DuplicationZ: 1.8},
		p.Gene2.FallbackExon: {DeletionZ: -1.8, DuplicationZ: 1.8},
	}
	return &ThresholdVersion{Cutoffs: cutoffs}
}

// labelSnapshot hashes the label set so unchanged training data is detected
// without keeping the labels themselves.
func labelSnapshot(labels []TrainingLabel) string {
	sorted := make([]TrainingLabel, len(labels))
	copy(sorted, labels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SampleID < sorted[j].SampleID })

	h := sha1.New()
	for _, l := range sorted {
		fmt.Fprintf(h, "%s\t%d\t%d\t%s\t%s\n",
			l.SampleID, l.Gene1CopyNumber, l.Gene2CopyNumber, l.ClinicalLabel, l.ValidationMethod)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
