package cnv

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// BaselineOptions control reference-cohort filtering.
type BaselineOptions struct {
	// MinCoveredFraction excludes poorly covered reference records from the
	// baseline.
	MinCoveredFraction float64
	// MinReferenceSamples is the smallest cohort for which a baseline is
	// defined.
	MinReferenceSamples int
}

// DefaultBaselineOptions returns the standard gates: covered fraction 0.8,
// cohort of at least 3.
func DefaultBaselineOptions() BaselineOptions {
	return BaselineOptions{MinCoveredFraction: 0.8, MinReferenceSamples: 3}
}

// Baselines holds per-exon reference statistics plus the exons that could not
// be computed. A missing exon is a per-exon failure, not a run failure.
type Baselines struct {
	Stats  map[string]ReferenceStats
	Failed map[string]error
}

// ComputeBaselines derives per-exon mean and unbiased standard deviation of
// mean depth across the reference cohort. Records with a non-reference role
// or covered fraction below the gate are ignored. Exons with fewer than
// MinReferenceSamples qualifying records land in Failed wrapping
// ErrInsufficientReference.
func ComputeBaselines(records []ExonDepthRecord, opts BaselineOptions) Baselines {
	depths := make(map[string][]float64)
	for _, r := range records {
		if r.Role != RoleReference {
			continue
		}
		if r.CoveredFraction < opts.MinCoveredFraction {
			continue
		}
		depths[r.ExonID] = append(depths[r.ExonID], r.MeanDepth)
	}

	b := Baselines{
		Stats:  make(map[string]ReferenceStats, len(depths)),
		Failed: make(map[string]error),
	}
	for exon, d := range depths {
		if len(d) < opts.MinReferenceSamples {
			b.Failed[exon] = fmt.Errorf("exon %s: %d reference samples, need %d: %w",
				exon, len(d), opts.MinReferenceSamples, ErrInsufficientReference)
			continue
		}
		sort.Float64s(d)
		mean, stdev := stat.MeanStdDev(d, nil)
		b.Stats[exon] = ReferenceStats{
			ExonID:  exon,
			Mean:    mean,
			Stdev:   stdev,
			Samples: len(d),
		}
	}
	return b
}

// Normalize converts one depth record into a z-score against its exon's
// baseline. A zero-variance baseline is tolerated only when the observed
// depth equals the baseline mean (z = 0); otherwise the exon is
// non-normalizable for this sample and the error wraps ErrDegenerateBaseline.
func Normalize(rec ExonDepthRecord, base ReferenceStats) (ZScore, error) {
	zs := ZScore{
		SampleID:        rec.SampleID,
		ExonID:          rec.ExonID,
		CoveredFraction: rec.CoveredFraction,
	}
	if base.Stdev == 0 {
		if rec.MeanDepth == base.Mean {
			zs.Z = 0
			return zs, nil
		}
		return zs, fmt.Errorf("exon %s sample %s: depth %.2f against zero-variance baseline mean %.2f: %w",
			rec.ExonID, rec.SampleID, rec.MeanDepth, base.Mean, ErrDegenerateBaseline)
	}
	zs.Z = (rec.MeanDepth - base.Mean) / base.Stdev
	return zs, nil
}

// NormalizeAll normalizes every record with a usable baseline, across all
// samples and roles. Training consumes this flat view; non-normalizable
// records are silently absent (their exons are in b.Failed or were
// degenerate for that sample).
func NormalizeAll(records []ExonDepthRecord, b Baselines) []ZScore {
	out := make([]ZScore, 0, len(records))
	for _, r := range records {
		base, ok := b.Stats[r.ExonID]
		if !ok {
			continue
		}
		zs, err := Normalize(r, base)
		if err != nil {
			continue
		}
		out = append(out, zs)
	}
	return out
}

// NormalizeSample normalizes every record of one sample that has a usable
// baseline. Exons without a baseline or with a degenerate one are absent from
// the returned map and explained in the error map; the caller treats missing
// z-scores as failed quality gates.
func NormalizeSample(records []ExonDepthRecord, b Baselines) (map[string]ZScore, map[string]error) {
	out := make(map[string]ZScore, len(records))
	failed := make(map[string]error)
	for _, r := range records {
		base, ok := b.Stats[r.ExonID]
		if !ok {
			if err, known := b.Failed[r.ExonID]; known {
				failed[r.ExonID] = err
			}
			continue
		}
		zs, err := Normalize(r, base)
		if err != nil {
			failed[r.ExonID] = err
			continue
		}
		out[r.ExonID] = zs
	}
	return out, failed
}
