package cnv

import (
	"fmt"
	"math"
)

// homOffset splits the homozygous from the heterozygous tier: copy number 0
// sits a full standard deviation below the deletion cutoff, copy number 4 a
// full standard deviation above the duplication cutoff. Matches the default
// cutoff spacing (-2.5/-1.5 and 2.5/3.5) the thresholds were designed around.
const homOffset = 1.0

// CallConfig holds the caller's quality gates and confidence shaping.
type CallConfig struct {
	Panel Panel

	// MinCoveredFraction gates exon usability for calling.
	MinCoveredFraction float64

	// FallbackPenalty scales confidence when the fallback exon is used.
	FallbackPenalty float64

	// ConfidenceScale is the z-distance from the nearest cutoff at which
	// confidence saturates to 1.
	ConfidenceScale float64
}

// DefaultCallConfig returns the standard calling configuration.
func DefaultCallConfig() CallConfig {
	return CallConfig{
		Panel:              DefaultPanel(),
		MinCoveredFraction: 0.8,
		FallbackPenalty:    0.75,
		ConfidenceScale:    2.0,
	}
}

// Call produces one copy-number call per panel gene from a sample's z-scores
// and the given threshold version. It is a pure function of its arguments:
// identical inputs always produce identical calls.
//
// Per gene the primary exon is used when it passes the quality gate (covered
// fraction and a defined z-score). Otherwise the fallback exon is tried with
// a confidence penalty and a WARNING flag. If both fail the gene is a
// no-call: nil copy number, zero confidence, FAIL flag.
func Call(sampleID string, zscores map[string]ZScore, tv *ThresholdVersion, cfg CallConfig) []CopyNumberCall {
	return []CopyNumberCall{
		callGene(sampleID, cfg.Panel.Gene1, zscores, tv, cfg),
		callGene(sampleID, cfg.Panel.Gene2, zscores, tv, cfg),
	}
}

func callGene(sampleID string, target GeneTarget, zscores map[string]ZScore, tv *ThresholdVersion, cfg CallConfig) CopyNumberCall {
	call := CopyNumberCall{
		SampleID:           sampleID,
		Gene:               target.Gene,
		ThresholdVersionID: tv.ID,
	}

	primary, pReason := usableExon(target.PrimaryExon, zscores, tv, cfg)
	if primary != nil {
		classifyInto(&call, *primary, tv.Cutoffs[target.PrimaryExon], cfg, SourcePrimary)
		return call
	}

	fallback, fReason := usableExon(target.FallbackExon, zscores, tv, cfg)
	if fallback != nil {
		classifyInto(&call, *fallback, tv.Cutoffs[target.FallbackExon], cfg, SourceFallback)
		call.Reason = fmt.Sprintf("primary exon %s unusable: %s", target.PrimaryExon, pReason)
		return call
	}

	call.CopyNumber = nil
	call.Confidence = 0
	call.Flag = FlagFail
	call.Source = SourcePrimary
	call.Reason = fmt.Sprintf("no usable exon: %s: %s; %s: %s",
		target.PrimaryExon, pReason, target.FallbackExon, fReason)
	return call
}

// usableExon applies the quality gate. A nil result means the exon cannot
// support a call; the reason string feeds the call's Reason field.
func usableExon(exonID string, zscores map[string]ZScore, tv *ThresholdVersion, cfg CallConfig) (*ZScore, string) {
	zs, ok := zscores[exonID]
	if !ok {
		return nil, "no z-score (missing record, baseline, or normalization failed)"
	}
	if zs.CoveredFraction < cfg.MinCoveredFraction {
		return nil, fmt.Sprintf("covered fraction %.2f below %.2f", zs.CoveredFraction, cfg.MinCoveredFraction)
	}
	if _, ok := tv.Cutoffs[exonID]; !ok {
		return nil, "no trained cutoffs for exon"
	}
	return &zs, ""
}

func classifyInto(call *CopyNumberCall, zs ZScore, cut ExonCutoffs, cfg CallConfig, source ExonSource) {
	cn, onBoundary := classify(zs.Z, cut)
	conf := confidence(zs.Z, cut, cfg.ConfidenceScale)
	flag := FlagPass
	if source == SourceFallback {
		conf *= cfg.FallbackPenalty
		flag = FlagWarning
	}
	if onBoundary {
		call.Reason = fmt.Sprintf("z %.2f on cutoff boundary, classified toward normal", zs.Z)
	}

	call.CopyNumber = &cn
	call.Confidence = conf
	call.Flag = flag
	call.Source = source
}

// classify maps a z-score to an integer copy number. Exact boundary hits go
// to the tier closer to 2: an ambiguous result must never round toward the
// more severe call.
func classify(z float64, cut ExonCutoffs) (cn int, onBoundary bool) {
	homDel := cut.DeletionZ - homOffset
	homDup := cut.DuplicationZ + homOffset
	switch {
	case z < homDel:
		return 0, false
	case z == homDel:
		return 1, true
	case z < cut.DeletionZ:
		return 1, false
	case z == cut.DeletionZ:
		return 2, true
	case z < cut.DuplicationZ:
		return 2, false
	case z == cut.DuplicationZ:
		return 2, true
	case z < homDup:
		return 3, false
	case z == homDup:
		return 3, true
	default:
		return 4, false
	}
}

// confidence is the normalized distance from z to the nearest decision
// boundary, clipped to [0,1]. Exactly on a boundary it is 0.
func confidence(z float64, cut ExonCutoffs, scale float64) float64 {
	if scale <= 0 {
		scale = 1
	}
	boundaries := []float64{
		cut.DeletionZ - homOffset,
		cut.DeletionZ,
		cut.DuplicationZ,
		cut.DuplicationZ + homOffset,
	}
	min := math.Inf(1)
	for _, b := range boundaries {
		if d := math.Abs(z - b); d < min {
			min = d
		}
	}
	c := min / scale
	if c > 1 {
		c = 1
	}
	return c
}
