// Package cnv implements copy-number classification of the SMN1/SMN2 locus
// pair from per-exon read-depth summaries: reference-cohort normalization,
// MLPA-supervised threshold training, confidence-scored calling, and clinical
// interpretation of the resulting call pair.
package cnv

import "time"

// SampleRole marks whether a sample contributes to the reference baseline or
// is being tested against it. Role assignment happens at ingestion; the core
// only ever sees the resolved tag.
type SampleRole string

const (
	RoleReference SampleRole = "reference"
	RoleTest      SampleRole = "test"
)

// QualityFlag grades a call or interpretation.
type QualityFlag string

const (
	FlagPass    QualityFlag = "PASS"
	FlagWarning QualityFlag = "WARNING"
	FlagFail    QualityFlag = "FAIL"
)

// ExonSource records which exon produced a gene's call.
type ExonSource string

const (
	SourcePrimary  ExonSource = "primary"
	SourceFallback ExonSource = "fallback"
)

// Category is the clinical classification of a sample.
type Category string

const (
	CategoryAffected  Category = "AFFECTED"
	CategoryCarrier   Category = "CARRIER"
	CategoryNormal    Category = "NORMAL"
	CategoryUncertain Category = "UNCERTAIN"
)

// ExonDepthRecord is one sample's depth summary at one exon, produced
// upstream by the depth extractor. Mapping and base quality filters are
// applied before these records are built.
type ExonDepthRecord struct {
	SampleID        string     `json:"sample_id"`
	ExonID          string     `json:"exon_id"`
	Gene            string     `json:"gene"`
	Role            SampleRole `json:"sample_type"`
	MeanDepth       float64    `json:"mean_depth"`
	CoveredFraction float64    `json:"covered_fraction"`
	ReadCount       int        `json:"read_count"`
}

// ReferenceStats is the per-exon baseline computed from the reference cohort.
type ReferenceStats struct {
	ExonID  string  `json:"exon_id"`
	Mean    float64 `json:"mean"`
	Stdev   float64 `json:"stdev"`
	Samples int     `json:"n_samples"`
}

// ZScore is a sample's standardized depth at one exon. Derived per run, never
// persisted: it is recomputable from the depth record and the baseline.
type ZScore struct {
	SampleID        string  `json:"sample_id"`
	ExonID          string  `json:"exon_id"`
	Z               float64 `json:"z"`
	CoveredFraction float64 `json:"covered_fraction"`
}

// ExonCutoffs are the decision boundaries for one exon. Copy numbers 0/1 and
// 3/4 are split at a fixed offset beyond these cutoffs (see homOffset).
type ExonCutoffs struct {
	DeletionZ    float64 `json:"deletion_z"`
	DuplicationZ float64 `json:"duplication_z"`
}

// FitMetrics describe how well a threshold version reproduces its training
// labels.
type FitMetrics struct {
	Concordance     float64 `json:"concordance"`
	MCC             float64 `json:"matthews_correlation"`
	TrainingSamples int     `json:"training_sample_count"`
}

// ThresholdVersion is an immutable published set of per-exon cutoffs.
// Retraining always creates a new version; activation is a separate pointer
// update handled by the store.
type ThresholdVersion struct {
	ID            int64                  `json:"version_id"`
	CreatedAt     time.Time              `json:"created_at"`
	Cutoffs       map[string]ExonCutoffs `json:"per_exon_cutoffs"`
	Metrics       FitMetrics             `json:"fit_metrics"`
	LabelSnapshot string                 `json:"training_label_snapshot_ref"`
}

// TrainingLabel is one MLPA gold-standard result: validated copy numbers for
// both genes of the pair. Read-only input to the trainer.
type TrainingLabel struct {
	SampleID         string `json:"sample_id"`
	Gene1CopyNumber  int    `json:"gene1_copy_number"`
	Gene2CopyNumber  int    `json:"gene2_copy_number"`
	ClinicalLabel    string `json:"clinical_label"`
	ValidationMethod string `json:"validation_method"`
}

// CopyNumberCall is the per-gene output of the caller. CopyNumber is nil for
// a no-call.
type CopyNumberCall struct {
	SampleID           string      `json:"sample_id"`
	Gene               string      `json:"gene"`
	CopyNumber         *int        `json:"copy_number"`
	Confidence         float64     `json:"confidence"`
	Flag               QualityFlag `json:"quality_flag"`
	Source             ExonSource  `json:"exon_source"`
	ThresholdVersionID int64       `json:"threshold_version_id"`
	Reason             string      `json:"reason,omitempty"`
}

// ClinicalInterpretation maps a pair of gene calls to a clinical category.
// Flag is the worst quality flag of the two underlying calls; report
// consumers derive their confidence narrative from it.
type ClinicalInterpretation struct {
	SampleID     string      `json:"sample_id"`
	Category     Category    `json:"category"`
	SeverityHint string      `json:"severity_hint,omitempty"`
	EvidenceRefs []string    `json:"evidence_refs,omitempty"`
	Flag         QualityFlag `json:"quality_flag"`
}

// EvidenceEntry is one population-evidence annotation from the read-only
// cache. Annotative only: it never changes a call or category.
type EvidenceEntry struct {
	Gene                 string `json:"gene"`
	Key                  string `json:"key"`
	Frequency            string `json:"frequency"`
	ClinicalSignificance string `json:"clinical_significance"`
}

// GeneTarget names one gene's primary and fallback exons.
type GeneTarget struct {
	Gene         string `json:"gene"`
	PrimaryExon  string `json:"primary_exon"`
	FallbackExon string `json:"fallback_exon"`
}

// Panel is the two-gene target configuration. Gene1 is the functional gene
// whose loss is causal; Gene2 is the backup paralog whose dosage modulates
// severity.
type Panel struct {
	Gene1 GeneTarget `json:"gene1"`
	Gene2 GeneTarget `json:"gene2"`

	// Expected copy-number range for Gene2 in a NORMAL interpretation.
	Gene2ExpectedMin int `json:"gene2_expected_min"`
	Gene2ExpectedMax int `json:"gene2_expected_max"`
}

// DefaultPanel targets SMN exons 7 and 8, the critical SMA loci. Exon 7 is
// the discriminating exon; exon 8 is the fallback when exon 7 coverage fails.
func DefaultPanel() Panel {
	return Panel{
		Gene1:            GeneTarget{Gene: "SMN1", PrimaryExon: "SMN1_exon7", FallbackExon: "SMN1_exon8"},
		Gene2:            GeneTarget{Gene: "SMN2", PrimaryExon: "SMN2_exon7", FallbackExon: "SMN2_exon8"},
		Gene2ExpectedMin: 1,
		Gene2ExpectedMax: 4,
	}
}

// Exons returns the panel's exon IDs in a stable order.
func (p Panel) Exons() []string {
	return []string{p.Gene1.PrimaryExon, p.Gene1.FallbackExon, p.Gene2.PrimaryExon, p.Gene2.FallbackExon}
}

// GeneFor returns the target whose exons include exonID.
func (p Panel) GeneFor(exonID string) (GeneTarget, bool) {
	switch exonID {
	case p.Gene1.PrimaryExon, p.Gene1.FallbackExon:
		return p.Gene1, true
	case p.Gene2.PrimaryExon, p.Gene2.FallbackExon:
		return p.Gene2, true
	}
	return GeneTarget{}, false
}
