package cnv

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/smn.report/internal/monitoring"
)

// EvidenceSource is the optional read-only population-evidence collaborator.
// Lookups are annotative: results attach to the interpretation but never
// change the category. Implementations must respect the context deadline.
type EvidenceSource interface {
	EvidenceForGene(ctx context.Context, gene string) ([]EvidenceEntry, error)
}

// Interpreter maps a pair of gene calls to a clinical category.
type Interpreter struct {
	Panel Panel

	// Evidence may be nil; interpretation then proceeds unannotated.
	Evidence EvidenceSource

	// EvidenceTimeout bounds the evidence lookup. A timeout or cache miss
	// degrades gracefully to an unannotated interpretation.
	EvidenceTimeout time.Duration
}

// NewInterpreter wires an interpreter with the default 2s evidence budget.
func NewInterpreter(panel Panel, ev EvidenceSource) *Interpreter {
	return &Interpreter{Panel: panel, Evidence: ev, EvidenceTimeout: 2 * time.Second}
}

// Interpret derives the clinical category from the gene pair. The decision is
// the tier table alone; population evidence only annotates. The worst quality
// flag of the two calls becomes the interpretation's flag, so a degraded call
// is always visible to report consumers.
func (in *Interpreter) Interpret(ctx context.Context, gene1, gene2 CopyNumberCall) ClinicalInterpretation {
	out := ClinicalInterpretation{
		SampleID: gene1.SampleID,
		Flag:     worstFlag(gene1.Flag, gene2.Flag),
	}

	if gene1.Flag == FlagFail || gene2.Flag == FlagFail || gene1.CopyNumber == nil || gene2.CopyNumber == nil {
		out.Category = CategoryUncertain
		return in.annotate(ctx, out)
	}

	g1, g2 := *gene1.CopyNumber, *gene2.CopyNumber
	switch {
	case g1 == 0:
		out.Category = CategoryAffected
		out.SeverityHint = severityHint(g2)
	case g1 == 1:
		out.Category = CategoryCarrier
	case g2 >= in.Panel.Gene2ExpectedMin && g2 <= in.Panel.Gene2ExpectedMax:
		out.Category = CategoryNormal
	default:
		// Atypical pattern: normal functional gene with the backup paralog
		// outside its expected range.
		out.Category = CategoryUncertain
		out.SeverityHint = fmt.Sprintf("atypical %s=%d, %s=%d pattern", gene1.Gene, g1, gene2.Gene, g2)
	}
	return in.annotate(ctx, out)
}

// severityHint reflects the backup paralog's dosage effect: more copies of
// the partially functional gene predict a milder phenotype.
func severityHint(gene2CN int) string {
	switch {
	case gene2CN <= 2:
		return "severe (consistent with type I)"
	case gene2CN == 3:
		return "intermediate (consistent with type II-III)"
	default:
		return "mild (consistent with type III-IV)"
	}
}

func (in *Interpreter) annotate(ctx context.Context, out ClinicalInterpretation) ClinicalInterpretation {
	if in.Evidence == nil {
		return out
	}
	timeout := in.EvidenceTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, gene := range []string{in.Panel.Gene1.Gene, in.Panel.Gene2.Gene} {
		entries, err := in.Evidence.EvidenceForGene(ctx, gene)
		if err != nil {
			monitoring.Logf("population evidence unavailable for %s, interpreting without it: %v", gene, err)
			continue
		}
		for _, e := range entries {
			out.EvidenceRefs = append(out.EvidenceRefs, e.Key)
		}
	}
	return out
}

// worstFlag orders PASS < WARNING < FAIL.
func worstFlag(a, b QualityFlag) QualityFlag {
	rank := func(f QualityFlag) int {
		switch f {
		case FlagFail:
			return 2
		case FlagWarning:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
