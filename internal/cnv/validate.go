package cnv

import (
	"fmt"
	"sort"
)

// Discordance is one disagreement between a produced call and its MLPA truth.
type Discordance struct {
	SampleID string `json:"sample_id"`
	Gene     string `json:"gene"`
	Called   *int   `json:"called_copy_number"`
	MLPA     int    `json:"mlpa_copy_number"`
}

// ValidationReport summarizes how a run's calls agree with MLPA truth.
type ValidationReport struct {
	Compared    int           `json:"compared"`
	Concordance float64       `json:"concordance"`
	MCC         float64       `json:"matthews_correlation"`
	Discordant  []Discordance `json:"discordant"`
}

// ValidateAgainstLabels compares a run's copy-number calls against MLPA
// truth, tier by tier. No-calls count as discordant when a label exists:
// a sample the lab could classify but the pipeline could not is a real
// disagreement, not a skip.
func ValidateAgainstLabels(results []SampleResult, labels []TrainingLabel, panel Panel) ValidationReport {
	labelBySample := make(map[string]TrainingLabel, len(labels))
	for _, l := range labels {
		labelBySample[l.SampleID] = l
	}

	m := NewConfusionMatrix(tierCount)
	var report ValidationReport
	for _, res := range results {
		label, ok := labelBySample[res.SampleID]
		if !ok {
			continue
		}
		for _, call := range res.Calls {
			truth := label.Gene1CopyNumber
			if call.Gene == panel.Gene2.Gene {
				truth = label.Gene2CopyNumber
			}
			report.Compared++
			if call.CopyNumber == nil {
				report.Discordant = append(report.Discordant, Discordance{
					SampleID: res.SampleID, Gene: call.Gene, Called: nil, MLPA: truth,
				})
				continue
			}
			m.Add(tierForCopyNumber(truth), tierForCopyNumber(*call.CopyNumber))
			if tierForCopyNumber(truth) != tierForCopyNumber(*call.CopyNumber) {
				report.Discordant = append(report.Discordant, Discordance{
					SampleID: res.SampleID, Gene: call.Gene, Called: call.CopyNumber, MLPA: truth,
				})
			}
		}
	}
	if report.Compared > 0 {
		noCalls := 0
		for _, d := range report.Discordant {
			if d.Called == nil {
				noCalls++
			}
		}
		scored := report.Compared - noCalls
		if scored > 0 {
			// Concordance is over all compared calls; no-calls drag it down.
			report.Concordance = m.Concordance() * float64(scored) / float64(report.Compared)
		}
		report.MCC = m.MCC()
	}
	sort.Slice(report.Discordant, func(i, j int) bool {
		if report.Discordant[i].SampleID != report.Discordant[j].SampleID {
			return report.Discordant[i].SampleID < report.Discordant[j].SampleID
		}
		return report.Discordant[i].Gene < report.Discordant[j].Gene
	})
	return report
}

// Summary renders the report as a short human-readable block for the run log.
func (r ValidationReport) Summary() string {
	s := fmt.Sprintf("compared %d calls: concordance %.3f, MCC %.3f, %d discordant",
		r.Compared, r.Concordance, r.MCC, len(r.Discordant))
	for _, d := range r.Discordant {
		called := "no-call"
		if d.Called != nil {
			called = fmt.Sprintf("%d", *d.Called)
		}
		s += fmt.Sprintf("\n  %s %s: called %s, MLPA %d", d.SampleID, d.Gene, called, d.MLPA)
	}
	return s
}
