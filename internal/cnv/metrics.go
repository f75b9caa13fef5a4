package cnv

import "math"

// ConfusionMatrix accumulates true-vs-predicted class counts over a fixed
// class count.
type ConfusionMatrix struct {
	n      int
	counts [][]int
	total  int
}

// NewConfusionMatrix returns a matrix for classes 0..n-1.
func NewConfusionMatrix(n int) *ConfusionMatrix {
	counts := make([][]int, n)
	for i := range counts {
		counts[i] = make([]int, n)
	}
	return &ConfusionMatrix{n: n, counts: counts}
}

// Add records one observation.
func (m *ConfusionMatrix) Add(truth, predicted int) {
	m.counts[truth][predicted]++
	m.total++
}

// Concordance is the fraction of observations on the diagonal.
func (m *ConfusionMatrix) Concordance() float64 {
	if m.total == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < m.n; i++ {
		correct += m.counts[i][i]
	}
	return float64(correct) / float64(m.total)
}

// MCC computes the multiclass Matthews correlation coefficient (the R_K
// statistic). It stays informative under the heavy class imbalance expected
// here, where affected samples are rare. Returns 0 when either margin is
// constant (the coefficient is undefined there).
func (m *ConfusionMatrix) MCC() float64 {
	if m.total == 0 {
		return 0
	}
	s := float64(m.total)
	correct := 0
	predTotals := make([]float64, m.n)
	trueTotals := make([]float64, m.n)
	for i := 0; i < m.n; i++ {
		correct += m.counts[i][i]
		for j := 0; j < m.n; j++ {
			trueTotals[i] += float64(m.counts[i][j])
			predTotals[j] += float64(m.counts[i][j])
		}
	}
	c := float64(correct)

	var dot, pSq, tSq float64
	for k := 0; k < m.n; k++ {
		dot += predTotals[k] * trueTotals[k]
		pSq += predTotals[k] * predTotals[k]
		tSq += trueTotals[k] * trueTotals[k]
	}
	denom := math.Sqrt(s*s-pSq) * math.Sqrt(s*s-tSq)
	if denom == 0 {
		return 0
	}
	return (c*s - dot) / denom
}
