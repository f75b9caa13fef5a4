package depthio

import (
	"strings"

	"github.com/banshee-data/smn.report/internal/cnv"
)

// referencePatterns mark a sample name as belonging to the reference cohort
// when no explicit role accompanies it. Checked in declaration order; the
// first match wins.
var referencePatterns = []string{"ref", "control", "normal_pool", "nist"}

// ResolveRole maps an explicit sample_type value to a role, falling back to
// the name heuristic when the field is empty. Unknown explicit values are
// treated as test rather than guessed at.
func ResolveRole(explicit, sampleName string) cnv.SampleRole {
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case "reference", "ref", "control":
		return cnv.RoleReference
	case "test", "sample", "case":
		return cnv.RoleTest
	case "":
		return RoleFromName(sampleName)
	default:
		return cnv.RoleTest
	}
}

// RoleFromName classifies by filename pattern: first matching pattern wins,
// and a name matching nothing defaults to test. Kept at the edge so the core
// never sees string heuristics.
func RoleFromName(name string) cnv.SampleRole {
	lower := strings.ToLower(name)
	for _, p := range referencePatterns {
		if strings.Contains(lower, p) {
			return cnv.RoleReference
		}
	}
	return cnv.RoleTest
}
