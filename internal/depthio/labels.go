package depthio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/smn.report/internal/cnv"
)

// labelAliases maps legacy MLPA export headers onto the canonical names.
var labelAliases = map[string]string{
	"smn1_copy_number":        "gene1_copy_number",
	"smn2_copy_number":        "gene2_copy_number",
	"clinical_interpretation": "clinical_label",
}

// ReadLabelsTSV parses the MLPA gold-standard table: sample_id,
// gene1_copy_number, gene2_copy_number, clinical_label, validation_method.
// Legacy SMN1/SMN2 headers are accepted. Copy-number cells may be integers
// or the lab's dosage-ratio shorthand (see parseMLPACopyNumber).
func ReadLabelsTSV(r io.Reader) ([]cnv.TrainingLabel, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read label header: %w", err)
	}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if canonical, ok := labelAliases[h]; ok {
			h = canonical
		}
		header[i] = h
	}
	col := headerIndex(header)
	for _, required := range []string{"sample_id", "gene1_copy_number", "gene2_copy_number"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("label input missing column %q", required)
		}
	}

	var out []cnv.TrainingLabel
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("label input line %d: %w", line+1, err)
		}
		line++

		label := cnv.TrainingLabel{
			SampleID:         field(row, col, "sample_id"),
			ClinicalLabel:    field(row, col, "clinical_label"),
			ValidationMethod: field(row, col, "validation_method"),
		}
		if label.SampleID == "" {
			return nil, fmt.Errorf("label input line %d: missing sample_id", line)
		}
		if label.ValidationMethod == "" {
			label.ValidationMethod = "MLPA"
		}
		if label.Gene1CopyNumber, err = parseMLPACopyNumber(field(row, col, "gene1_copy_number")); err != nil {
			return nil, fmt.Errorf("label input line %d: gene1: %w", line, err)
		}
		if label.Gene2CopyNumber, err = parseMLPACopyNumber(field(row, col, "gene2_copy_number")); err != nil {
			return nil, fmt.Errorf("label input line %d: gene2: %w", line, err)
		}
		out = append(out, label)
	}
	return out, nil
}

// parseMLPACopyNumber converts an MLPA cell into an integer copy number.
// Labs export either integers, textual hom/het annotations, or probe dosage
// ratios (1.0 = two copies), all of which appear in historical truth sets.
func parseMLPACopyNumber(v string) (int, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch {
	case v == "":
		return 2, nil
	case strings.Contains(v, "homo del"):
		return 0, nil
	case strings.Contains(v, "hetro del"), strings.Contains(v, "het del"):
		return 1, nil
	case strings.Contains(v, "hetro dup"), strings.Contains(v, "het dup"):
		return 3, nil
	case strings.Contains(v, "homo dup"):
		return 4, nil
	}

	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("copy number %d is negative", n)
		}
		return n, nil
	}

	ratio, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognized copy-number value %q", v)
	}
	switch {
	case ratio < 0.3:
		return 0, nil
	case ratio < 0.7:
		return 1, nil
	case ratio < 1.3:
		return 2, nil
	case ratio < 1.9:
		return 3, nil
	default:
		return 4, nil
	}
}
