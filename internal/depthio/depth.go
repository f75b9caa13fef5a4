// Package depthio parses the engine's edge inputs: per-exon depth summaries
// from the upstream depth extractor and MLPA gold-standard label tables. All
// string heuristics (role resolution, header aliases) live here so the core
// packages only see validated records.
package depthio

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/smn.report/internal/cnv"
)

// ReadDepthTSV parses tab-separated depth records. Expected header:
// sample_id, sample_type, exon_id, gene, mean_depth, covered_fraction,
// read_count. Column order is free; unknown columns are ignored.
func ReadDepthTSV(r io.Reader) ([]cnv.ExonDepthRecord, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read depth header: %w", err)
	}
	col := headerIndex(header)
	for _, required := range []string{"sample_id", "exon_id", "mean_depth", "covered_fraction"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("depth input missing column %q", required)
		}
	}

	var out []cnv.ExonDepthRecord
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("depth input line %d: %w", line+1, err)
		}
		line++

		rec := cnv.ExonDepthRecord{
			SampleID: field(row, col, "sample_id"),
			ExonID:   field(row, col, "exon_id"),
			Gene:     field(row, col, "gene"),
		}
		rec.Role = ResolveRole(field(row, col, "sample_type"), rec.SampleID)

		if rec.MeanDepth, err = parseFloatField(row, col, "mean_depth"); err != nil {
			return nil, fmt.Errorf("depth input line %d: %w", line, err)
		}
		if rec.CoveredFraction, err = parseFloatField(row, col, "covered_fraction"); err != nil {
			return nil, fmt.Errorf("depth input line %d: %w", line, err)
		}
		if v := field(row, col, "read_count"); v != "" {
			if rec.ReadCount, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("depth input line %d: read_count: %w", line, err)
			}
		}
		if err := validateRecord(rec); err != nil {
			return nil, fmt.Errorf("depth input line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// depthDocument is the per-sample JSON document shape emitted by the depth
// extractor.
type depthDocument struct {
	SampleID   string `json:"sample_id"`
	SampleType string `json:"sample_type"`
	DepthData  map[string]struct {
		Gene             string  `json:"gene"`
		MeanDepth        float64 `json:"mean_depth"`
		CoverageFraction float64 `json:"coverage_fraction"`
		ReadCount        int     `json:"read_count"`
	} `json:"depth_data"`
}

// ReadDepthJSON parses one per-sample depth document.
func ReadDepthJSON(r io.Reader) ([]cnv.ExonDepthRecord, error) {
	var doc depthDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode depth document: %w", err)
	}
	if doc.SampleID == "" {
		return nil, fmt.Errorf("depth document has no sample_id")
	}
	role := ResolveRole(doc.SampleType, doc.SampleID)

	var out []cnv.ExonDepthRecord
	for exon, d := range doc.DepthData {
		gene := d.Gene
		if gene == "" {
			// Exon IDs are GENE_exonN; the gene prefix is authoritative when
			// the document omits the field.
			gene = strings.SplitN(exon, "_", 2)[0]
		}
		rec := cnv.ExonDepthRecord{
			SampleID:        doc.SampleID,
			ExonID:          exon,
			Gene:            gene,
			Role:            role,
			MeanDepth:       d.MeanDepth,
			CoveredFraction: d.CoverageFraction,
			ReadCount:       d.ReadCount,
		}
		if err := validateRecord(rec); err != nil {
			return nil, fmt.Errorf("depth document sample %s: %w", doc.SampleID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func validateRecord(rec cnv.ExonDepthRecord) error {
	if rec.SampleID == "" || rec.ExonID == "" {
		return fmt.Errorf("record missing sample_id or exon_id")
	}
	if rec.MeanDepth < 0 {
		return fmt.Errorf("exon %s: mean_depth %.2f is negative", rec.ExonID, rec.MeanDepth)
	}
	if rec.CoveredFraction < 0 || rec.CoveredFraction > 1 {
		return fmt.Errorf("exon %s: covered_fraction %.2f outside [0,1]", rec.ExonID, rec.CoveredFraction)
	}
	if rec.ReadCount < 0 {
		return fmt.Errorf("exon %s: read_count %d is negative", rec.ExonID, rec.ReadCount)
	}
	return nil
}

func headerIndex(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return col
}

func field(row []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseFloatField(row []string, col map[string]int, name string) (float64, error) {
	v := field(row, col, name)
	if v == "" {
		return 0, fmt.Errorf("missing %s", name)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}
