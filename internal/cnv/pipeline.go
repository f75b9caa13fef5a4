package cnv

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/smn.report/internal/monitoring"
)

// SampleResult bundles everything the reporting layer needs for one sample.
type SampleResult struct {
	SampleID       string                 `json:"sample_id"`
	Calls          []CopyNumberCall       `json:"calls"`
	Interpretation ClinicalInterpretation `json:"interpretation"`
}

// RunResult is the consolidated output of one batch run: one SampleResult per
// test sample, sorted by sample ID for reproducible output.
type RunResult struct {
	RunID              string           `json:"run_id"`
	ThresholdVersionID int64            `json:"threshold_version_id"`
	Results            []SampleResult   `json:"results"`
	BaselineErrors     map[string]error `json:"-"`
}

// Whole-run precondition failures. Everything below sample granularity
// degrades the sample instead.
var (
	ErrNoDepthRecords    = errors.New("no depth records ingested")
	ErrNoReferenceCohort = errors.New("no reference cohort present")
)

// Pipeline runs normalization, calling, and interpretation for a batch of
// samples. Samples are independent once baselines and the threshold version
// are fixed, so they fan out over a bounded worker pool with no shared
// mutable state.
type Pipeline struct {
	Baseline    BaselineOptions
	Call        CallConfig
	Interpreter *Interpreter

	// Workers bounds the pool; <=0 uses GOMAXPROCS.
	Workers int
}

// NewPipeline wires a pipeline with default options.
func NewPipeline(ev EvidenceSource) *Pipeline {
	cfg := DefaultCallConfig()
	return &Pipeline{
		Baseline:    DefaultBaselineOptions(),
		Call:        cfg,
		Interpreter: NewInterpreter(cfg.Panel, ev),
	}
}

// Run classifies every test sample in records against the given threshold
// version. Reference samples contribute to the baseline only. Per-sample and
// per-exon failures surface in that sample's quality flags and reasons; only
// the whole-run preconditions abort.
func (p *Pipeline) Run(ctx context.Context, records []ExonDepthRecord, tv *ThresholdVersion) (*RunResult, error) {
	if len(records) == 0 {
		return nil, ErrNoDepthRecords
	}
	hasReference := false
	for _, r := range records {
		if r.Role == RoleReference {
			hasReference = true
			break
		}
	}
	if !hasReference {
		return nil, ErrNoReferenceCohort
	}

	baselines := ComputeBaselines(records, p.Baseline)
	for exon, err := range baselines.Failed {
		monitoring.Logf("baseline unavailable for %s: %v", exon, err)
	}

	bySample := make(map[string][]ExonDepthRecord)
	for _, r := range records {
		if r.Role != RoleTest {
			continue
		}
		bySample[r.SampleID] = append(bySample[r.SampleID], r)
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	tasks := make(chan []ExonDepthRecord)
	results := make(chan SampleResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for recs := range tasks {
				results <- p.runSample(ctx, recs, baselines, tv)
			}
		}()
	}
	go func() {
		defer close(tasks)
		for _, recs := range bySample {
			select {
			case tasks <- recs:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	run := &RunResult{
		RunID:              uuid.NewString(),
		ThresholdVersionID: tv.ID,
		BaselineErrors:     baselines.Failed,
	}
	for res := range results {
		run.Results = append(run.Results, res)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(run.Results, func(i, j int) bool {
		return run.Results[i].SampleID < run.Results[j].SampleID
	})
	return run, nil
}

func (p *Pipeline) runSample(ctx context.Context, records []ExonDepthRecord, baselines Baselines, tv *ThresholdVersion) SampleResult {
	sampleID := records[0].SampleID
	zscores, failed := NormalizeSample(records, baselines)
	for exon, err := range failed {
		monitoring.Logf("sample %s: exon %s not normalizable: %v", sampleID, exon, err)
	}

	calls := Call(sampleID, zscores, tv, p.Call)
	p.annotateNormalizationFailures(calls, failed)

	interp := p.Interpreter.Interpret(ctx, calls[0], calls[1])
	return SampleResult{SampleID: sampleID, Calls: calls, Interpretation: interp}
}

// annotateNormalizationFailures folds normalization failure detail into
// no-call reasons so a degenerate baseline is distinguishable from plain low
// coverage in the output.
func (p *Pipeline) annotateNormalizationFailures(calls []CopyNumberCall, failed map[string]error) {
	if len(failed) == 0 {
		return
	}
	exons := make([]string, 0, len(failed))
	for exon := range failed {
		exons = append(exons, exon)
	}
	sort.Strings(exons)
	for i := range calls {
		if calls[i].Flag != FlagFail {
			continue
		}
		for _, exon := range exons {
			target, ok := p.Call.Panel.GeneFor(exon)
			if !ok || target.Gene != calls[i].Gene {
				continue
			}
			calls[i].Reason = fmt.Sprintf("%s; %s: %v", calls[i].Reason, exon, failed[exon])
		}
	}
}
