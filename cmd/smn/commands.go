package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/smn.report/internal/cnv"
	"github.com/banshee-data/smn.report/internal/config"
	"github.com/banshee-data/smn.report/internal/db"
	"github.com/banshee-data/smn.report/internal/depthio"
)

// openStore opens the sqlite store and brings its schema up to date.
func openStore(path string) (*db.DB, error) {
	store, err := db.OpenDB(path)
	if err != nil {
		return nil, err
	}
	fsys, err := db.MigrationsFS()
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := store.MigrateUp(fsys); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// loadDepthRecords accepts a depth TSV file or a directory of per-sample
// *_depth_results.json documents.
func loadDepthRecords(path string) ([]cnv.ExonDepthRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if strings.HasSuffix(path, ".json") {
			return depthio.ReadDepthJSON(f)
		}
		return depthio.ReadDepthTSV(f)
	}

	matches, err := filepath.Glob(filepath.Join(path, "*_depth_results.json"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no *_depth_results.json documents in %s", path)
	}
	var records []cnv.ExonDepthRecord
	for _, m := range matches {
		f, err := os.Open(m)
		if err != nil {
			return nil, err
		}
		recs, err := depthio.ReadDepthJSON(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
		records = append(records, recs...)
	}
	return records, nil
}

func loadLabels(path string) ([]cnv.TrainingLabel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return depthio.ReadLabelsTSV(f)
}

func runCall(args []string) error {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	dbPath := fs.String("db", "smn.db", "sqlite store path")
	depthPath := fs.String("depth", "", "depth TSV file or directory of depth JSON documents")
	tuningPath := fs.String("tuning", "", "tuning JSON file (optional)")
	jsonOut := fs.Bool("json", false, "emit full per-sample JSON instead of the summary table")
	fs.Parse(args)

	if *depthPath == "" {
		return errors.New("-depth is required")
	}
	tuning, err := config.LoadTuning(*tuningPath)
	if err != nil {
		return err
	}
	records, err := loadDepthRecords(*depthPath)
	if err != nil {
		return err
	}

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	tv, err := store.ActiveThresholdVersion(ctx)
	if err != nil {
		return fmt.Errorf("no usable thresholds, run `smn train` first: %w", err)
	}

	pipeline := &cnv.Pipeline{
		Baseline:    tuning.BaselineOptions(),
		Call:        tuning.CallConfig(),
		Interpreter: cnv.NewInterpreter(tuning.CallConfig().Panel, store),
	}
	pipeline.Interpreter.EvidenceTimeout = tuning.EvidenceTimeoutDuration()

	run, err := pipeline.Run(ctx, records, tv)
	if err != nil {
		return err
	}
	if err := store.RecordRun(ctx, run); err != nil {
		return fmt.Errorf("persist run %s: %w", run.RunID, err)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}
	printRunTable(run, tuning.CallConfig().Panel)
	return nil
}

func printRunTable(run *cnv.RunResult, panel cnv.Panel) {
	fmt.Printf("run %s (threshold version %d)\n", run.RunID, run.ThresholdVersionID)
	fmt.Printf("sample_id\t%s_cn\t%s_cn\tcategory\tquality_flag\tconfidence\tthreshold_version\n",
		strings.ToLower(panel.Gene1.Gene), strings.ToLower(panel.Gene2.Gene))
	for _, res := range run.Results {
		g1, g2 := "NA", "NA"
		conf := 1.0
		for i, call := range res.Calls {
			if call.Confidence < conf {
				conf = call.Confidence
			}
			if call.CopyNumber == nil {
				continue
			}
			if i == 0 {
				g1 = strconv.Itoa(*call.CopyNumber)
			} else {
				g2 = strconv.Itoa(*call.CopyNumber)
			}
		}
		fmt.Printf("%s\t%s\t%s\t%s\t%s\t%.3f\t%d\n",
			res.SampleID, g1, g2, res.Interpretation.Category, res.Interpretation.Flag,
			conf, run.ThresholdVersionID)
	}
}

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	dbPath := fs.String("db", "smn.db", "sqlite store path")
	depthPath := fs.String("depth", "", "depth TSV file or directory of depth JSON documents")
	labelsPath := fs.String("labels", "", "MLPA truth TSV")
	tuningPath := fs.String("tuning", "", "tuning JSON file (optional)")
	force := fs.Bool("force", false, "retrain even if the active version is fresh")
	fs.Parse(args)

	if *depthPath == "" || *labelsPath == "" {
		return errors.New("-depth and -labels are required")
	}
	tuning, err := config.LoadTuning(*tuningPath)
	if err != nil {
		return err
	}
	records, err := loadDepthRecords(*depthPath)
	if err != nil {
		return err
	}
	labels, err := loadLabels(*labelsPath)
	if err != nil {
		return err
	}

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	baselines := cnv.ComputeBaselines(records, tuning.BaselineOptions())
	zscores := cnv.NormalizeAll(records, baselines)

	trainer := cnv.NewTrainer(store, tuning.TrainOptions())
	tv, err := trainer.Retrain(context.Background(), zscores, labels, *force)
	if err != nil {
		if errors.Is(err, cnv.ErrInsufficientTrainingData) && tv != nil {
			fmt.Printf("retrain skipped (%v); version %d stays active\n", err, tv.ID)
			return nil
		}
		return err
	}
	fmt.Printf("active threshold version %d: MCC %.3f, concordance %.3f, %d training samples\n",
		tv.ID, tv.Metrics.MCC, tv.Metrics.Concordance, tv.Metrics.TrainingSamples)
	return nil
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	dbPath := fs.String("db", "smn.db", "sqlite store path")
	depthPath := fs.String("depth", "", "depth TSV file or directory of depth JSON documents")
	labelsPath := fs.String("labels", "", "MLPA truth TSV")
	tuningPath := fs.String("tuning", "", "tuning JSON file (optional)")
	fs.Parse(args)

	if *depthPath == "" || *labelsPath == "" {
		return errors.New("-depth and -labels are required")
	}
	tuning, err := config.LoadTuning(*tuningPath)
	if err != nil {
		return err
	}
	records, err := loadDepthRecords(*depthPath)
	if err != nil {
		return err
	}
	labels, err := loadLabels(*labelsPath)
	if err != nil {
		return err
	}

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	tv, err := store.ActiveThresholdVersion(ctx)
	if err != nil {
		return err
	}

	pipeline := &cnv.Pipeline{
		Baseline:    tuning.BaselineOptions(),
		Call:        tuning.CallConfig(),
		Interpreter: cnv.NewInterpreter(tuning.CallConfig().Panel, nil),
	}
	run, err := pipeline.Run(ctx, records, tv)
	if err != nil {
		return err
	}

	report := cnv.ValidateAgainstLabels(run.Results, labels, tuning.CallConfig().Panel)
	fmt.Println(report.Summary())
	return nil
}

func runEvidence(args []string) error {
	fs := flag.NewFlagSet("evidence", flag.ExitOnError)
	dbPath := fs.String("db", "smn.db", "sqlite store path")
	filePath := fs.String("file", "", "JSON array of evidence entries")
	fs.Parse(args)

	if *filePath == "" {
		return errors.New("-file is required")
	}
	data, err := os.ReadFile(*filePath)
	if err != nil {
		return err
	}
	var entries []cnv.EvidenceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse evidence file %s: %w", *filePath, err)
	}

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.UpsertEvidence(context.Background(), entries); err != nil {
		return err
	}
	fmt.Printf("loaded %d evidence entries\n", len(entries))
	return nil
}

func runVersions(args []string) error {
	fs := flag.NewFlagSet("versions", flag.ExitOnError)
	dbPath := fs.String("db", "smn.db", "sqlite store path")
	fs.Parse(args)

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	versions, err := store.ListThresholdVersions(ctx)
	if err != nil {
		return err
	}
	activeID := int64(-1)
	if active, err := store.ActiveThresholdVersion(ctx); err == nil {
		activeID = active.ID
	}

	for _, tv := range versions {
		marker := " "
		if tv.ID == activeID {
			marker = "*"
		}
		fmt.Printf("%s v%d  %s  MCC %.3f  concordance %.3f  n=%d  labels %s\n",
			marker, tv.ID, tv.CreatedAt.Format("2006-01-02 15:04"),
			tv.Metrics.MCC, tv.Metrics.Concordance, tv.Metrics.TrainingSamples,
			shortHash(tv.LabelSnapshot))
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", "smn.db", "sqlite store path")
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) < 1 {
		return errors.New("usage: smn migrate [-db path] <up|down|status|force N>")
	}

	store, err := db.OpenDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	fsys, err := db.MigrationsFS()
	if err != nil {
		return err
	}

	switch rest[0] {
	case "up":
		return store.MigrateUp(fsys)
	case "down":
		return store.MigrateDown(fsys)
	case "status":
		v, dirty, err := store.MigrateVersion(fsys)
		if err != nil {
			return err
		}
		fmt.Printf("schema version %d (dirty=%v)\n", v, dirty)
		return nil
	case "force":
		if len(rest) < 2 {
			return errors.New("usage: smn migrate force <version>")
		}
		v, err := strconv.Atoi(rest[1])
		if err != nil {
			return fmt.Errorf("bad version %q: %w", rest[1], err)
		}
		return store.MigrateForce(fsys, v)
	default:
		return fmt.Errorf("unknown migrate action %q", rest[0])
	}
}
