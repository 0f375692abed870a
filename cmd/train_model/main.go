package main

import (
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/alexflint/go-arg"

	"houseprice/config"
	"houseprice/dataset"
	"houseprice/db"
	"houseprice/ml"
	"houseprice/pipeline"
)

type args struct {
	Config       string   `arg:"-c,--config" default:"config.yaml" help:"config file"`
	Dataset      string   `arg:"-d,--dataset" help:"listings csv, overrides the config"`
	Pipelines    []string `arg:"-p,--pipeline,separate" help:"pipelines to train (default all)"`
	Models       []string `arg:"-m,--model,separate" help:"candidate model types (default linear, decision_tree, random_forest)"`
	ModelDir     string   `arg:"-o,--model-dir" default:"models" help:"directory the best model is written to"`
	TestRatio    float64  `arg:"--test-ratio" default:"0.2" help:"held-out fraction"`
	Seed         int64    `arg:"--seed" default:"42" help:"split and sampling seed"`
	OutlierSigma float64  `arg:"--outlier-sigma" default:"3" help:"drop prices above mean + sigma*std, 0 disables"`
	NoLog        bool     `arg:"--no-log" help:"do not record results in the training log"`
}

func (args) Description() string {
	return "Trains candidate models per pipeline, reports RMSE, MAE and R2 on a held-out split and saves the best by RMSE."
}

type candidate struct {
	artifact ml.Artifact
	metrics  ml.Metrics
}

func main() {
	var a args
	arg.MustParse(&a)

	cfg, err := config.Load(a.Config)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if a.Dataset != "" {
		cfg.Dataset.Path = a.Dataset
	}
	if len(a.Models) == 0 {
		a.Models = []string{ml.ModelLinear, ml.ModelDecisionTree, ml.ModelRandomForest}
	}

	frame, err := dataset.LoadCSV(cfg.Dataset.Path)
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}
	log.Printf("loaded %d rows from %s", frame.Len(), cfg.Dataset.Path)

	if !a.NoLog {
		if err := db.InitDB(cfg.Database.Path); err != nil {
			log.Fatalf("failed to initialize database: %v", err)
		}
		defer db.Close()
	}
	if err := os.MkdirAll(a.ModelDir, 0o755); err != nil {
		log.Fatalf("failed to create model dir: %v", err)
	}

	for _, def := range selectDefinitions(a.Pipelines) {
		best, err := trainPipeline(def, frame, cfg, a)
		if err != nil {
			log.Fatalf("%s: %v", def.ID, err)
		}
		path := pipeline.ModelPath(a.ModelDir, def.ID)
		if err := ml.SaveModel(path, best.artifact); err != nil {
			log.Fatalf("%s: failed to save model: %v", def.ID, err)
		}
		fmt.Printf("%s: best model %s (rmse=%.4f) saved to %s\n", def.ID, best.artifact.Type, best.metrics.RMSE, path)
	}
}

func selectDefinitions(ids []string) []pipeline.Definition {
	all := pipeline.Definitions()
	if len(ids) == 0 {
		return all
	}
	var out []pipeline.Definition
	for _, id := range ids {
		found := false
		for _, def := range all {
			if def.ID == id {
				out = append(out, def)
				found = true
			}
		}
		if !found {
			log.Fatalf("unknown pipeline %q", id)
		}
	}
	return out
}

func trainPipeline(def pipeline.Definition, frame *dataset.Frame, cfg *config.Config, a args) (candidate, error) {
	data, report, err := pipeline.Prepare(def, frame, pipeline.TrainOptions{
		OutlierSigma: a.OutlierSigma,
		SampleSeed:   a.Seed,
	})
	if err != nil {
		return candidate{}, err
	}
	log.Printf("%s: %d rows after cleaning (%d rejected, fallback=%v)",
		def.ID, data.Len(), report.Cleaning.Rejected, report.Fallback)

	schema := ml.BuildSchema(data.Columns(), def.Table.NumericalColumns(), def.Table.CategoricalColumns())
	encoders := ml.FitEncoders(data, def.Table.CategoricalColumns())
	set, err := ml.BuildTrainingSet(data, schema, encoders, def.Target)
	if err != nil {
		return candidate{}, err
	}
	trainX, trainY, testX, testY := ml.TrainTestSplit(set.Features, set.Targets, a.TestRatio, a.Seed)
	log.Printf("%s: %d features, %d train / %d test rows", def.ID, schema.Len(), len(trainX), len(testX))

	opts := cfg.ModelOptions()
	opts.Seed = a.Seed
	var results []candidate
	for _, modelType := range a.Models {
		model, err := ml.NewModel(modelType, opts)
		if err != nil {
			return candidate{}, err
		}
		start := time.Now()
		if err := model.Fit(trainX, trainY); err != nil {
			return candidate{}, fmt.Errorf("fit %s: %w", modelType, err)
		}
		metrics := ml.Evaluate(model, testX, testY)
		log.Printf("%s: %-14s rmse=%.4f mae=%.4f r2=%.4f (%v)",
			def.ID, modelType, metrics.RMSE, metrics.MAE, metrics.R2, time.Since(start).Round(time.Millisecond))
		results = append(results, candidate{
			artifact: ml.Artifact{Type: modelType, Model: model, Schema: schema, Encoders: encoders},
			metrics:  metrics,
		})

		if !a.NoLog {
			entry := db.TrainingLog{
				Pipeline:   def.ID,
				ModelName:  modelType,
				RMSE:       metrics.RMSE,
				MAE:        metrics.MAE,
				R2:         metrics.R2,
				DataPoints: len(set.Features),
				Features:   schema.Len(),
				Source:     "train_model",
			}
			if err := db.SaveTrainingLog(entry); err != nil {
				log.Printf("failed to record training log: %v", err)
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].metrics.RMSE < results[j].metrics.RMSE
	})
	return results[0], nil
}
