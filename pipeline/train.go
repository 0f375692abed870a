package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"houseprice/dataset"
	"houseprice/ml"
)

// TrainOptions 训练配置
type TrainOptions struct {
	Model        string
	ModelOptions ml.ModelOptions
	// OutlierSigma drops rows whose target exceeds mean + sigma*std. Zero disables.
	OutlierSigma float64
	// ModelDir, when set, is searched for <id>.json before training and
	// receives the fitted model afterwards. A persisted model keeps its own
	// type, schema and encoder domains regardless of Model and the data.
	ModelDir   string
	SampleSeed int64
}

// Report 训练报告
type Report struct {
	Pipeline string                `json:"pipeline"`
	Model    string                `json:"model"`
	Rows     int                   `json:"rows"`
	Skipped  int                   `json:"skipped"`
	Features int                   `json:"features"`
	Fallback bool                  `json:"fallback"`
	Loaded   bool                  `json:"loaded"`
	Cleaning dataset.CleaningStats `json:"cleaning"`
	Duration time.Duration         `json:"duration"`
	// Data is the cleaned frame the pipeline was built from.
	Data *dataset.Frame `json:"-"`
}

// ModelPath is where the model of pipeline id is persisted under dir.
func ModelPath(dir, id string) string {
	return filepath.Join(dir, id+".json")
}

// Prepare selects and cleans the training rows for def.
func Prepare(def Definition, frame *dataset.Frame, opts TrainOptions) (*dataset.Frame, Report, error) {
	report := Report{Pipeline: def.ID}
	subset := frame
	if def.Filter != "" {
		flt, err := dataset.CompileFilter(def.Filter)
		if err != nil {
			return nil, report, err
		}
		subset, err = frame.Where(flt)
		if err != nil {
			return nil, report, err
		}
		if subset.Len() == 0 && def.FallbackSample > 0 {
			subset = frame.Sample(def.FallbackSample, opts.SampleSeed)
			if def.FallbackColumn != "" {
				subset = subset.WithColumn(def.FallbackColumn, def.FallbackValue)
			}
			report.Fallback = true
		}
	}

	cleaner := dataset.NewDataCleaner(dataset.NewRequiredColumnsRule(def.Required...))
	if opts.OutlierSigma > 0 {
		cleaner.AddRule(dataset.NewOutlierRule(def.Target, opts.OutlierSigma))
	}
	cleaned, stats, err := cleaner.Clean(subset)
	report.Cleaning = stats
	if err != nil {
		return nil, report, fmt.Errorf("%s: %w", def.ID, err)
	}
	return cleaned, report, nil
}

// TrainOne prepares data for def and trains, or binds a persisted model.
func TrainOne(def Definition, frame *dataset.Frame, opts TrainOptions, logger *zap.Logger) (*Pipeline, Report, error) {
	start := time.Now()
	data, report, err := Prepare(def, frame, opts)
	if err != nil {
		return nil, report, err
	}
	report.Model = opts.Model
	if report.Model == "" {
		report.Model = ml.ModelRandomForest
	}
	if report.Fallback {
		logger.Warn("filter matched no rows, using sample",
			zap.String("pipeline", def.ID), zap.Int("rows", data.Len()))
	}

	p := New(def)
	if artifact, ok, err := loadPersisted(opts, def.ID); err != nil {
		return nil, report, err
	} else if ok {
		if err := p.Bind(artifact); err != nil {
			return nil, report, err
		}
		report.Model = artifact.Type
		report.Loaded = true
	} else {
		model, err := ml.NewModel(report.Model, opts.ModelOptions)
		if err != nil {
			return nil, report, err
		}
		set, err := p.Train(data, model)
		if err != nil {
			return nil, report, err
		}
		report.Skipped = set.Skipped
		if opts.ModelDir != "" {
			if err := save(p, report.Model, opts.ModelDir); err != nil {
				return nil, report, err
			}
		}
	}

	report.Rows = data.Len()
	report.Data = data
	report.Features = p.Schema().Len()
	report.Duration = time.Since(start)
	for _, col := range def.Placeholders {
		if p.Schema().Index(col) >= 0 {
			logger.Warn("feature served as constant placeholder at prediction time",
				zap.String("pipeline", def.ID), zap.String("column", col))
		}
	}
	logger.Info("pipeline ready",
		zap.String("pipeline", def.ID),
		zap.String("model", report.Model),
		zap.Int("rows", report.Rows),
		zap.Int("features", report.Features),
		zap.Bool("loaded", report.Loaded),
		zap.Duration("duration", report.Duration))
	return p, report, nil
}

func loadPersisted(opts TrainOptions, id string) (ml.Artifact, bool, error) {
	if opts.ModelDir == "" {
		return ml.Artifact{}, false, nil
	}
	path := ModelPath(opts.ModelDir, id)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return ml.Artifact{}, false, nil
	}
	artifact, err := ml.ReadModel(path)
	if err != nil {
		return ml.Artifact{}, false, fmt.Errorf("%s: %w", id, err)
	}
	return artifact, true, nil
}

func save(p *Pipeline, modelType, dir string) error {
	artifact, err := p.Artifact(modelType)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := ml.SaveModel(ModelPath(dir, p.ID()), artifact); err != nil {
		return fmt.Errorf("%s: save model: %w", p.ID(), err)
	}
	return nil
}

// TrainAll trains every definition concurrently. Pipelines are returned in
// definition order.
func TrainAll(ctx context.Context, frame *dataset.Frame, defs []Definition, opts TrainOptions, logger *zap.Logger) ([]*Pipeline, []Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pipelines := make([]*Pipeline, len(defs))
	reports := make([]Report, len(defs))

	g, ctx := errgroup.WithContext(ctx)
	for i, def := range defs {
		i, def := i, def
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, report, err := TrainOne(def, frame, opts, logger)
			if err != nil {
				return err
			}
			pipelines[i] = p
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return pipelines, reports, nil
}
