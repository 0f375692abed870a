package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"houseprice/analytics"
	"houseprice/config"
	"houseprice/dataset"
	"houseprice/db"
	hphttp "houseprice/http"
	"houseprice/logger"
	"houseprice/monitoring"
	"houseprice/pipeline"
)

var args struct {
	Config string `arg:"-c,--config" default:"config.yaml" help:"config file"`
}

func main() {
	arg.MustParse(&args)
	configPath := args.Config

	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, level, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.Watch(ctx, configPath, zl, func(text string) {
		if err := logger.SetLevel(level, text); err != nil {
			zl.Warn("ignoring log level", zap.String("level", text), zap.Error(err))
			return
		}
		zl.Info("log level changed", zap.String("level", text))
	}); err != nil {
		zl.Warn("config watch disabled", zap.Error(err))
	}

	// 2. Initialize database
	if err := db.InitDB(cfg.Database.Path); err != nil {
		zl.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()
	zl.Info("database initialized", zap.String("path", cfg.Database.Path))
	if cfg.Database.Retention > 0 {
		go prunePredictions(ctx, cfg.Database.Retention, zl)
	}

	// 3. Train pipelines
	frame, err := dataset.LoadCSV(cfg.Dataset.Path)
	if err != nil {
		zl.Fatal("failed to load dataset", zap.String("path", cfg.Dataset.Path), zap.Error(err))
	}
	zl.Info("dataset loaded", zap.Int("rows", frame.Len()), zap.Int("columns", len(frame.Columns())))

	pipelines, reports, err := pipeline.TrainAll(ctx, frame, pipeline.Definitions(), pipeline.TrainOptions{
		Model:        cfg.Model.Type,
		ModelOptions: cfg.ModelOptions(),
		OutlierSigma: cfg.Dataset.OutlierSigma,
		ModelDir:     cfg.Model.Dir,
		SampleSeed:   cfg.Dataset.SampleSeed,
	}, zl)
	if err != nil {
		zl.Fatal("failed to train pipelines", zap.Error(err))
	}
	for _, r := range reports {
		if r.Loaded {
			continue
		}
		if err := db.SaveTrainingLog(db.TrainingLog{
			Pipeline:   r.Pipeline,
			ModelName:  r.Model,
			DataPoints: r.Rows - r.Skipped,
			Features:   r.Features,
			Source:     "startup",
		}); err != nil {
			zl.Warn("failed to record training log", zap.Error(err))
		}
	}

	// 4. Wire services
	svc, err := pipeline.NewService(zl, cfg.Cache.Size, pipelines...)
	if err != nil {
		zl.Fatal("failed to build prediction service", zap.Error(err))
	}
	hub := monitoring.NewHub(zl)
	go hub.Run(ctx)
	stats := monitoring.NewStats(svc.IDs()...)
	predictionLog := db.NewPredictionLogger(zl, 1024)
	logCtx, stopLog := context.WithCancel(context.Background())
	defer stopLog()
	go predictionLog.Run(logCtx)
	svc.AddObserver(predictionLog)
	svc.AddObserver(hub)
	svc.AddObserver(stats)

	hphttp.SetPredictor(svc)
	hphttp.SetLiveFeed(hub)
	hphttp.SetStats(stats)
	for _, r := range reports {
		region := "State"
		if r.Pipeline == pipeline.Bengaluru {
			region = "Locality"
		}
		report, err := analytics.Build(r.Data, analytics.DefaultOptions(region))
		if err != nil {
			zl.Warn("analytics unavailable", zap.String("pipeline", r.Pipeline), zap.Error(err))
			continue
		}
		hphttp.SetAnalytics(r.Pipeline, report)
	}

	// 5. Start HTTP server
	server := hphttp.NewServer(hphttp.ServerConfig{
		Port:           cfg.Http.Port,
		ReadTimeout:    cfg.Http.ReadTimeout,
		WriteTimeout:   cfg.Http.WriteTimeout,
		RequestTimeout: cfg.Http.RequestTimeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
	}, zl)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 6. Handle graceful shutdown
	select {
	case <-ctx.Done():
		zl.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			zl.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Http.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}
	hub.Stop()
	stopLog()
	<-predictionLog.Done()
	if n := predictionLog.Dropped(); n > 0 {
		zl.Warn("prediction log dropped events", zap.Int64("dropped", n))
	}
	zl.Info("exiting")
}

// prunePredictions drops logged predictions older than retention once an hour.
func prunePredictions(ctx context.Context, retention time.Duration, zl *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := db.PrunePredictions(ctx, time.Now().Add(-retention))
		if err != nil {
			zl.Warn("prune predictions failed", zap.Error(err))
		} else if n > 0 {
			zl.Info("pruned predictions", zap.Int64("rows", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
