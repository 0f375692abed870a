package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"houseprice/pipeline"
)

var database *sql.DB

var errNotInitialized = errors.New("database not initialized")

// InitDB initializes the SQLite database
func InitDB(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	var err error
	database, err = sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return fmt.Errorf("open database failed: %w", err)
	}
	database.SetMaxOpenConns(4)
	database.SetMaxIdleConns(2)
	database.SetConnMaxLifetime(time.Hour)

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        prediction_id TEXT NOT NULL UNIQUE,
        pipeline VARCHAR(20) NOT NULL,
        input TEXT,
        success INTEGER NOT NULL,
        prediction REAL,
        message TEXT,
        error TEXT,
        cached INTEGER DEFAULT 0,
        latency_us INTEGER,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        pipeline VARCHAR(20) NOT NULL,
        model_name VARCHAR(50),
        rmse REAL,
        mae REAL,
        r2 REAL,
        data_points INTEGER,
        features INTEGER,
        source VARCHAR(20),
        trained_at DATETIME
    );
    `

	_, err = database.Exec(query)
	return err
}

// Close closes the database if it was opened.
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// PredictionRecord is one row of the prediction log.
type PredictionRecord struct {
	ID         string            `json:"id"`
	Pipeline   string            `json:"pipeline"`
	Input      map[string]string `json:"input"`
	Success    bool              `json:"success"`
	Prediction *float64          `json:"prediction,omitempty"`
	Message    string            `json:"message,omitempty"`
	Error      string            `json:"error,omitempty"`
	Cached     bool              `json:"cached"`
	Latency    time.Duration     `json:"latency"`
	CreatedAt  time.Time         `json:"created_at"`
}

// RecordFromEvent converts a served prediction into a log record.
func RecordFromEvent(ev pipeline.Event) PredictionRecord {
	return PredictionRecord{
		ID:         ev.ID,
		Pipeline:   ev.Pipeline,
		Input:      ev.Input,
		Success:    ev.Result.Success,
		Prediction: ev.Result.Prediction,
		Message:    ev.Result.Message,
		Error:      ev.Result.Error,
		Cached:     ev.Cached,
		Latency:    ev.Latency,
		CreatedAt:  ev.Time,
	}
}

func SavePrediction(ctx context.Context, rec PredictionRecord) error {
	if database == nil {
		return errNotInitialized
	}
	input, err := json.Marshal(rec.Input)
	if err != nil {
		return err
	}
	var prediction sql.NullFloat64
	if rec.Prediction != nil {
		prediction = sql.NullFloat64{Float64: *rec.Prediction, Valid: true}
	}
	_, err = database.ExecContext(ctx, `
        INSERT INTO predictions (
            prediction_id, pipeline, input, success, prediction, message, error,
            cached, latency_us, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Pipeline, string(input), rec.Success, prediction, rec.Message, rec.Error,
		rec.Cached, rec.Latency.Microseconds(), rec.CreatedAt.UTC(),
	)
	return err
}

// RecentPredictions returns up to limit predictions, newest first.
func RecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if database == nil {
		return nil, errNotInitialized
	}
	rows, err := database.QueryContext(ctx, `
        SELECT prediction_id, pipeline, input, success, prediction, message, error,
               cached, latency_us, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var (
			rec        PredictionRecord
			input      sql.NullString
			prediction sql.NullFloat64
			message    sql.NullString
			errText    sql.NullString
			latency    int64
		)
		if err := rows.Scan(&rec.ID, &rec.Pipeline, &input, &rec.Success, &prediction, &message, &errText,
			&rec.Cached, &latency, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if input.Valid && input.String != "" {
			if err := json.Unmarshal([]byte(input.String), &rec.Input); err != nil {
				return nil, err
			}
		}
		if prediction.Valid {
			p := prediction.Float64
			rec.Prediction = &p
		}
		rec.Message = message.String
		rec.Error = errText.String
		rec.Latency = time.Duration(latency) * time.Microsecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PrunePredictions deletes predictions older than before and reports how
// many were removed.
func PrunePredictions(ctx context.Context, before time.Time) (int64, error) {
	if database == nil {
		return 0, errNotInitialized
	}
	res, err := database.ExecContext(ctx, `DELETE FROM predictions WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type TrainingLog struct {
	Pipeline   string    `json:"pipeline"`
	ModelName  string    `json:"model_name"`
	RMSE       float64   `json:"rmse"`
	MAE        float64   `json:"mae"`
	R2         float64   `json:"r2"`
	DataPoints int       `json:"data_points"`
	Features   int       `json:"features"`
	Source     string    `json:"source"`
	TrainedAt  time.Time `json:"trained_at"`
}

func SaveTrainingLog(entry TrainingLog) error {
	if database == nil {
		return errNotInitialized
	}
	if entry.TrainedAt.IsZero() {
		entry.TrainedAt = time.Now()
	}
	_, err := database.Exec(`
        INSERT INTO training_log (
            pipeline, model_name, rmse, mae, r2, data_points, features, source, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Pipeline, entry.ModelName, entry.RMSE, entry.MAE, entry.R2,
		entry.DataPoints, entry.Features, entry.Source, entry.TrainedAt.UTC(),
	)
	return err
}

func LoadTrainingLog() ([]TrainingLog, error) {
	if database == nil {
		return nil, errNotInitialized
	}
	rows, err := database.Query(`
        SELECT pipeline, model_name, rmse, mae, r2, data_points, features, source, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.Pipeline, &log.ModelName, &log.RMSE, &log.MAE, &log.R2,
			&log.DataPoints, &log.Features, &log.Source, &log.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// PredictionLogger queues served predictions and writes them from a single
// goroutine so Predict never waits on the database. Events arriving while the
// queue is full are dropped and counted.
type PredictionLogger struct {
	logger  *zap.Logger
	queue   chan PredictionRecord
	done    chan struct{}
	dropped atomic.Int64
}

// NewPredictionLogger buffers up to size records. Run must be started to
// drain them.
func NewPredictionLogger(logger *zap.Logger, size int) *PredictionLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = 1
	}
	return &PredictionLogger{
		logger: logger,
		queue:  make(chan PredictionRecord, size),
		done:   make(chan struct{}),
	}
}

func (p *PredictionLogger) ObservePrediction(_ context.Context, ev pipeline.Event) {
	select {
	case p.queue <- RecordFromEvent(ev):
	default:
		if n := p.dropped.Add(1); n == 1 || n%1000 == 0 {
			p.logger.Warn("prediction log queue full, dropping", zap.Int64("dropped", n))
		}
	}
}

// Run writes queued records until ctx is done, then flushes what is left.
func (p *PredictionLogger) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case rec := <-p.queue:
			p.save(rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-p.queue:
					p.save(rec)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has flushed and returned.
func (p *PredictionLogger) Done() <-chan struct{} {
	return p.done
}

// Dropped reports how many events were discarded because the queue was full.
func (p *PredictionLogger) Dropped() int64 {
	return p.dropped.Load()
}

func (p *PredictionLogger) save(rec PredictionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := SavePrediction(ctx, rec); err != nil {
		p.logger.Warn("save prediction failed", zap.String("id", rec.ID), zap.Error(err))
	}
}
