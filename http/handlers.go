package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"sync"
	"time"

	"houseprice/analytics"
	"houseprice/db"
	"houseprice/monitoring"
	"houseprice/pipeline"
)

// Predictor serves price estimates.
type Predictor interface {
	Predict(ctx context.Context, id string, raw map[string]string) pipeline.Result
	Options(id string) (map[string][]string, error)
	Status() []pipeline.Status
}

var (
	mu        sync.RWMutex
	predictor Predictor
	reports   = map[string]*analytics.Report{}
	liveFeed  http.Handler
	stats     *monitoring.Stats
	startedAt = time.Now()

	recentPredictions = db.RecentPredictions
	loadTrainingLog   = db.LoadTrainingLog
)

// SetPredictor 设置预测服务
func SetPredictor(p Predictor) {
	mu.Lock()
	defer mu.Unlock()
	predictor = p
}

// SetAnalytics 设置管道分析报告
func SetAnalytics(id string, report *analytics.Report) {
	mu.Lock()
	defer mu.Unlock()
	if report == nil {
		delete(reports, id)
		return
	}
	reports[id] = report
}

// SetLiveFeed 设置实时推送处理器
func SetLiveFeed(h http.Handler) {
	mu.Lock()
	defer mu.Unlock()
	liveFeed = h
}

// SetStats 设置预测统计
func SetStats(s *monitoring.Stats) {
	mu.Lock()
	defer mu.Unlock()
	stats = s
}

func currentPredictor() Predictor {
	mu.RLock()
	defer mu.RUnlock()
	return predictor
}

func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", handleHealth)

	// 预测
	mux.HandleFunc("POST /predict", handlePredictFor(pipeline.General))
	mux.HandleFunc("POST /predict_bengaluru", handlePredictFor(pipeline.Bengaluru))
	mux.HandleFunc("POST /api/predict/{pipeline}", handlePredict)

	// 管道信息
	mux.HandleFunc("GET /api/options/{pipeline}", handleOptions)
	mux.HandleFunc("GET /api/analytics/{pipeline}", handleAnalytics)
	mux.HandleFunc("GET /api/bengaluru_localities", handleLocalities)

	// 预测记录
	mux.HandleFunc("GET /api/predictions", handlePredictions)
	mux.HandleFunc("GET /api/training_log", handleTrainingLog)
	mux.HandleFunc("GET /api/stats", handleStats)
	mux.HandleFunc("GET /api/ws/predictions", handleLiveFeed)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(startedAt).Round(time.Second).String(),
	}
	if p := currentPredictor(); p != nil {
		resp["pipelines"] = p.Status()
	}
	respondJSON(w, http.StatusOK, resp)
}

func handlePredictFor(id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		servePrediction(w, r, id)
	}
}

func handlePredict(w http.ResponseWriter, r *http.Request) {
	servePrediction(w, r, r.PathValue("pipeline"))
}

// servePrediction always answers 200 with a result body; failures are
// reported through success=false.
func servePrediction(w http.ResponseWriter, r *http.Request, id string) {
	p := currentPredictor()
	if p == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("prediction service not ready"))
		return
	}
	raw, err := parseInput(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondJSON(w, http.StatusOK, p.Predict(r.Context(), id, raw))
}

// parseInput reads a JSON object or a form body into raw string fields.
func parseInput(r *http.Request) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("invalid json body: %w", err)
		}
		raw := make(map[string]string, len(body))
		for k, v := range body {
			switch val := v.(type) {
			case nil:
			case string:
				raw[k] = val
			case float64:
				raw[k] = strconv.FormatFloat(val, 'f', -1, 64)
			case bool:
				raw[k] = strconv.FormatBool(val)
			default:
				return nil, fmt.Errorf("field %s must be a scalar", k)
			}
		}
		return raw, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form body: %w", err)
	}
	raw := make(map[string]string, len(r.PostForm))
	for k, vs := range r.PostForm {
		if len(vs) > 0 {
			raw[k] = vs[0]
		}
	}
	return raw, nil
}

func handleOptions(w http.ResponseWriter, r *http.Request) {
	p := currentPredictor()
	if p == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("prediction service not ready"))
		return
	}
	opts, err := p.Options(r.PathValue("pipeline"))
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	respondJSON(w, http.StatusOK, opts)
}

func handleAnalytics(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("pipeline")
	mu.RLock()
	report, ok := reports[id]
	mu.RUnlock()
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Errorf("no analytics for pipeline %q", id))
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func handleLocalities(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, pipeline.BengaluruLocalities)
}

func handlePredictions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", limitStr))
			return
		}
		if l > 1000 {
			l = 1000
		}
		limit = l
	}

	records, err := recentPredictions(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(records),
		"data":  records,
	})
}

func handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	logs, err := loadTrainingLog()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

func handleStats(w http.ResponseWriter, r *http.Request) {
	mu.RLock()
	s := stats
	mu.RUnlock()
	if s == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("stats not enabled"))
		return
	}
	respondJSON(w, http.StatusOK, s.Snapshot())
}

func handleLiveFeed(w http.ResponseWriter, r *http.Request) {
	mu.RLock()
	h := liveFeed
	mu.RUnlock()
	if h == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("live feed not enabled"))
		return
	}
	h.ServeHTTP(w, r)
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, pipeline.Result{Success: false, Error: err.Error()})
}
