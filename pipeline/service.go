package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"houseprice/ml"
)

// ErrNonFiniteEstimate is reported when a model yields NaN or an infinity.
var ErrNonFiniteEstimate = errors.New("model returned a non-finite estimate")

// Result 预测结果
type Result struct {
	Success    bool     `json:"success"`
	Prediction *float64 `json:"prediction,omitempty"`
	Message    string   `json:"message,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Event describes one served prediction, successful or not.
type Event struct {
	ID       string            `json:"id"`
	Pipeline string            `json:"pipeline"`
	Input    map[string]string `json:"input"`
	Result   Result            `json:"result"`
	Cached   bool              `json:"cached"`
	Latency  time.Duration     `json:"latency"`
	Time     time.Time         `json:"time"`
}

// Observer receives every prediction event. Implementations must not block.
type Observer interface {
	ObservePrediction(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) ObservePrediction(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Service 预测服务
type Service struct {
	pipelines map[string]*Pipeline
	cache     *lru.Cache[string, float64]
	logger    *zap.Logger

	mu        sync.RWMutex
	observers []Observer
}

// NewService serves the given pipelines. cacheSize <= 0 disables caching.
func NewService(logger *zap.Logger, cacheSize int, pipelines ...*Pipeline) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		pipelines: make(map[string]*Pipeline, len(pipelines)),
		logger:    logger,
	}
	for _, p := range pipelines {
		if _, dup := s.pipelines[p.ID()]; dup {
			return nil, fmt.Errorf("duplicate pipeline %q", p.ID())
		}
		s.pipelines[p.ID()] = p
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, float64](cacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

func (s *Service) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Pipeline returns the pipeline registered under id.
func (s *Service) Pipeline(id string) (*Pipeline, bool) {
	p, ok := s.pipelines[id]
	return p, ok
}

// IDs returns the registered pipeline ids in sorted order.
func (s *Service) IDs() []string {
	ids := make([]string, 0, len(s.pipelines))
	for id := range s.pipelines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Predict estimates the price for raw with pipeline id. It never panics and
// always returns a result.
func (s *Service) Predict(ctx context.Context, id string, raw map[string]string) (res Result) {
	start := time.Now()
	cached := false
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("prediction panicked", zap.String("pipeline", id), zap.Any("panic", r))
			res = s.failure(id, fmt.Errorf("internal error: %v", r))
		}
		s.notify(ctx, Event{
			ID:       uuid.NewString(),
			Pipeline: id,
			Input:    raw,
			Result:   res,
			Cached:   cached,
			Latency:  time.Since(start),
			Time:     start,
		})
	}()

	p, ok := s.pipelines[id]
	if !ok {
		return s.failure(id, fmt.Errorf("unknown pipeline %q", id))
	}

	key := cacheKey(id, raw)
	if s.cache != nil {
		if price, hit := s.cache.Get(key); hit {
			cached = true
			return s.success(p, price)
		}
	}

	estimate, err := p.Predict(raw)
	if err != nil {
		s.logger.Debug("prediction failed", zap.String("pipeline", id), zap.Error(err))
		return s.failure(id, err)
	}
	if math.IsNaN(estimate) || math.IsInf(estimate, 0) {
		s.logger.Warn("model returned non-finite estimate", zap.String("pipeline", id), zap.Float64("estimate", estimate))
		return s.failure(id, ErrNonFiniteEstimate)
	}
	price := Round2(estimate)
	if s.cache != nil {
		s.cache.Add(key, price)
	}
	return s.success(p, price)
}

func (s *Service) success(p *Pipeline, price float64) Result {
	return Result{
		Success:    true,
		Prediction: &price,
		Message:    p.def.Format(price),
	}
}

func (s *Service) failure(id string, err error) Result {
	msg := GeneralDefinition().ErrorMessage
	if p, ok := s.pipelines[id]; ok {
		msg = p.def.ErrorMessage
	}
	return Result{Success: false, Message: msg, Error: err.Error()}
}

func (s *Service) notify(ctx context.Context, ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.observers {
		o.ObservePrediction(ctx, ev)
	}
}

// Options returns the categorical domains of pipeline id.
func (s *Service) Options(id string) (map[string][]string, error) {
	p, ok := s.pipelines[id]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q", id)
	}
	if !p.Trained() {
		return nil, fmt.Errorf("%s: pipeline not trained", id)
	}
	return p.Options(), nil
}

// Status 管道状态
type Status struct {
	ID       string    `json:"id"`
	Trained  bool      `json:"trained"`
	Features int       `json:"features"`
	Schema   ml.Schema `json:"schema,omitempty"`
}

// Status reports every pipeline in id order.
func (s *Service) Status() []Status {
	out := make([]Status, 0, len(s.pipelines))
	for _, id := range s.IDs() {
		p := s.pipelines[id]
		schema := p.Schema()
		out = append(out, Status{ID: id, Trained: p.Trained(), Features: schema.Len(), Schema: schema})
	}
	return out
}

// CacheLen reports how many estimates are cached.
func (s *Service) CacheLen() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Len()
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func cacheKey(id string, raw map[string]string) string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(id)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(raw[k])
	}
	return b.String()
}
