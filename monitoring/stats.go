package monitoring

import (
	"context"
	"sort"
	"sync"
	"time"

	"houseprice/pipeline"
)

// PipelineStats 管道统计
type PipelineStats struct {
	Pipeline    string        `json:"pipeline"`
	Requests    int64         `json:"requests"`
	Succeeded   int64         `json:"succeeded"`
	Failed      int64         `json:"failed"`
	CacheHits   int64         `json:"cache_hits"`
	MeanPrice   float64       `json:"mean_price"`
	MeanLatency time.Duration `json:"mean_latency"`
	LastAt      time.Time     `json:"last_at"`

	priceSum   float64
	latencySum time.Duration
}

// UnknownPipeline collects events for ids that were not registered.
const UnknownPipeline = "unknown"

// Stats 预测统计. It counts every served prediction per registered pipeline;
// requests for any other id share the UnknownPipeline bucket.
type Stats struct {
	mu        sync.Mutex
	started   time.Time
	pipelines map[string]*PipelineStats
}

func NewStats(ids ...string) *Stats {
	s := &Stats{
		started:   time.Now(),
		pipelines: make(map[string]*PipelineStats, len(ids)+1),
	}
	for _, id := range ids {
		s.pipelines[id] = &PipelineStats{Pipeline: id}
	}
	return s
}

func (s *Stats) ObservePrediction(_ context.Context, ev pipeline.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.pipelines[ev.Pipeline]
	if !ok {
		ps, ok = s.pipelines[UnknownPipeline]
		if !ok {
			ps = &PipelineStats{Pipeline: UnknownPipeline}
			s.pipelines[UnknownPipeline] = ps
		}
	}
	ps.Requests++
	if ev.Cached {
		ps.CacheHits++
	}
	if ev.Result.Success && ev.Result.Prediction != nil {
		ps.Succeeded++
		ps.priceSum += *ev.Result.Prediction
		ps.MeanPrice = ps.priceSum / float64(ps.Succeeded)
	} else {
		ps.Failed++
	}
	ps.latencySum += ev.Latency
	ps.MeanLatency = ps.latencySum / time.Duration(ps.Requests)
	ps.LastAt = ev.Time
}

// Snapshot 统计快照
type Snapshot struct {
	Uptime    time.Duration   `json:"uptime"`
	Requests  int64           `json:"requests"`
	Pipelines []PipelineStats `json:"pipelines"`
}

// Snapshot returns a copy of the counters, pipelines sorted by id.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Uptime: time.Since(s.started)}
	for _, ps := range s.pipelines {
		snap.Requests += ps.Requests
		snap.Pipelines = append(snap.Pipelines, *ps)
	}
	sort.Slice(snap.Pipelines, func(i, j int) bool {
		return snap.Pipelines[i].Pipeline < snap.Pipelines[j].Pipeline
	})
	return snap
}
