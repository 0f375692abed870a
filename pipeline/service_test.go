package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"houseprice/ml"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) ObservePrediction(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type panicModel struct{ width int }

func (m panicModel) Fit([][]float64, []float64) error { return nil }
func (m panicModel) Predict([]float64) (float64, error) { panic("boom") }
func (m panicModel) NumFeatures() int                   { return m.width }

type constModel struct {
	width int
	value float64
}

func (m constModel) Fit([][]float64, []float64) error { return nil }
func (m constModel) Predict([]float64) (float64, error) { return m.value, nil }
func (m constModel) NumFeatures() int                   { return m.width }

// bindModel serves model with the schema and encoders of a general pipeline.
func bindModel(t *testing.T, model ml.Regressor) *Pipeline {
	t.Helper()
	artifact, err := trained(t, GeneralDefinition(), listings(t, 20)).Artifact("fake")
	if err != nil {
		t.Fatal(err)
	}
	artifact.Model = model
	p := New(GeneralDefinition())
	if err := p.Bind(artifact); err != nil {
		t.Fatal(err)
	}
	return p
}

func newTestService(t *testing.T, cacheSize int) *Service {
	t.Helper()
	frame := listings(t, 90)
	general := trained(t, GeneralDefinition(), frame)
	city := trained(t, BengaluruDefinition(), frame)
	svc, err := NewService(nil, cacheSize, general, city)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestServicePredict(t *testing.T) {
	svc := newTestService(t, 0)
	ctx := context.Background()

	tests := []struct {
		name        string
		pipeline    string
		raw         map[string]string
		wantSuccess bool
		wantMessage string
	}{
		{
			name:        "maharashtra apartment",
			pipeline:    General,
			raw:         map[string]string{"bhk": "3", "size": "1500", "state": "Maharashtra", "property_type": "Apartment"},
			wantSuccess: true,
			wantMessage: "Predicted house price: ₹",
		},
		{
			name:        "unseen state",
			pipeline:    General,
			raw:         map[string]string{"bhk": "3", "size": "1500", "state": "Atlantis"},
			wantSuccess: true,
			wantMessage: "Predicted house price: ₹",
		},
		{
			name:        "all defaults",
			pipeline:    General,
			raw:         map[string]string{},
			wantSuccess: true,
			wantMessage: "Predicted house price: ₹",
		},
		{
			name:        "bengaluru",
			pipeline:    Bengaluru,
			raw:         map[string]string{"bhk": "2", "locality": "Whitefield"},
			wantSuccess: true,
			wantMessage: "Predicted Bengaluru house price: ₹",
		},
		{
			name:        "malformed bhk",
			pipeline:    General,
			raw:         map[string]string{"bhk": "not-a-number"},
			wantMessage: "Error in prediction. Please check your inputs.",
		},
		{
			name:        "malformed bengaluru size",
			pipeline:    Bengaluru,
			raw:         map[string]string{"size": "big"},
			wantMessage: "Error in Bengaluru prediction. Please check your inputs.",
		},
		{
			name:        "unknown pipeline",
			pipeline:    "mumbai",
			raw:         map[string]string{},
			wantMessage: "Error in prediction. Please check your inputs.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.Predict(ctx, tt.pipeline, tt.raw)
			if res.Success != tt.wantSuccess {
				t.Fatalf("Success = %v, want %v (error %q)", res.Success, tt.wantSuccess, res.Error)
			}
			if !strings.HasPrefix(res.Message, tt.wantMessage) {
				t.Errorf("Message = %q, want prefix %q", res.Message, tt.wantMessage)
			}
			if !tt.wantSuccess {
				if res.Error == "" {
					t.Error("Error is empty on failure")
				}
				if res.Prediction != nil {
					t.Errorf("Prediction = %v on failure", *res.Prediction)
				}
				return
			}
			if res.Prediction == nil {
				t.Fatal("Prediction is nil on success")
			}
			p := *res.Prediction
			if math.Abs(p*100-math.Round(p*100)) > 1e-6 {
				t.Errorf("Prediction %v not rounded to 2 decimals", p)
			}
			if !strings.HasSuffix(res.Message, " Lakhs") {
				t.Errorf("Message = %q", res.Message)
			}
		})
	}
}

func TestServiceMalformedNumericNamesField(t *testing.T) {
	svc := newTestService(t, 0)
	res := svc.Predict(context.Background(), General, map[string]string{"bhk": "not-a-number"})
	if !strings.Contains(res.Error, "bhk") || !strings.Contains(res.Error, "not-a-number") {
		t.Errorf("Error = %q, want field and value", res.Error)
	}
}

func TestServiceUntrainedPipeline(t *testing.T) {
	svc, err := NewService(nil, 0, New(GeneralDefinition()))
	if err != nil {
		t.Fatal(err)
	}
	res := svc.Predict(context.Background(), General, nil)
	if res.Success || !strings.Contains(res.Error, ml.ErrNotTrained.Error()) {
		t.Errorf("Predict() = %+v", res)
	}
	if _, err := svc.Options(General); err == nil {
		t.Error("Options() on untrained pipeline expected error")
	}
}

func TestServiceRecoversPanic(t *testing.T) {
	p := bindModel(t, panicModel{width: 18})
	svc, err := NewService(nil, 0, p)
	if err != nil {
		t.Fatal(err)
	}
	res := svc.Predict(context.Background(), General, nil)
	if res.Success || !strings.Contains(res.Error, "boom") {
		t.Errorf("Predict() = %+v", res)
	}
}

func TestServiceNonFiniteInput(t *testing.T) {
	svc := newTestService(t, 16)
	for _, raw := range []map[string]string{
		{"bhk": "NaN"},
		{"size": "Inf"},
		{"year_built": "-inf"},
	} {
		for _, id := range []string{General, Bengaluru} {
			res := svc.Predict(context.Background(), id, raw)
			if res.Success || res.Prediction != nil || res.Error == "" {
				t.Errorf("Predict(%s, %v) = %+v, want failure", id, raw, res)
			}
		}
	}
}

func TestServiceNonFiniteEstimate(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		svc, err := NewService(nil, 16, bindModel(t, constModel{width: 18, value: v}))
		if err != nil {
			t.Fatal(err)
		}
		rec := &recorder{}
		svc.AddObserver(rec)
		res := svc.Predict(context.Background(), General, map[string]string{"bhk": "2"})
		if res.Success || res.Prediction != nil || !strings.Contains(res.Error, ErrNonFiniteEstimate.Error()) {
			t.Errorf("Predict() with estimate %v = %+v", v, res)
		}
		if res.Message != GeneralDefinition().ErrorMessage {
			t.Errorf("Message = %q", res.Message)
		}
		if svc.CacheLen() != 0 {
			t.Errorf("non-finite estimate was cached")
		}
		if _, err := json.Marshal(rec.events[0]); err != nil {
			t.Errorf("event does not encode: %v", err)
		}
	}
}

func TestServiceConcurrentPredict(t *testing.T) {
	frame := listings(t, 90)
	general := trained(t, GeneralDefinition(), frame)
	city := trained(t, BengaluruDefinition(), frame)
	reference, err := NewService(nil, 0, general, city)
	if err != nil {
		t.Fatal(err)
	}
	// a cache smaller than the input set keeps evicting under load
	svc, err := NewService(nil, 2, general, city)
	if err != nil {
		t.Fatal(err)
	}
	svc.AddObserver(&recorder{})

	inputs := []struct {
		id  string
		raw map[string]string
	}{
		{General, map[string]string{"bhk": "2", "size": "900"}},
		{General, map[string]string{"bhk": "4", "state": "Goa", "size": "2000"}},
		{General, map[string]string{"state": "Atlantis"}},
		{Bengaluru, map[string]string{"locality": "Whitefield", "bhk": "3"}},
		{Bengaluru, map[string]string{"size": "1200"}},
		{Bengaluru, map[string]string{"bhk": "x"}},
	}
	ctx := context.Background()
	want := make([]Result, len(inputs))
	for i, in := range inputs {
		want[i] = reference.Predict(ctx, in.id, in.raw)
	}

	const workers = 16
	const rounds = 50
	var wg sync.WaitGroup
	errs := make(chan string, workers*rounds)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				i := (w + r) % len(inputs)
				got := svc.Predict(ctx, inputs[i].id, inputs[i].raw)
				if !sameResult(got, want[i]) {
					errs <- fmt.Sprintf("input %d: got %+v, want %+v", i, got, want[i])
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}
}

func sameResult(a, b Result) bool {
	if a.Success != b.Success || a.Message != b.Message || a.Error != b.Error {
		return false
	}
	if (a.Prediction == nil) != (b.Prediction == nil) {
		return false
	}
	return a.Prediction == nil || *a.Prediction == *b.Prediction
}

func TestServiceCacheAndObservers(t *testing.T) {
	svc := newTestService(t, 16)
	rec := &recorder{}
	svc.AddObserver(rec)
	ctx := context.Background()

	raw := map[string]string{"bhk": "2", "size": "800"}
	first := svc.Predict(ctx, General, raw)
	second := svc.Predict(ctx, General, map[string]string{"size": "800", "bhk": "2"})
	if !first.Success || !second.Success || *first.Prediction != *second.Prediction {
		t.Fatalf("predictions differ: %+v %+v", first, second)
	}
	if svc.CacheLen() != 1 {
		t.Errorf("CacheLen() = %d, want 1", svc.CacheLen())
	}
	svc.Predict(ctx, General, map[string]string{"bhk": "x"})

	if len(rec.events) != 3 {
		t.Fatalf("observed %d events, want 3", len(rec.events))
	}
	if rec.events[0].Cached || !rec.events[1].Cached {
		t.Errorf("Cached flags = %v, %v", rec.events[0].Cached, rec.events[1].Cached)
	}
	if rec.events[2].Result.Success {
		t.Error("third event should be a failure")
	}
	if rec.events[0].ID == "" || rec.events[0].ID == rec.events[1].ID {
		t.Error("event ids must be unique")
	}
}

func TestServiceDuplicatePipeline(t *testing.T) {
	if _, err := NewService(nil, 0, New(GeneralDefinition()), New(GeneralDefinition())); err == nil {
		t.Error("NewService() with duplicate ids expected error")
	}
}

func TestServiceIDsAndOptions(t *testing.T) {
	svc := newTestService(t, 0)
	ids := svc.IDs()
	if len(ids) != 2 || ids[0] != Bengaluru || ids[1] != General {
		t.Errorf("IDs() = %v", ids)
	}
	opts, err := svc.Options(General)
	if err != nil {
		t.Fatal(err)
	}
	if got := opts["state"]; len(got) != 4 || got[0] != "Delhi" {
		t.Errorf("Options()[state] = %v", got)
	}
	if _, err := svc.Options("nowhere"); err == nil {
		t.Error("Options() unknown id expected error")
	}
}

func TestRound2(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{123.456, 123.46},
		{123.454, 123.45},
		{-1.005, -1},
		{7, 7},
	}
	for _, tt := range tests {
		if got := Round2(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
