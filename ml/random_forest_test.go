package ml

import (
	"math"
	"path/filepath"
	"testing"
)

func TestRandomForestDeterministic(t *testing.T) {
	features, targets := stepData()

	first := NewRandomForest(ModelOptions{Estimators: 15, MaxDepth: 4, Seed: 7})
	second := NewRandomForest(ModelOptions{Estimators: 15, MaxDepth: 4, Seed: 7})
	if err := first.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := second.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, row := range [][]float64{{2, 0.2}, {11, 0.6}, {7, 0.5}} {
		a, err := first.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, _ := second.Predict(row)
		if a != b {
			t.Fatalf("same seed produced %v and %v", a, b)
		}
		if a < 10 || a > 50 {
			t.Fatalf("prediction %v outside target range", a)
		}
	}
}

func TestRandomForestSaveLoad(t *testing.T) {
	features, targets := stepData()
	model := NewRandomForest(ModelOptions{Estimators: 5, MaxDepth: 3})
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.Seed != defaultSeed || model.Estimators != 5 {
		t.Fatalf("unexpected defaults: seed=%d estimators=%d", model.Seed, model.Estimators)
	}

	path := filepath.Join(t.TempDir(), "forest.json")
	if err := model.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := LoadModel(ModelRandomForest, path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	row := []float64{3, 0.1}
	want, _ := model.Predict(row)
	got, err := loaded.Predict(row)
	if err != nil || math.Abs(got-want) > 1e-9 {
		t.Fatalf("prediction mismatch after load: %v vs %v (%v)", got, want, err)
	}
}

func TestRandomForestUntrained(t *testing.T) {
	if _, err := NewRandomForest(ModelOptions{}).Predict([]float64{1}); err != ErrNotTrained {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
	if err := NewRandomForest(ModelOptions{}).Save(filepath.Join(t.TempDir(), "x.json")); err != ErrNotTrained {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
}
