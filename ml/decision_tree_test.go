package ml

import (
	"math"
	"path/filepath"
	"testing"
)

func stepData() ([][]float64, []float64) {
	features := [][]float64{
		{1, 0.2}, {2, 0.1}, {3, 0.4}, {4, 0.3},
		{10, 0.2}, {11, 0.9}, {12, 0.5}, {13, 0.7},
	}
	targets := []float64{10, 10, 10, 10, 50, 50, 50, 50}
	return features, targets
}

func TestRegressionTreeTrainPredict(t *testing.T) {
	features, targets := stepData()

	model := NewRegressionTree(3, 1)
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	low, err := model.Predict([]float64{2.5, 0.3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	high, err := model.Predict([]float64{12.5, 0.3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if low != 10 || high != 50 {
		t.Fatalf("expected 10/50, got %v/%v", low, high)
	}
	if model.Depth() > 3 {
		t.Fatalf("depth %d exceeds limit", model.Depth())
	}
}

func TestRegressionTreeErrors(t *testing.T) {
	model := NewRegressionTree(0, 0)
	if _, err := model.Predict([]float64{1}); err != ErrNotTrained {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
	if err := model.Fit(nil, nil); err != ErrEmptyData {
		t.Fatalf("expected ErrEmptyData, got %v", err)
	}
	if err := model.Fit([][]float64{{1}}, []float64{1, 2}); err != ErrSizeMismatch {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}

	features, targets := stepData()
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := model.Predict([]float64{1}); err != ErrFeatureWidth {
		t.Fatalf("expected ErrFeatureWidth, got %v", err)
	}
}

func TestRegressionTreeSaveLoad(t *testing.T) {
	features, targets := stepData()
	model := NewRegressionTree(4, 1)
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "tree.json")
	if err := model.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := LoadModel(ModelDecisionTree, path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.NumFeatures() != 2 {
		t.Fatalf("expected 2 features, got %d", loaded.NumFeatures())
	}
	for _, row := range features {
		want, _ := model.Predict(row)
		got, err := loaded.Predict(row)
		if err != nil || math.Abs(got-want) > 1e-9 {
			t.Fatalf("prediction mismatch after load: %v vs %v (%v)", got, want, err)
		}
	}
}

func TestRegressionTreeSplitsBetweenClusters(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}}
	targets := []float64{0, 0, 0, 10, 10, 10}
	model := NewRegressionTree(1, 1)
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for x, want := range map[float64]float64{1: 0, 3: 0, 4: 10, 6: 10} {
		got, err := model.Predict([]float64{x})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("Predict(%v) = %v, want %v", x, got, want)
		}
	}
}
