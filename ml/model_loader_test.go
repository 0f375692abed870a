package ml

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewModel(t *testing.T) {
	tests := []struct {
		modelType string
		wantErr   bool
	}{
		{"", false},
		{ModelRandomForest, false},
		{ModelDecisionTree, false},
		{ModelLinear, false},
		{"svm", true},
	}
	for _, tt := range tests {
		t.Run(tt.modelType, func(t *testing.T) {
			model, err := NewModel(tt.modelType, ModelOptions{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewModel(%q) error = %v, wantErr %v", tt.modelType, err, tt.wantErr)
			}
			if !tt.wantErr && model.NumFeatures() != 0 {
				t.Errorf("untrained model reports %d features", model.NumFeatures())
			}
		})
	}
}

func stepArtifact(t *testing.T, modelType string) Artifact {
	t.Helper()
	features, targets := stepData()
	model, err := NewModel(modelType, ModelOptions{Estimators: 4, MaxDepth: 3})
	if err != nil {
		t.Fatal(err)
	}
	if err := model.Fit(features, targets); err != nil {
		t.Fatal(err)
	}
	return Artifact{
		Type:     modelType,
		Model:    model,
		Schema:   Schema{"Size_in_SqFt", "State_encoded"},
		Encoders: EncoderSet{"State": FitCategoricalEncoder([]string{"Goa", "Delhi", ""})},
	}
}

func TestSaveReadModel(t *testing.T) {
	features, _ := stepData()
	for _, modelType := range []string{ModelRandomForest, ModelDecisionTree, ModelLinear} {
		t.Run(modelType, func(t *testing.T) {
			saved := stepArtifact(t, modelType)
			path := filepath.Join(t.TempDir(), "model.json")
			if err := SaveModel(path, saved); err != nil {
				t.Fatalf("SaveModel() error = %v", err)
			}

			loaded, err := ReadModel(path)
			if err != nil {
				t.Fatalf("ReadModel() error = %v", err)
			}
			if loaded.Type != modelType || loaded.Model.NumFeatures() != saved.Model.NumFeatures() {
				t.Errorf("ReadModel() = %s with %d features", loaded.Type, loaded.Model.NumFeatures())
			}
			if !loaded.Schema.Equal(saved.Schema) {
				t.Errorf("Schema = %v, want %v", loaded.Schema, saved.Schema)
			}
			for _, v := range []string{"Delhi", "Goa", MissingToken} {
				want, _ := saved.Encoders.Lookup("State", v)
				got, ok := loaded.Encoders.Lookup("State", v)
				if !ok || got != want {
					t.Errorf("Lookup(%q) = %d, %v; want %d", v, got, ok, want)
				}
			}
			row := features[3]
			want, _ := saved.Model.Predict(row)
			got, err := loaded.Model.Predict(row)
			if err != nil || got != want {
				t.Errorf("Predict() = %v, %v; want %v", got, err, want)
			}
		})
	}
}

func TestSaveModelRejectsInconsistentArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")

	wide := stepArtifact(t, ModelDecisionTree)
	wide.Schema = Schema{"BHK", "Size_in_SqFt", "State_encoded"}
	if err := SaveModel(path, wide); !errors.Is(err, ErrFeatureWidth) {
		t.Errorf("width mismatch error = %v, want ErrFeatureWidth", err)
	}

	noEncoder := stepArtifact(t, ModelDecisionTree)
	noEncoder.Encoders = EncoderSet{}
	if err := SaveModel(path, noEncoder); !errors.Is(err, ErrMissingEncoder) {
		t.Errorf("missing encoder error = %v, want ErrMissingEncoder", err)
	}
}

func TestReadModelErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	saved := filepath.Join(dir, "tree.json")
	if err := SaveModel(saved, stepArtifact(t, ModelDecisionTree)); err != nil {
		t.Fatal(err)
	}
	var file map[string]json.RawMessage
	payload, err := os.ReadFile(saved)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(payload, &file); err != nil {
		t.Fatal(err)
	}
	tree := string(file["model"])

	tests := []struct {
		name string
		body string
		want error
	}{
		{"unknown type", `{"type":"svm","model":{}}`, nil},
		{"untrained", `{"type":"decision_tree","schema":["A"],"model":{}}`, ErrNotTrained},
		{"no schema", `{"type":"decision_tree","model":` + tree + `}`, ErrEmptySchema},
		{"no encoders", `{"type":"decision_tree","schema":["Size_in_SqFt","State_encoded"],"model":` + tree + `}`, ErrMissingEncoder},
		{"unsorted domain", `{"type":"decision_tree","schema":["Size_in_SqFt","State_encoded"],` +
			`"encoders":{"State":["Goa","Delhi"]},"model":` + tree + `}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadModel(write(tt.name+".json", tt.body))
			if err == nil {
				t.Fatal("ReadModel() expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("ReadModel() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := ReadModel(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}
}
