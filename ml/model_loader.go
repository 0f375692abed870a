package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const (
	ModelRandomForest = "random_forest"
	ModelDecisionTree = "decision_tree"
	ModelLinear       = "linear"
)

// ModelOptions carries the hyperparameters shared by the model family.
type ModelOptions struct {
	Estimators     int
	MaxDepth       int
	MinSamplesLeaf int
	MaxFeatures    int
	MaxSamples     int
	Seed           int64
	Ridge          float64
}

// NewModel returns an untrained model of the given type.
func NewModel(modelType string, opts ModelOptions) (PersistentRegressor, error) {
	switch modelType {
	case ModelRandomForest, "":
		return NewRandomForest(opts), nil
	case ModelDecisionTree:
		return NewRegressionTree(opts.MaxDepth, opts.MinSamplesLeaf), nil
	case ModelLinear:
		return NewLinearRegression(opts.Ridge), nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

// LoadModel reads a trained model of the given type from path.
func LoadModel(modelType, path string) (PersistentRegressor, error) {
	model, err := NewModel(modelType, ModelOptions{})
	if err != nil {
		return nil, err
	}
	if err := model.Load(path); err != nil {
		return nil, fmt.Errorf("load %s model: %w", modelType, err)
	}
	return model, nil
}

// Artifact is a fitted model together with the schema and encoder domains it
// was fitted against. Serving must use these rather than refit encoders,
// otherwise codes shift whenever the serving data differs from the training data.
type Artifact struct {
	Type     string
	Model    Regressor
	Schema   Schema
	Encoders EncoderSet
}

// Validate checks that the model, schema and encoders fit together.
func (a Artifact) Validate() error {
	if a.Model == nil || a.Model.NumFeatures() == 0 {
		return ErrNotTrained
	}
	if len(a.Schema) == 0 {
		return ErrEmptySchema
	}
	if a.Model.NumFeatures() != len(a.Schema) {
		return fmt.Errorf("model expects %d features, schema has %d: %w",
			a.Model.NumFeatures(), len(a.Schema), ErrFeatureWidth)
	}
	for _, col := range a.Schema {
		if base, ok := strings.CutSuffix(col, EncodedSuffix); ok {
			if _, found := a.Encoders[base]; !found {
				return fmt.Errorf("%s: %w", col, ErrMissingEncoder)
			}
		}
	}
	return nil
}

type modelFile struct {
	Type     string              `json:"type"`
	Schema   Schema              `json:"schema"`
	Encoders map[string][]string `json:"encoders"`
	Model    json.RawMessage     `json:"model"`
}

// SaveModel writes the artifact to path.
func SaveModel(path string, a Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(a.Model)
	if err != nil {
		return err
	}
	return saveJSON(path, modelFile{
		Type:     a.Type,
		Schema:   a.Schema,
		Encoders: a.Encoders.Domains(),
		Model:    payload,
	})
}

// ReadModel reads a file written by SaveModel.
func ReadModel(path string) (Artifact, error) {
	var file modelFile
	if err := loadJSON(path, &file); err != nil {
		return Artifact{}, err
	}
	model, err := NewModel(file.Type, ModelOptions{})
	if err != nil {
		return Artifact{}, err
	}
	if err := json.Unmarshal(file.Model, model); err != nil {
		return Artifact{}, fmt.Errorf("decode %s model: %w", file.Type, err)
	}
	encoders, err := EncodersFromDomains(file.Encoders)
	if err != nil {
		return Artifact{}, fmt.Errorf("%s: %w", path, err)
	}
	a := Artifact{Type: file.Type, Model: model, Schema: file.Schema, Encoders: encoders}
	if err := a.Validate(); err != nil {
		return Artifact{}, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

func saveJSON(path string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func loadJSON(path string, v interface{}) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}
