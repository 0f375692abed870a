package ml

import "errors"

var (
	ErrNotTrained     = errors.New("model not trained")
	ErrEmptyData      = errors.New("features or targets empty")
	ErrSizeMismatch   = errors.New("features and targets size mismatch")
	ErrFeatureWidth   = errors.New("feature vector width does not match model")
	ErrEmptySchema    = errors.New("no candidate feature present in dataset")
	ErrMissingTarget  = errors.New("target column missing from dataset")
	ErrMissingEncoder = errors.New("encoded column has no encoder")

	errInvalidTree = errors.New("invalid tree state")
)

// Table is the read-only tabular view the encoders and matrix builder need.
// A false second result from Value means the cell is missing.
type Table interface {
	Columns() []string
	Len() int
	Value(row int, column string) (string, bool)
}

// Regressor maps a feature vector to a scalar estimate.
type Regressor interface {
	Fit(features [][]float64, targets []float64) error
	Predict(features []float64) (float64, error)
	NumFeatures() int
}

// PersistentRegressor is a Regressor that can be written to and read from disk.
type PersistentRegressor interface {
	Regressor
	Save(path string) error
	Load(path string) error
}
