package ml

import (
	"encoding/json"
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const defaultRidge = 1e-6

// LinearRegression is an ordinary least squares fit with an intercept. A small
// ridge term keeps the normal equations solvable when encoded columns are
// collinear.
type LinearRegression struct {
	Ridge float64

	intercept    float64
	coefficients []float64
}

type linearState struct {
	Ridge        float64   `json:"ridge"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func NewLinearRegression(ridge float64) *LinearRegression {
	if ridge <= 0 {
		ridge = defaultRidge
	}
	return &LinearRegression{Ridge: ridge}
}

func (lr *LinearRegression) Fit(features [][]float64, targets []float64) error {
	if err := validateTrainingSet(features, targets); err != nil {
		return err
	}
	n, p := len(features), len(features[0])

	// Columns are standardised before solving and the weights mapped back.
	means := make([]float64, p)
	scales := make([]float64, p)
	column := make([]float64, n)
	for j := 0; j < p; j++ {
		for i, row := range features {
			column[i] = row[j]
		}
		means[j], scales[j] = stat.MeanStdDev(column, nil)
		if scales[j] == 0 || math.IsNaN(scales[j]) {
			scales[j] = 1
		}
	}

	x := mat.NewDense(n, p+1, nil)
	for i, row := range features {
		x.Set(i, 0, 1)
		for j, v := range row {
			x.Set(i, j+1, (v-means[j])/scales[j])
		}
	}
	y := mat.NewVecDense(n, append([]float64(nil), targets...))

	gram := mat.NewSymDense(p+1, nil)
	gram.SymOuterK(1, x.T())
	for j := 1; j <= p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+lr.Ridge*float64(n))
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return errors.New("linear regression: normal equations not positive definite")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return err
	}

	lr.intercept = beta.AtVec(0)
	lr.coefficients = make([]float64, p)
	for j := range lr.coefficients {
		lr.coefficients[j] = beta.AtVec(j+1) / scales[j]
		lr.intercept -= lr.coefficients[j] * means[j]
	}
	return nil
}

func (lr *LinearRegression) Predict(features []float64) (float64, error) {
	if lr.coefficients == nil {
		return 0, ErrNotTrained
	}
	if len(features) != len(lr.coefficients) {
		return 0, ErrFeatureWidth
	}
	return lr.intercept + mat.Dot(mat.NewVecDense(len(features), features), mat.NewVecDense(len(lr.coefficients), lr.coefficients)), nil
}

func (lr *LinearRegression) NumFeatures() int {
	return len(lr.coefficients)
}

// Coefficients returns the fitted weights in schema order.
func (lr *LinearRegression) Coefficients() []float64 {
	return append([]float64(nil), lr.coefficients...)
}

func (lr *LinearRegression) Intercept() float64 {
	return lr.intercept
}

func (lr *LinearRegression) Save(path string) error {
	if lr.coefficients == nil {
		return ErrNotTrained
	}
	return saveJSON(path, lr)
}

func (lr *LinearRegression) Load(path string) error {
	return loadJSON(path, lr)
}

func (lr *LinearRegression) MarshalJSON() ([]byte, error) {
	return json.Marshal(linearState{
		Ridge:        lr.Ridge,
		Intercept:    lr.intercept,
		Coefficients: lr.coefficients,
	})
}

func (lr *LinearRegression) UnmarshalJSON(data []byte) error {
	var state linearState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	lr.Ridge = state.Ridge
	lr.intercept = state.Intercept
	lr.coefficients = state.Coefficients
	return nil
}
