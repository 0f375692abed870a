package ml

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Metrics summarises regression quality on a held-out set.
type Metrics struct {
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
	N    int     `json:"n"`
}

// Evaluate scores model on the given rows. Rows the model rejects are skipped.
func Evaluate(model Regressor, features [][]float64, targets []float64) Metrics {
	estimates := make([]float64, 0, len(features))
	actual := make([]float64, 0, len(features))
	for i, row := range features {
		v, err := model.Predict(row)
		if err != nil {
			continue
		}
		estimates = append(estimates, v)
		actual = append(actual, targets[i])
	}
	return Score(estimates, actual)
}

// Score compares estimates against actual values.
func Score(estimates, actual []float64) Metrics {
	if len(estimates) == 0 || len(estimates) != len(actual) {
		return Metrics{}
	}
	var sq, abs float64
	for i := range estimates {
		diff := actual[i] - estimates[i]
		sq += diff * diff
		abs += math.Abs(diff)
	}
	n := float64(len(estimates))
	return Metrics{
		RMSE: math.Sqrt(sq / n),
		MAE:  abs / n,
		R2:   stat.RSquaredFrom(estimates, actual, nil),
		N:    len(estimates),
	}
}
