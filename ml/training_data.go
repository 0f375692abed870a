package ml

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
)

// TrainingSet is the numeric matrix and targets a pipeline fits on.
type TrainingSet struct {
	Features [][]float64
	Targets  []float64
	// Skipped counts rows dropped because the target did not parse.
	Skipped int
}

// BuildTrainingSet lays out every row of table in schema order. Encoded columns
// go through encoders; numerical cells that are missing or not numeric become 0.
func BuildTrainingSet(table Table, schema Schema, encoders EncoderSet, target string) (TrainingSet, error) {
	if len(schema) == 0 {
		return TrainingSet{}, ErrEmptySchema
	}
	if !hasColumn(table, target) {
		return TrainingSet{}, ErrMissingTarget
	}

	set := TrainingSet{
		Features: make([][]float64, 0, table.Len()),
		Targets:  make([]float64, 0, table.Len()),
	}
	for i := 0; i < table.Len(); i++ {
		y, ok := parseCell(table, i, target)
		if !ok {
			set.Skipped++
			continue
		}
		row := make([]float64, len(schema))
		for j, col := range schema {
			if base, isEncoded := strings.CutSuffix(col, EncodedSuffix); isEncoded {
				if enc, found := encoders[base]; found {
					v, _ := table.Value(i, base)
					if v == "" {
						v = MissingToken
					}
					row[j] = float64(enc.Encode(v))
					continue
				}
			}
			if v, ok := parseCell(table, i, col); ok {
				row[j] = v
			}
		}
		set.Features = append(set.Features, row)
		set.Targets = append(set.Targets, y)
	}
	if len(set.Features) == 0 {
		return set, ErrEmptyData
	}
	return set, nil
}

// TrainTestSplit shuffles rows with a fixed seed and holds out testRatio of them.
func TrainTestSplit(features [][]float64, targets []float64, testRatio float64, seed int64) (trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(len(features))

	split := int(math.Round(float64(len(features)) * (1 - testRatio)))
	for i, idx := range indices {
		if i < split {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, targets[idx])
		} else {
			testX = append(testX, features[idx])
			testY = append(testY, targets[idx])
		}
	}
	return trainX, trainY, testX, testY
}

func parseCell(table Table, row int, column string) (float64, bool) {
	text, ok := table.Value(row, column)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func hasColumn(table Table, column string) bool {
	for _, c := range table.Columns() {
		if c == column {
			return true
		}
	}
	return false
}
