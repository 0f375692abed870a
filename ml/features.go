package ml

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// ReferenceYear is the year property age is measured against.
	ReferenceYear = 2024
	// PricePerSqftPlaceholder is served for Price_per_SqFt because the ratio
	// needs the price being predicted.
	PricePerSqftPlaceholder = 0.1
)

// FeatureSpec describes how one feature is produced from a raw input map.
type FeatureSpec struct {
	// Column is the dataset column the feature was trained on.
	Column string
	// Field is the raw input key. Unused when Derive is set.
	Field string
	// Default is substituted when Field is absent from the input.
	Default string
	// Derive, when set, computes a numerical value from the features
	// assembled before it.
	Derive func(values map[string]float64) float64
}

// FeatureTable lists the numerical and categorical features of one pipeline
// in the order they appear in the schema.
type FeatureTable struct {
	Numerical   []FeatureSpec
	Categorical []FeatureSpec
}

func (t FeatureTable) NumericalColumns() []string {
	return columnsOf(t.Numerical)
}

func (t FeatureTable) CategoricalColumns() []string {
	return columnsOf(t.Categorical)
}

// Fields maps every categorical column to the raw input key that feeds it.
func (t FeatureTable) Fields() map[string]string {
	fields := make(map[string]string, len(t.Categorical))
	for _, spec := range t.Categorical {
		fields[spec.Column] = spec.Field
	}
	return fields
}

func columnsOf(specs []FeatureSpec) []string {
	cols := make([]string, len(specs))
	for i, spec := range specs {
		cols[i] = spec.Column
	}
	return cols
}

// AgeFrom derives property age from the named year column.
func AgeFrom(yearColumn string) func(map[string]float64) float64 {
	return func(values map[string]float64) float64 {
		return ReferenceYear - values[yearColumn]
	}
}

// Constant always yields v.
func Constant(v float64) func(map[string]float64) float64 {
	return func(map[string]float64) float64 {
		return v
	}
}

// CoercionError reports a raw field that could not be parsed as a number.
type CoercionError struct {
	Field string
	Value string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("could not convert %s=%q to float", e.Field, e.Value)
}

// Assembler turns raw inputs into vectors laid out in schema order. It holds
// only frozen state and may be shared between goroutines.
type Assembler struct {
	schema   Schema
	table    FeatureTable
	encoders EncoderSet
}

func NewAssembler(schema Schema, table FeatureTable, encoders EncoderSet) *Assembler {
	return &Assembler{schema: schema, table: table, encoders: encoders}
}

// Assemble folds the feature table over raw and emits one value per schema
// column. Columns with no computed value are 0.
func (a *Assembler) Assemble(raw map[string]string) ([]float64, error) {
	values := make(map[string]float64, len(a.table.Numerical)+len(a.table.Categorical))

	for _, spec := range a.table.Numerical {
		if spec.Derive != nil {
			values[spec.Column] = spec.Derive(values)
			continue
		}
		text := fieldOrDefault(raw, spec)
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &CoercionError{Field: spec.Field, Value: text}
		}
		values[spec.Column] = v
	}

	for _, spec := range a.table.Categorical {
		enc, ok := a.encoders[spec.Column]
		if !ok {
			continue
		}
		values[EncodedName(spec.Column)] = float64(enc.Encode(fieldOrDefault(raw, spec)))
	}

	vector := make([]float64, len(a.schema))
	for i, col := range a.schema {
		vector[i] = values[col]
	}
	return vector, nil
}

func (a *Assembler) Schema() Schema {
	return a.schema
}

func fieldOrDefault(raw map[string]string, spec FeatureSpec) string {
	if v, ok := raw[spec.Field]; ok {
		return v
	}
	return spec.Default
}
