package ml

import (
	"fmt"
	"sort"
)

const (
	// FallbackCode is used for any value outside an encoder's training domain.
	FallbackCode = 0
	// MissingToken stands in for an empty cell when an encoder is fitted.
	MissingToken = "nan"
)

// CategoricalEncoder maps the distinct training values of one column to
// sequential codes in lexicographic order. It is immutable once built.
type CategoricalEncoder struct {
	classes []string
	codes   map[string]int
}

// FitCategoricalEncoder builds an encoder from raw column values. Empty values
// are recorded as MissingToken rather than skipped.
func FitCategoricalEncoder(values []string) *CategoricalEncoder {
	seen := make(map[string]struct{})
	for _, v := range values {
		if v == "" {
			v = MissingToken
		}
		seen[v] = struct{}{}
	}

	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)

	codes := make(map[string]int, len(classes))
	for i, v := range classes {
		codes[v] = i
	}
	return &CategoricalEncoder{classes: classes, codes: codes}
}

// NewCategoricalEncoder rebuilds an encoder from a domain returned by Classes.
// The domain must be sorted and free of duplicates so codes come out unchanged.
func NewCategoricalEncoder(classes []string) (*CategoricalEncoder, error) {
	codes := make(map[string]int, len(classes))
	for i, v := range classes {
		if i > 0 && classes[i-1] >= v {
			return nil, fmt.Errorf("encoder domain not strictly sorted at %q", v)
		}
		codes[v] = i
	}
	return &CategoricalEncoder{classes: append([]string(nil), classes...), codes: codes}, nil
}

// Lookup reports the code for value and whether value was seen in training.
func (e *CategoricalEncoder) Lookup(value string) (int, bool) {
	code, ok := e.codes[value]
	return code, ok
}

// Encode returns the code for value, or FallbackCode for unseen values.
func (e *CategoricalEncoder) Encode(value string) int {
	if code, ok := e.Lookup(value); ok {
		return code
	}
	return FallbackCode
}

// Classes returns a copy of the sorted training domain.
func (e *CategoricalEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

func (e *CategoricalEncoder) Len() int {
	return len(e.classes)
}

// EncoderSet holds one encoder per categorical column.
type EncoderSet map[string]*CategoricalEncoder

// FitEncoders builds an encoder for every categorical column present in table.
func FitEncoders(table Table, categorical []string) EncoderSet {
	present := make(map[string]bool)
	for _, c := range table.Columns() {
		present[c] = true
	}

	set := make(EncoderSet, len(categorical))
	for _, column := range categorical {
		if !present[column] {
			continue
		}
		values := make([]string, table.Len())
		for i := range values {
			values[i], _ = table.Value(i, column)
		}
		set[column] = FitCategoricalEncoder(values)
	}
	return set
}

// Lookup resolves value through the encoder for column. ok is false when the
// column has no encoder or value is outside its domain.
func (s EncoderSet) Lookup(column, value string) (code int, ok bool) {
	enc, found := s[column]
	if !found {
		return FallbackCode, false
	}
	return enc.Lookup(value)
}

// Domains returns the sorted domain of every encoder keyed by column.
func (s EncoderSet) Domains() map[string][]string {
	out := make(map[string][]string, len(s))
	for column, enc := range s {
		out[column] = enc.Classes()
	}
	return out
}

// EncodersFromDomains rebuilds an encoder set saved with Domains.
func EncodersFromDomains(domains map[string][]string) (EncoderSet, error) {
	set := make(EncoderSet, len(domains))
	for column, classes := range domains {
		enc, err := NewCategoricalEncoder(classes)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", column, err)
		}
		set[column] = enc
	}
	return set, nil
}
