// Package analytics summarises the training listings of a pipeline.
package analytics

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultBins = 50
	DefaultTopN = 10
)

var ErrNoValues = errors.New("no numeric values")

// Table is the column access analytics needs.
type Table interface {
	Len() int
	Value(row int, column string) (string, bool)
	Float(row int, column string) (float64, bool)
	Floats(column string) []float64
}

// Bin is one histogram bucket covering [Lower, Upper).
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Summary 描述统计
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
}

// Group is the mean of a numeric column within one category.
type Group struct {
	Key   string  `json:"key"`
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

// Share is how many rows carry one category value.
type Share struct {
	Key      string  `json:"key"`
	Count    int     `json:"count"`
	Fraction float64 `json:"fraction"`
}

// Histogram buckets values into bins equal-width bins spanning min to max.
func Histogram(values []float64, bins int) ([]Bin, error) {
	if len(values) == 0 {
		return nil, ErrNoValues
	}
	if bins <= 0 {
		bins = DefaultBins
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		return []Bin{{Lower: lo, Upper: hi, Count: len(sorted)}}, nil
	}
	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	// the last divider is exclusive
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, sorted, nil)
	out := make([]Bin, bins)
	for i := range out {
		out[i] = Bin{Lower: dividers[i], Upper: dividers[i+1], Count: int(counts[i])}
	}
	return out, nil
}

// Describe computes the summary statistics of values.
func Describe(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrNoValues
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	s := Summary{
		Count:  len(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
	}
	if len(sorted) > 1 {
		s.Mean, s.Std = stat.MeanStdDev(sorted, nil)
	} else {
		s.Mean = sorted[0]
	}
	return s, nil
}

// AverageBy groups rows by the category column and averages value, highest
// mean first. topN <= 0 keeps every group.
func AverageBy(t Table, category, value string, topN int) []Group {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i := 0; i < t.Len(); i++ {
		key, ok := t.Value(i, category)
		if !ok {
			continue
		}
		v, ok := t.Float(i, value)
		if !ok {
			continue
		}
		sums[key] += v
		counts[key]++
	}

	groups := make([]Group, 0, len(sums))
	for key, sum := range sums {
		groups = append(groups, Group{Key: key, Mean: sum / float64(counts[key]), Count: counts[key]})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Mean != groups[j].Mean {
			return groups[i].Mean > groups[j].Mean
		}
		return groups[i].Key < groups[j].Key
	})
	if topN > 0 && len(groups) > topN {
		groups = groups[:topN]
	}
	return groups
}

// AverageByOrdered is AverageBy sorted by key instead of mean. Numeric keys
// sort numerically.
func AverageByOrdered(t Table, category, value string) []Group {
	groups := AverageBy(t, category, value, 0)
	sort.Slice(groups, func(i, j int) bool {
		return keyLess(groups[i].Key, groups[j].Key)
	})
	return groups
}

// Distribution counts the rows per value of column, most common first.
func Distribution(t Table, column string) []Share {
	counts := make(map[string]int)
	total := 0
	for i := 0; i < t.Len(); i++ {
		if key, ok := t.Value(i, column); ok {
			counts[key]++
			total++
		}
	}
	out := make([]Share, 0, len(counts))
	for key, n := range counts {
		out = append(out, Share{Key: key, Count: n, Fraction: float64(n) / float64(total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func keyLess(a, b string) bool {
	fa, errA := parseKey(a)
	fb, errB := parseKey(b)
	if errA == nil && errB == nil {
		return fa < fb
	}
	return a < b
}

func parseKey(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
