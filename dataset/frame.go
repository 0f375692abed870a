// Package dataset loads and prepares the historical listings table.
package dataset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Frame is an immutable in-memory table of string cells. An empty cell is a
// missing value.
type Frame struct {
	header  []string
	index   map[string]int
	records [][]string
}

// NewFrame builds a frame. Short records are padded with missing cells.
func NewFrame(header []string, records [][]string) (*Frame, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		index[name] = i
	}
	cols := make([]string, len(header))
	for name, i := range index {
		cols[i] = name
	}
	for i, rec := range records {
		if len(rec) < len(cols) {
			padded := make([]string, len(cols))
			copy(padded, rec)
			records[i] = padded
		}
	}
	return &Frame{header: cols, index: index, records: records}, nil
}

func (f *Frame) Columns() []string {
	return append([]string(nil), f.header...)
}

func (f *Frame) Len() int {
	return len(f.records)
}

func (f *Frame) Has(column string) bool {
	_, ok := f.index[column]
	return ok
}

// Value returns the cell at row/column. ok is false when the column does not
// exist or the cell is missing.
func (f *Frame) Value(row int, column string) (string, bool) {
	i, ok := f.index[column]
	if !ok {
		return "", false
	}
	v := f.records[row][i]
	return v, v != ""
}

// Float parses the cell at row/column.
func (f *Frame) Float(row int, column string) (float64, bool) {
	v, ok := f.Value(row, column)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Row returns the row as a column → value map.
func (f *Frame) Row(row int) map[string]string {
	out := make(map[string]string, len(f.header))
	for i, name := range f.header {
		out[name] = f.records[row][i]
	}
	return out
}

// Select returns a frame holding the given rows in the given order.
func (f *Frame) Select(rows []int) *Frame {
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = f.records[r]
	}
	return &Frame{header: f.header, index: f.index, records: records}
}

// WithColumn returns a copy where column holds value in every row. The column
// is appended when absent.
func (f *Frame) WithColumn(column, value string) *Frame {
	header := f.header
	index := f.index
	pos, ok := f.index[column]
	if !ok {
		header = append(append([]string(nil), f.header...), column)
		index = make(map[string]int, len(header))
		for i, name := range header {
			index[name] = i
		}
		pos = len(header) - 1
	}
	records := make([][]string, len(f.records))
	for i, rec := range f.records {
		row := make([]string, len(header))
		copy(row, rec)
		row[pos] = value
		records[i] = row
	}
	return &Frame{header: header, index: index, records: records}
}

// Distinct returns the sorted non-missing values of column.
func (f *Frame) Distinct(column string) []string {
	seen := make(map[string]struct{})
	for i := range f.records {
		if v, ok := f.Value(i, column); ok {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Floats returns every parseable value of column.
func (f *Frame) Floats(column string) []float64 {
	out := make([]float64, 0, len(f.records))
	for i := range f.records {
		if v, ok := f.Float(i, column); ok {
			out = append(out, v)
		}
	}
	return out
}
