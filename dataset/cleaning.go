package dataset

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// CleaningRule 清洗规则
type CleaningRule interface {
	// Prepare is called once per Clean with the full frame.
	Prepare(f *Frame) error
	// Check returns an error when row must be rejected.
	Check(f *Frame, row int) error
	Name() string
}

// CleaningStats 清洗统计
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// DataCleaner 数据清洗器
type DataCleaner struct {
	rules []CleaningRule
}

// NewDataCleaner 创建数据清洗器
func NewDataCleaner(rules ...CleaningRule) *DataCleaner {
	return &DataCleaner{rules: rules}
}

// AddRule 添加清洗规则
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

// Clean 清洗数据. A row is kept only when every rule accepts it.
func (dc *DataCleaner) Clean(f *Frame) (*Frame, CleaningStats, error) {
	stats := CleaningStats{Issues: make(map[string]int64)}
	for _, rule := range dc.rules {
		if err := rule.Prepare(f); err != nil {
			return nil, stats, fmt.Errorf("prepare %s: %w", rule.Name(), err)
		}
	}

	kept := make([]int, 0, f.Len())
	for row := 0; row < f.Len(); row++ {
		stats.TotalProcessed++
		rejected := false
		for _, rule := range dc.rules {
			if err := rule.Check(f, row); err != nil {
				stats.Issues[rule.Name()]++
				rejected = true
				break
			}
		}
		if rejected {
			stats.Rejected++
			continue
		}
		stats.Passed++
		kept = append(kept, row)
	}

	stats.LastClean = time.Now()
	return f.Select(kept), stats, nil
}

// RequiredColumnsRule rejects rows missing any of Columns.
type RequiredColumnsRule struct {
	Columns []string
}

func NewRequiredColumnsRule(columns ...string) *RequiredColumnsRule {
	return &RequiredColumnsRule{Columns: columns}
}

func (r *RequiredColumnsRule) Name() string {
	return "required_columns"
}

func (r *RequiredColumnsRule) Prepare(f *Frame) error {
	for _, col := range r.Columns {
		if !f.Has(col) {
			return fmt.Errorf("column %q not in dataset", col)
		}
	}
	return nil
}

func (r *RequiredColumnsRule) Check(f *Frame, row int) error {
	for _, col := range r.Columns {
		if _, ok := f.Value(row, col); !ok {
			return fmt.Errorf("%s is missing", col)
		}
	}
	return nil
}

// OutlierRule rejects rows whose Column exceeds mean + Sigma standard deviations.
type OutlierRule struct {
	Column string
	Sigma  float64

	threshold float64
}

func NewOutlierRule(column string, sigma float64) *OutlierRule {
	return &OutlierRule{Column: column, Sigma: sigma}
}

func (r *OutlierRule) Name() string {
	return "outlier_detection"
}

func (r *OutlierRule) Prepare(f *Frame) error {
	values := f.Floats(r.Column)
	if len(values) < 2 {
		r.threshold = math.Inf(1)
		return nil
	}
	mean, std := stat.MeanStdDev(values, nil)
	r.threshold = mean + r.Sigma*std
	return nil
}

func (r *OutlierRule) Check(f *Frame, row int) error {
	v, ok := f.Float(row, r.Column)
	if !ok {
		return nil
	}
	if v > r.threshold {
		return fmt.Errorf("%s %.2f above %.2f", r.Column, v, r.threshold)
	}
	return nil
}

// Threshold returns the cut-off computed by the last Prepare.
func (r *OutlierRule) Threshold() float64 {
	return r.threshold
}
