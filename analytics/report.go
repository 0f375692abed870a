package analytics

import "time"

// Options 分析配置
type Options struct {
	Target   string
	Size     string
	Bedrooms string
	// Region is the column prices are averaged over, e.g. State or Locality.
	Region string
	Kind   string
	Bins   int
	TopN   int
}

// DefaultOptions matches the listings dataset columns.
func DefaultOptions(region string) Options {
	return Options{
		Target:   "Price_in_Lakhs",
		Size:     "Size_in_SqFt",
		Bedrooms: "BHK",
		Region:   region,
		Kind:     "Property_Type",
		Bins:     DefaultBins,
		TopN:     DefaultTopN,
	}
}

// Report 分析报告
type Report struct {
	Rows          int       `json:"rows"`
	Price         Summary   `json:"price"`
	Size          *Summary  `json:"size,omitempty"`
	PriceHist     []Bin     `json:"price_histogram"`
	ByRegion      []Group   `json:"avg_price_by_region"`
	Region        string    `json:"region"`
	ByBedrooms    []Group   `json:"avg_price_by_bhk"`
	PropertyTypes []Share   `json:"property_types"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Build computes the report for t.
func Build(t Table, opts Options) (*Report, error) {
	prices := t.Floats(opts.Target)
	price, err := Describe(prices)
	if err != nil {
		return nil, err
	}
	hist, err := Histogram(prices, opts.Bins)
	if err != nil {
		return nil, err
	}

	r := &Report{
		Rows:          t.Len(),
		Price:         price,
		PriceHist:     hist,
		Region:        opts.Region,
		ByBedrooms:    AverageByOrdered(t, opts.Bedrooms, opts.Target),
		PropertyTypes: Distribution(t, opts.Kind),
		GeneratedAt:   time.Now(),
	}
	if opts.Region != "" {
		r.ByRegion = AverageBy(t, opts.Region, opts.Target, opts.TopN)
	}
	if size, err := Describe(t.Floats(opts.Size)); err == nil {
		r.Size = &size
	}
	return r, nil
}
