package dataset

import (
	"strings"
	"testing"
)

func TestRequiredColumnsRule(t *testing.T) {
	f := mustFrame(t)
	rule := NewRequiredColumnsRule("Price_in_Lakhs", "Size_in_SqFt", "BHK")
	if err := rule.Prepare(f); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	tests := []struct {
		name    string
		row     int
		wantErr bool
	}{
		{"complete row", 0, false},
		{"missing BHK", 2, true},
		{"missing size", 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rule.Check(f, tt.row)
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := NewRequiredColumnsRule("Nope").Prepare(f); err == nil {
		t.Error("Prepare() with unknown column expected error")
	}
}

func TestOutlierRule(t *testing.T) {
	var b strings.Builder
	b.WriteString("Price_in_Lakhs\n")
	for i := 0; i < 20; i++ {
		b.WriteString("100\n")
	}
	b.WriteString("10000\n")
	f, err := ReadCSV(strings.NewReader(b.String()))
	if err != nil {
		t.Fatal(err)
	}

	rule := NewOutlierRule("Price_in_Lakhs", 3)
	if err := rule.Prepare(f); err != nil {
		t.Fatal(err)
	}
	if err := rule.Check(f, 0); err != nil {
		t.Errorf("Check(typical) error = %v", err)
	}
	if err := rule.Check(f, 20); err == nil {
		t.Errorf("Check(outlier) expected error, threshold %.2f", rule.Threshold())
	}
}

func TestDataCleanerClean(t *testing.T) {
	f := mustFrame(t)
	cleaner := NewDataCleaner(NewRequiredColumnsRule("Price_in_Lakhs", "Size_in_SqFt", "BHK"))

	out, stats, err := cleaner.Clean(f)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if out.Len() != 2 {
		t.Errorf("Clean() kept %d rows, want 2", out.Len())
	}
	if stats.TotalProcessed != 4 || stats.Passed != 2 || stats.Rejected != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Issues["required_columns"] != 2 {
		t.Errorf("Issues = %v", stats.Issues)
	}
	if stats.LastClean.IsZero() {
		t.Error("LastClean not set")
	}
}

func TestDataCleanerPrepareError(t *testing.T) {
	cleaner := NewDataCleaner()
	cleaner.AddRule(NewRequiredColumnsRule("Nope"))
	if _, _, err := cleaner.Clean(mustFrame(t)); err == nil {
		t.Error("Clean() expected prepare error")
	}
}
