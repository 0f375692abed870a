package dataset

import "testing"

const bangaloreFilter = `"City" in row && row["City"].matches("(?i)bangalore")`

func TestCompileFilter(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"city match", bangaloreFilter, false},
		{"syntax error", `row["City"] ==`, true},
		{"not bool", `row["City"]`, true},
		{"unknown variable", `city == "x"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileFilter(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("CompileFilter() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFilterMatch(t *testing.T) {
	flt, err := CompileFilter(bangaloreFilter)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		row  map[string]string
		want bool
	}{
		{map[string]string{"City": "Bangalore"}, true},
		{map[string]string{"City": "BANGALORE Rural"}, true},
		{map[string]string{"City": "Mumbai"}, false},
		{map[string]string{"State": "Karnataka"}, false},
	}
	for _, tt := range tests {
		got, err := flt.Match(tt.row)
		if err != nil {
			t.Fatalf("Match(%v) error = %v", tt.row, err)
		}
		if got != tt.want {
			t.Errorf("Match(%v) = %v, want %v", tt.row, got, tt.want)
		}
	}
}

func TestFrameWhere(t *testing.T) {
	f := mustFrame(t)
	flt, err := CompileFilter(bangaloreFilter)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := f.Where(flt)
	if err != nil {
		t.Fatalf("Where() error = %v", err)
	}
	if sub.Len() != 2 {
		t.Errorf("Where() Len() = %d, want 2", sub.Len())
	}
}
