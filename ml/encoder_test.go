package ml

import "testing"

func TestFitCategoricalEncoderSortsDomain(t *testing.T) {
	enc := FitCategoricalEncoder([]string{"Tamil Nadu", "Delhi", "Maharashtra", "Delhi", ""})

	want := []string{"Delhi", "Maharashtra", "Tamil Nadu", "nan"}
	got := enc.Classes()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
		if code, ok := enc.Lookup(want[i]); !ok || code != i {
			t.Fatalf("expected %s -> %d, got %d (ok=%v)", want[i], i, code, ok)
		}
	}
}

func TestCategoricalEncoderFallback(t *testing.T) {
	enc := FitCategoricalEncoder([]string{"Karnataka", "Maharashtra"})

	tests := []struct {
		name  string
		value string
		want  int
		known bool
	}{
		{name: "known first", value: "Karnataka", want: 0, known: true},
		{name: "known second", value: "Maharashtra", want: 1, known: true},
		{name: "unseen", value: "Atlantis", want: FallbackCode},
		{name: "empty", value: "", want: FallbackCode},
		{name: "case differs", value: "karnataka", want: FallbackCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := enc.Lookup(tt.value); ok != tt.known {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.value, ok, tt.known)
			}
			if got := enc.Encode(tt.value); got != tt.want {
				t.Fatalf("Encode(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestFitEncodersDeterministic(t *testing.T) {
	table := &memTable{
		columns: []string{"State", "Facing"},
		rows: [][]string{
			{"Punjab", "North"},
			{"Goa", "East"},
			{"Punjab", ""},
			{"Assam", "West"},
		},
	}

	first := FitEncoders(table, []string{"State", "Facing", "Owner_Type"})
	second := FitEncoders(table, []string{"State", "Facing", "Owner_Type"})

	if _, ok := first["Owner_Type"]; ok {
		t.Fatal("expected no encoder for absent column")
	}
	for col, enc := range first {
		other := second[col]
		for _, class := range enc.Classes() {
			a, _ := enc.Lookup(class)
			b, _ := other.Lookup(class)
			if a != b {
				t.Fatalf("%s: %s encoded as %d and %d", col, class, a, b)
			}
		}
	}
	if code, _ := first.Lookup("State", "Assam"); code != 0 {
		t.Fatalf("expected Assam -> 0, got %d", code)
	}
	if code, ok := first.Lookup("Facing", MissingToken); !ok || code != 3 {
		t.Fatalf("expected missing facing -> 3, got %d (ok=%v)", code, ok)
	}
	if _, ok := first.Lookup("Owner_Type", "Owner"); ok {
		t.Fatal("expected lookup on absent encoder to miss")
	}
}

func TestEncodersFromDomains(t *testing.T) {
	fitted := EncoderSet{
		"State":  FitCategoricalEncoder([]string{"Goa", "Delhi", "", "Kerala"}),
		"Facing": FitCategoricalEncoder([]string{"North"}),
	}
	rebuilt, err := EncodersFromDomains(fitted.Domains())
	if err != nil {
		t.Fatalf("EncodersFromDomains() error = %v", err)
	}
	for column, enc := range fitted {
		for _, v := range append(enc.Classes(), "Atlantis") {
			wantCode, wantOK := fitted.Lookup(column, v)
			gotCode, gotOK := rebuilt.Lookup(column, v)
			if gotCode != wantCode || gotOK != wantOK {
				t.Errorf("%s Lookup(%q) = %d, %v; want %d, %v", column, v, gotCode, gotOK, wantCode, wantOK)
			}
		}
	}

	for _, bad := range [][]string{{"b", "a"}, {"a", "a"}} {
		if _, err := NewCategoricalEncoder(bad); err == nil {
			t.Errorf("NewCategoricalEncoder(%v) expected error", bad)
		}
	}
}
