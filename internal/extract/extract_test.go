package extract

import (
	"encoding/json"
	"testing"
)

// decode mirrors how provider responses arrive: through encoding/json.
func decode(t *testing.T, raw string) any {
	t.Helper()
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("bad test document: %v", err)
	}
	return doc
}

func TestFindNumber(t *testing.T) {
	keys := []string{"score", "creditScore"}

	tests := []struct {
		name      string
		doc       string
		keys      []string
		want      float64
		wantFound bool
	}{
		{
			name:      "Top-level number",
			doc:       `{"score": 720}`,
			keys:      keys,
			want:      720,
			wantFound: true,
		},
		{
			name:      "Numeric string coerces",
			doc:       `{"score": "720"}`,
			keys:      keys,
			want:      720,
			wantFound: true,
		},
		{
			name:      "Non-numeric string is skipped",
			doc:       `{"score": "N/A"}`,
			keys:      keys,
			wantFound: false,
		},
		{
			name:      "Skipped key does not stop the search",
			doc:       `{"score": "N/A", "report": {"creditScore": 655}}`,
			keys:      keys,
			want:      655,
			wantFound: true,
		},
		{
			name:      "Deeply nested under unknown keys",
			doc:       `{"data": {"attributes": {"bureau": {"score": 688.5}}}}`,
			keys:      keys,
			want:      688.5,
			wantFound: true,
		},
		{
			name:      "Inside an array of objects",
			doc:       `{"results": [{"kind": "soft"}, {"score": 701}]}`,
			keys:      keys,
			want:      701,
			wantFound: true,
		},
		{
			name:      "Candidate order wins over key order",
			doc:       `{"creditScore": 640, "score": 700}`,
			keys:      keys,
			want:      700,
			wantFound: true,
		},
		{
			name:      "Parent match beats deeper match",
			doc:       `{"nested": {"score": 500}, "score": 710}`,
			keys:      keys,
			want:      710,
			wantFound: true,
		},
		{
			name:      "Empty document",
			doc:       `{}`,
			keys:      keys,
			wantFound: false,
		},
		{
			name:      "Scalar document",
			doc:       `42`,
			keys:      keys,
			wantFound: false,
		},
		{
			name:      "Null value is skipped",
			doc:       `{"score": null, "inner": {"score": 690}}`,
			keys:      keys,
			want:      690,
			wantFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := FindNumber(decode(t, tt.doc), tt.keys)
			if found != tt.wantFound {
				t.Fatalf("Expected found=%v, got %v", tt.wantFound, found)
			}
			if found && got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFindNumber_DeterministicDescent(t *testing.T) {
	// Two sibling branches both contain a candidate; sorted-key descent
	// must always pick branch "a".
	doc := decode(t, `{"b": {"score": 2}, "a": {"score": 1}}`)

	for i := 0; i < 50; i++ {
		got, found := FindNumber(doc, []string{"score"})
		if !found || got != 1 {
			t.Fatalf("Iteration %d: expected 1, got %v (found=%v)", i, got, found)
		}
	}
}

func TestCountOccurrences(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		keys []string
		want int
	}{
		{
			name: "Array value counts its length",
			doc:  `{"evictions": [{}, {}]}`,
			keys: []string{"evictions", "evictionCount"},
			want: 2,
		},
		{
			name: "Numeric value counts itself",
			doc:  `{"evictionCount": 3}`,
			keys: []string{"evictions", "evictionCount"},
			want: 3,
		},
		{
			name: "Numeric string counts itself",
			doc:  `{"evictionCount": "4"}`,
			keys: []string{"evictions", "evictionCount"},
			want: 4,
		},
		{
			name: "Scalar non-numeric counts one",
			doc:  `{"evictions": "on file"}`,
			keys: []string{"evictions"},
			want: 1,
		},
		{
			name: "Null contributes nothing",
			doc:  `{"evictions": null}`,
			keys: []string{"evictions"},
			want: 0,
		},
		{
			name: "No candidate keys",
			doc:  `{"records": {"civil": []}}`,
			keys: []string{"evictions", "evictionCount"},
			want: 0,
		},
		{
			name: "Contributions sum across the tree",
			doc:  `{"evictions": [{}], "history": {"evictionCount": 2}}`,
			keys: []string{"evictions", "evictionCount"},
			want: 3,
		},
		{
			name: "Keys nested inside matched values still count",
			doc:  `{"evictions": [{"evictionCount": 2}]}`,
			keys: []string{"evictions", "evictionCount"},
			want: 3,
		},
		{
			name: "Array of records under arrays",
			doc:  `{"results": [{"offenses": [1, 2, 3]}, {"offenses": []}]}`,
			keys: []string{"offenses"},
			want: 3,
		},
		{
			name: "Empty document",
			doc:  `{}`,
			keys: []string{"evictions"},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CountOccurrences(decode(t, tt.doc), tt.keys)
			if got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestAsNumber(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    float64
		numeric bool
	}{
		{name: "Float", value: 3.5, want: 3.5, numeric: true},
		{name: "Int", value: 7, want: 7, numeric: true},
		{name: "Numeric string", value: "680", want: 680, numeric: true},
		{name: "Padded numeric string", value: " 680 ", want: 680, numeric: true},
		{name: "Word", value: "excellent", numeric: false},
		{name: "Empty string", value: "", numeric: false},
		{name: "Bool", value: true, numeric: false},
		{name: "Nil", value: nil, numeric: false},
		{name: "JSON number", value: json.Number("712"), want: 712, numeric: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := asNumber(tt.value)
			if ok != tt.numeric {
				t.Fatalf("Expected numeric=%v, got %v", tt.numeric, ok)
			}
			if ok && got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
