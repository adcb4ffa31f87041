package cache

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestKey_Deterministic(t *testing.T) {
	input := map[string]any{
		"operation": "mesh_analysis",
		"geometry":  json.RawMessage(`{"vertices":[1,2,3]}`),
		"params":    map[string]any{"precision": "high", "iterations": 50},
	}

	key1 := Key("compute", input)
	key2 := Key("compute", input)

	if key1 != key2 {
		t.Errorf("Keys should be deterministic: %s != %s", key1, key2)
	}
	if !strings.HasPrefix(key1, "compute:") {
		t.Errorf("Key() = %s, want prefix compute:", key1)
	}
	// namespace + ":" + 64 hex chars
	if got, want := len(key1), len("compute:")+64; got != want {
		t.Errorf("len(Key()) = %d, want %d", got, want)
	}
}

func TestKey_IgnoresFormatting(t *testing.T) {
	a := map[string]any{
		"operation": "boolean_union",
		"geometry":  json.RawMessage(`{"b":2,"a":1}`),
	}
	b := map[string]any{
		"geometry":  json.RawMessage(`{ "a": 1, "b": 2 }`),
		"operation": "boolean_union",
	}

	if Key("compute", a) != Key("compute", b) {
		t.Error("Keys should match for inputs differing only in formatting and key order")
	}
}

func TestKey_DifferentInputs(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		nsA  string
		nsB  string
	}{
		{
			name: "different operation",
			a:    map[string]any{"operation": "mesh_analysis"},
			b:    map[string]any{"operation": "mesh_repair"},
			nsA:  "compute", nsB: "compute",
		},
		{
			name: "different params",
			a:    map[string]any{"params": map[string]any{"penalty": 3}},
			b:    map[string]any{"params": map[string]any{"penalty": 4}},
			nsA:  "compute", nsB: "compute",
		},
		{
			name: "different namespace",
			a:    map[string]any{"operation": "x"},
			b:    map[string]any{"operation": "x"},
			nsA:  "compute", nsB: "ai",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Key(tt.nsA, tt.a) == Key(tt.nsB, tt.b) {
				t.Error("Different inputs should produce different keys")
			}
		})
	}
}
