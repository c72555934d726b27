// internal/provider/value_test.go
package provider

import (
	"encoding/json"
	"reflect"
	"testing"
)

func decode(t *testing.T, raw string) Value {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return V(v)
}

func TestValueStr(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `"abc"`, "abc"},
		{"trimmed", `"  abc "`, "abc"},
		{"integer number", `42`, "42"},
		{"list takes first non-empty", `["", "x", "y"]`, "x"},
		{"object yields empty", `{"name":"x"}`, ""},
		{"null", `null`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decode(t, tt.raw).Str(); got != tt.want {
				t.Errorf("Str() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValueFirstOf(t *testing.T) {
	v := decode(t, `{"cid":"", "content_id":"ABC-100"}`)
	if got := v.FirstOf("content_id", "cid").Str(); got != "ABC-100" {
		t.Errorf("FirstOf = %q, want ABC-100", got)
	}
	if got := v.FirstOf("missing", "also_missing").Str(); got != "" {
		t.Errorf("FirstOf on missing keys = %q, want empty", got)
	}
}

func TestValueNames(t *testing.T) {
	list := decode(t, `[{"name":"A"},{"id":1},{"name":"B"}]`)
	if got := list.Names(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("Names = %v", got)
	}

	// A single unwrapped object is treated as a one-element list.
	single := decode(t, `{"name":"Solo"}`)
	if got := single.Names(); !reflect.DeepEqual(got, []string{"Solo"}) {
		t.Errorf("Names on scalar object = %v", got)
	}
}

func TestValueURLString(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare string", `"https://x/a.jpg"`, "https://x/a.jpg"},
		{"object prefers large", `{"small":"s","list":"l","large":"L"}`, "L"},
		{"object falls back to list", `{"small":"s","list":"l"}`, "l"},
		{"list of objects", `[{"large":""},{"large":"L2"}]`, "L2"},
		{"number yields empty", `7`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decode(t, tt.raw).URLString(); got != tt.want {
				t.Errorf("URLString = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValueWalk_VisitsNestedStrings(t *testing.T) {
	v := decode(t, `{"a":{"image":"first","deep":["second",{"url":"third"}]},"b":"fourth"}`)
	var got []string
	v.Walk(func(s string) { got = append(got, s) })

	want := map[string]bool{"first": true, "second": true, "third": true, "fourth": true}
	if len(got) != len(want) {
		t.Fatalf("visited %v, want %d strings", got, len(want))
	}
	for _, s := range got {
		if !want[s] {
			t.Errorf("unexpected visit %q", s)
		}
	}
	// Preferred slots visit before siblings.
	if got[0] != "first" {
		t.Errorf("image slot should visit first, got %v", got)
	}
}
