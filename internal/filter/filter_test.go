// internal/filter/filter_test.go
package filter

import (
	"testing"

	"github.com/fanzapress/fanzapress/pkg/types"
)

func sampleRecord() *types.Record {
	return &types.Record{
		ExternalID: "SSIS-123",
		Title:      "デビュー作品",
		Maker:      "S1",
		Actress:    "花子, 太郎",
		Genres:     []string{"単体作品", "ハイビジョン"},
	}
}

func mustEngine(t *testing.T, spec types.FilterSpec) *Engine {
	t.Helper()
	e, err := NewEngine(spec)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestPasses(t *testing.T) {
	tests := []struct {
		name string
		spec types.FilterSpec
		want bool
	}{
		{"empty spec passes everything", types.FilterSpec{}, true},
		{"include maker match", types.FilterSpec{IncludeMaker: []string{"S1|MOODYZ"}}, true},
		{"include maker miss", types.FilterSpec{IncludeMaker: []string{"MOODYZ"}}, false},
		{"exclude genre hit", types.FilterSpec{ExcludeGenre: []string{"ハイビジョン"}}, false},
		{"exclude genre miss", types.FilterSpec{ExcludeGenre: []string{"VR"}}, true},
		{"include matches anywhere in joined actresses", types.FilterSpec{IncludeActress: []string{"太郎"}}, true},
		{"cid prefix anchor", types.FilterSpec{IncludeCIDPrefix: []string{"^SSIS"}}, true},
		{"cid prefix anchor miss", types.FilterSpec{IncludeCIDPrefix: []string{"^ABW"}}, false},
		{"case-insensitive", types.FilterSpec{IncludeCIDPrefix: []string{"^ssis"}}, true},
		{"title include", types.FilterSpec{IncludeTitle: []string{"デビュー|初撮り"}}, true},
		{
			name: "include and exclude combine per field",
			spec: types.FilterSpec{
				IncludeMaker: []string{"S1"},
				ExcludeGenre: []string{"単体"},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mustEngine(t, tt.spec)
			if got := e.Passes(sampleRecord()); got != tt.want {
				t.Errorf("Passes = %v, want %v", got, tt.want)
			}
		})
	}
}

// Monotonicity: growing an exclude list can only flip pass->fail, and
// growing an include list can only flip fail->pass for the added
// pattern's matches.
func TestPasses_Monotonic(t *testing.T) {
	rec := sampleRecord()

	base := types.FilterSpec{ExcludeGenre: []string{"VR"}}
	if !mustEngine(t, base).Passes(rec) {
		t.Fatal("base spec should pass")
	}
	grown := types.FilterSpec{ExcludeGenre: []string{"VR", "単体"}}
	if mustEngine(t, grown).Passes(rec) {
		t.Error("adding an exclude pattern must not un-fail a record")
	}

	failing := types.FilterSpec{IncludeMaker: []string{"MOODYZ"}}
	if mustEngine(t, failing).Passes(rec) {
		t.Fatal("include-miss spec should fail")
	}
	widened := types.FilterSpec{IncludeMaker: []string{"MOODYZ", "S1"}}
	if !mustEngine(t, widened).Passes(rec) {
		t.Error("adding an include pattern that matches must pass the record")
	}
}

func TestNewEngine_BadPattern(t *testing.T) {
	if _, err := NewEngine(types.FilterSpec{IncludeTitle: []string{"("}}); err == nil {
		t.Fatal("expected compile error for malformed pattern")
	}
}

func TestReason(t *testing.T) {
	e := mustEngine(t, types.FilterSpec{ExcludeGenre: []string{"単体"}})
	if reason := e.Reason(sampleRecord()); reason == "" {
		t.Error("failing record should produce a reason")
	}
	e2 := mustEngine(t, types.FilterSpec{})
	if reason := e2.Reason(sampleRecord()); reason != "" {
		t.Errorf("passing record reason = %q, want empty", reason)
	}
}
