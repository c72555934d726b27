// internal/monitoring/metrics_test.go

package monitoring

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFlushWritesTextfile(t *testing.T) {
	m := New()
	m.ItemFetched()
	m.ItemFetched()
	m.ItemKept()
	m.ItemSkipped("duplicate")
	m.ItemSkipped("filtered")
	m.ItemSkipped("filtered")
	m.PostPublished()
	m.ImageMirrored()
	m.Error("mirror")

	path := filepath.Join(t.TempDir(), "metrics", "fanzapress.prom")
	if err := m.Flush(path, 1756600000); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(raw)
	for _, want := range []string{
		"fanzapress_items_fetched_total 2",
		"fanzapress_items_kept_total 1",
		`fanzapress_items_skipped_total{reason="duplicate"} 1`,
		`fanzapress_items_skipped_total{reason="filtered"} 2`,
		"fanzapress_posts_published_total 1",
		"fanzapress_images_mirrored_total 1",
		`fanzapress_errors_total{stage="mirror"} 1`,
		"fanzapress_last_run_timestamp_seconds 1.7566e+09",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q\n%s", want, out)
		}
	}
}

func TestFlushDisabledWithEmptyPath(t *testing.T) {
	if err := New().Flush("", 0); err != nil {
		t.Fatal(err)
	}
}
