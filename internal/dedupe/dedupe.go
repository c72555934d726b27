// internal/dedupe/dedupe.go

// Package dedupe tracks previously-processed external IDs across runs.
// The skip set is rebuilt each run by scanning prior CSV outputs and an
// append-only ledger records every kept record for future runs.
package dedupe

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fanzapress/fanzapress/pkg/types"
)

// utf8BOM is written at the start of new ledger files for spreadsheet
// compatibility and stripped when scanning.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// idColumnCandidates is the prioritized list of column names holding
// the external id, tried as exact match, then case-insensitive, then
// as a content_id-like substring.
var idColumnCandidates = []string{"external_id", "cid", "content_id"}

// ScanConfig describes where prior outputs live.
type ScanConfig struct {
	// Sources are explicit CSV paths or glob patterns, additionally
	// accepted as one comma-delimited string per entry.
	Sources []string `yaml:"sources" json:"sources"`

	// Dirs are directories whose *.csv files are all scanned.
	Dirs []string `yaml:"dirs" json:"dirs"`
}

// BuildSkipSet scans the configured prior outputs and returns the set
// of external IDs already processed. Unreadable or malformed files are
// skipped, never fatal: a corrupt old export must not block a run.
func BuildSkipSet(cfg ScanConfig) map[string]struct{} {
	skip := make(map[string]struct{})

	var paths []string
	for _, source := range cfg.Sources {
		for _, part := range strings.Split(source, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if matches, err := filepath.Glob(part); err == nil && len(matches) > 0 {
				paths = append(paths, matches...)
			} else {
				paths = append(paths, part)
			}
		}
	}
	for _, dir := range cfg.Dirs {
		if dir == "" {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
		if err != nil {
			continue
		}
		sort.Strings(matches)
		paths = append(paths, matches...)
	}

	for _, path := range paths {
		scanFile(path, skip)
	}
	return skip
}

// scanFile extracts external IDs from one CSV into the set. All errors
// are swallowed by design; see BuildSkipSet.
func scanFile(path string, skip map[string]struct{}) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil || len(header) == 0 {
		return
	}
	header[0] = strings.TrimPrefix(header[0], string(utf8BOM))

	col := resolveIDColumn(header)
	if col < 0 {
		return
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			// Malformed row: keep scanning, the rest may be fine.
			continue
		}
		if col < len(row) {
			if id := strings.TrimSpace(row[col]); id != "" {
				skip[id] = struct{}{}
			}
		}
	}
}

// resolveIDColumn finds the external-id column index, or -1.
func resolveIDColumn(header []string) int {
	for _, cand := range idColumnCandidates {
		for i, h := range header {
			if h == cand {
				return i
			}
		}
	}
	for _, cand := range idColumnCandidates {
		for i, h := range header {
			if strings.EqualFold(h, cand) {
				return i
			}
		}
	}
	for i, h := range header {
		if strings.Contains(strings.ToLower(h), "content_id") {
			return i
		}
	}
	return -1
}

// ledgerColumns is the fixed ledger column order. The timestamp column
// name is appended per-ledger (exported_at or posted_at).
var ledgerColumns = []string{
	"external_id", "title", "date", "maker", "actress",
	"url", "primary_image", "gallery_images",
}

// Ledger appends processed records to an append-only CSV, creating the
// file with a header row on first use.
type Ledger struct {
	path           string
	timestampField string
	now            func() time.Time
}

// NewLedger creates a ledger writing to path. timestampField names the
// outcome timestamp column: "posted_at" for the publish sink,
// "exported_at" for CSV-only runs.
func NewLedger(path, timestampField string) *Ledger {
	if timestampField == "" {
		timestampField = "exported_at"
	}
	return &Ledger{path: path, timestampField: timestampField, now: time.Now}
}

// Append writes one record row. Columns outside the fixed order are
// ignored except for the supplied extra fields, which append after the
// timestamp in map-key-sorted order for deterministic output.
func (l *Ledger) Append(rec *types.Record, extra map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	_, statErr := os.Stat(l.path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	extraKeys := make([]string, 0, len(extra))
	for k := range extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)

	w := csv.NewWriter(f)
	if isNew {
		if _, err := f.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write ledger BOM: %w", err)
		}
		header := append(append([]string{}, ledgerColumns...), l.timestampField)
		header = append(header, extraKeys...)
		if err := w.Write(header); err != nil {
			return fmt.Errorf("failed to write ledger header: %w", err)
		}
	}

	row := []string{
		rec.ExternalID,
		rec.Title,
		rec.Date,
		rec.Maker,
		rec.Actress,
		rec.AffiliateURLOrCanonical(),
		rec.PrimaryImage,
		rec.GalleryJoined(),
		l.now().Format(time.RFC3339),
	}
	for _, k := range extraKeys {
		row = append(row, extra[k])
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to append ledger row: %w", err)
	}
	w.Flush()
	return w.Error()
}
