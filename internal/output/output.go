// internal/output/output.go

// Package output writes finished records to export files. The sink is
// chosen by file extension: .csv for spreadsheet-safe CSV, .xlsx for
// Excel workbooks.
package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fanzapress/fanzapress/pkg/types"
)

// Sink writes a full result set to its destination.
type Sink interface {
	WriteAll(records []*types.Record) error
}

// ForPath selects a sink by the destination's file extension.
func ForPath(path string) (Sink, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return &CSVWriter{Path: path}, nil
	case ".xlsx":
		return &ExcelWriter{Path: path}, nil
	default:
		return nil, fmt.Errorf("output: unsupported export extension %q", filepath.Ext(path))
	}
}

// columns returns the export header: the fixed base columns followed
// by every extra field in first-seen order across the records.
func columns(records []*types.Record) []string {
	cols := append([]string(nil), types.BaseColumns...)
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		seen[c] = true
	}
	for _, rec := range records {
		for _, k := range rec.ExtraKeys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

// CSVWriter exports records as UTF-8 CSV. A byte order mark is written
// first so Excel opens Japanese text correctly.
type CSVWriter struct {
	Path string
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func (w *CSVWriter) WriteAll(records []*types.Record) error {
	if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(w.Path)
	if err != nil {
		return fmt.Errorf("create %s: %w", w.Path, err)
	}
	defer f.Close()

	if _, err := f.Write(utf8BOM); err != nil {
		return fmt.Errorf("write BOM: %w", err)
	}

	cols := columns(records)
	cw := csv.NewWriter(f)
	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(cols))
	for _, rec := range records {
		values := rec.Row()
		for i, c := range cols {
			row[i] = values[c]
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", rec.ExternalID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", w.Path, err)
	}
	return f.Close()
}
