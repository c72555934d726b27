// internal/output/excel.go

package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/fanzapress/fanzapress/pkg/types"
)

// ExcelWriter exports records as an .xlsx workbook with a styled
// header row and frozen top pane.
type ExcelWriter struct {
	Path string

	// SheetName overrides the default "Items" sheet name.
	SheetName string
}

func (w *ExcelWriter) WriteAll(records []*types.Record) error {
	sheet := w.SheetName
	if sheet == "" {
		sheet = "Items"
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	cols := columns(records)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDDDDD"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	header := make([]interface{}, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(cols))
	if err != nil {
		return fmt.Errorf("resolve column name: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	row := make([]interface{}, len(cols))
	for i, rec := range records {
		values := rec.Row()
		for j, c := range cols {
			row[j] = values[c]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("resolve cell: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %s: %w", rec.ExternalID, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := f.SaveAs(w.Path); err != nil {
		return fmt.Errorf("save %s: %w", w.Path, err)
	}
	return nil
}

var _ Sink = (*ExcelWriter)(nil)
var _ Sink = (*CSVWriter)(nil)
