package pipeline

import (
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportTableToXLSX writes the destination table's current content to an
// xlsx file, header row first.
func ExportTableToXLSX(columns []string, rows [][]any, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, col)
	}

	for r, row := range rows {
		for c, value := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, exportValue(value))
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func exportValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.Format("2006-01-02 15:04:05")
	case []byte:
		return string(t)
	default:
		return v
	}
}
