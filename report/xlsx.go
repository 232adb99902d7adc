package report

import (
	"fmt"
	"strings"
	"time"

	"plodtrack/models"

	"github.com/xuri/excelize/v2"
)

// RenderXLSX writes the entries as an XLSX workbook with one sheet, using
// the same columns as the CSV export.
func RenderXLSX(entries []models.LogEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Plod Logs"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	for col, name := range csvHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to compute header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, e := range entries {
		metrics := make([]string, 0, len(e.Metrics))
		for _, m := range e.Metrics {
			metrics = append(metrics, fmt.Sprintf("%s:%s", m.Name, m.Value))
		}
		values := []any{
			e.ID,
			e.ActivityName,
			e.UserName,
			e.Role.Display(),
			e.StartTime.Format(time.RFC3339),
			e.EndTime.Format(time.RFC3339),
			e.DurationSeconds,
			e.Shift.Display(),
			strings.Join(e.Coworkers, ";"),
			strings.Join(metrics, ";"),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("failed to compute cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
