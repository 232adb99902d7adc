package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"plodtrack/models"
)

// csvHeader is the fixed export header. Consumers key on these names.
var csvHeader = []string{
	"ID",
	"Activity Name",
	"User Name",
	"Role",
	"Start Time",
	"End Time",
	"Duration (s)",
	"Shift",
	"Co-workers (IDs)",
	"Logged Data",
}

// RenderCSV writes the entries as flat tabular rows: one header plus one row
// per log, with co-workers and metrics flattened into ';'-delimited fields
// and metric entries formatted as Name:Value.
func RenderCSV(entries []models.LogEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range entries {
		metrics := make([]string, 0, len(e.Metrics))
		for _, m := range e.Metrics {
			metrics = append(metrics, fmt.Sprintf("%s:%s", m.Name, m.Value))
		}

		row := []string{
			e.ID,
			e.ActivityName,
			e.UserName,
			e.Role.Display(),
			e.StartTime.Format(time.RFC3339),
			e.EndTime.Format(time.RFC3339),
			strconv.FormatInt(e.DurationSeconds, 10),
			e.Shift.Display(),
			strings.Join(e.Coworkers, ";"),
			strings.Join(metrics, ";"),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}
