package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"plodtrack/models"
)

// Document is the paginated report model: one block per log entry with a
// sub-table of its metrics, split into fixed-size pages for printing.
type Document struct {
	Title       string
	GeneratedAt time.Time
	Pages       []Page
}

type Page struct {
	Number int
	Blocks []Block
}

type Block struct {
	ActivityName    string
	UserName        string
	Role            string
	Shift           string
	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds int64
	Coworkers       []string
	Metrics         []models.LoggedMetric
}

// DefaultBlocksPerPage matches roughly what fits on a printed A4 page.
const DefaultBlocksPerPage = 4

// BuildDocument lays the entries out into pages of blocksPerPage blocks.
func BuildDocument(title string, entries []models.LogEntry, blocksPerPage int) Document {
	if blocksPerPage <= 0 {
		blocksPerPage = DefaultBlocksPerPage
	}
	doc := Document{Title: title, GeneratedAt: time.Now()}

	var page Page
	for _, e := range entries {
		page.Blocks = append(page.Blocks, Block{
			ActivityName:    e.ActivityName,
			UserName:        e.UserName,
			Role:            e.Role.Display(),
			Shift:           e.Shift.Display(),
			StartTime:       e.StartTime,
			EndTime:         e.EndTime,
			DurationSeconds: e.DurationSeconds,
			Coworkers:       append([]string(nil), e.Coworkers...),
			Metrics:         append([]models.LoggedMetric(nil), e.Metrics...),
		})
		if len(page.Blocks) == blocksPerPage {
			page.Number = len(doc.Pages) + 1
			doc.Pages = append(doc.Pages, page)
			page = Page{}
		}
	}
	if len(page.Blocks) > 0 {
		page.Number = len(doc.Pages) + 1
		doc.Pages = append(doc.Pages, page)
	}
	return doc
}

// RenderText writes the document as plain text with page breaks, the form
// handed to the print spooler.
func (d Document) RenderText() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\nGenerated %s\n", d.Title, d.GeneratedAt.Format("2006-01-02 15:04"))
	for _, p := range d.Pages {
		fmt.Fprintf(&buf, "\n--- Page %d of %d ---\n", p.Number, len(d.Pages))
		for _, b := range p.Blocks {
			fmt.Fprintf(&buf, "\n%s - %s (%s), %s shift\n", b.ActivityName, b.UserName, b.Role, b.Shift)
			fmt.Fprintf(&buf, "  %s to %s (%ds)\n",
				b.StartTime.Format("2006-01-02 15:04"), b.EndTime.Format("2006-01-02 15:04"), b.DurationSeconds)
			for _, m := range b.Metrics {
				fmt.Fprintf(&buf, "  %-24s %s %s\n", m.Name, m.Value, m.Unit)
			}
			if len(b.Coworkers) > 0 {
				fmt.Fprintf(&buf, "  Co-workers: %s\n", strings.Join(b.Coworkers, ", "))
			}
		}
	}
	return buf.Bytes()
}

var htmlReport = template.Must(template.New("report").Funcs(template.FuncMap{
	"fmtTime": func(t time.Time) string { return t.Format("2006-01-02 15:04") },
	"fmtDur": func(s int64) string {
		return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #999; padding: 4px 8px; text-align: left; }
th { background: #eee; }
tr:nth-child(even) { background: #f7f7f7; }
.meta { color: #666; font-size: 0.85em; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">Generated {{fmtTime .GeneratedAt}} &middot; {{len .Entries}} entries</p>
<table>
<tr><th>Activity</th><th>User</th><th>Role</th><th>Shift</th><th>Start</th><th>End</th><th>Duration</th><th>Logged Data</th><th>Co-workers</th></tr>
{{range .Entries}}<tr>
<td>{{.ActivityName}}</td>
<td>{{.UserName}}</td>
<td>{{.Role.Display}}</td>
<td>{{.Shift.Display}}</td>
<td>{{fmtTime .StartTime}}</td>
<td>{{fmtTime .EndTime}}</td>
<td>{{fmtDur .DurationSeconds}}</td>
<td>{{range $i, $m := .Metrics}}{{if $i}}; {{end}}{{$m.Name}}: {{$m.Value}} {{$m.Unit}}{{end}}</td>
<td>{{range $i, $c := .Coworkers}}{{if $i}}; {{end}}{{$c}}{{end}}</td>
</tr>
{{end}}</table>
</body>
</html>
`))

type htmlData struct {
	Title       string
	GeneratedAt time.Time
	Entries     []models.LogEntry
}

// RenderHTML produces the standalone styled report page.
func RenderHTML(title string, entries []models.LogEntry) ([]byte, error) {
	var buf bytes.Buffer
	err := htmlReport.Execute(&buf, htmlData{
		Title:       title,
		GeneratedAt: time.Now(),
		Entries:     entries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render HTML report: %w", err)
	}
	return buf.Bytes(), nil
}
