package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/rendis/flowlens/internal/analysis"
	"github.com/rendis/flowlens/internal/trace"
)

//go:embed templates/*.html
var content embed.FS

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"lines": lines,
}).ParseFS(content, "templates/*.html"))

// htmlRow is one table row prepared for the template.
type htmlRow struct {
	Anchor     string // element name, set on head rows only
	Detail     string // description after the element name
	Kind       string
	Parameters string
	Condition  string
	Next       string
	Linked     bool // Next names an element of the table
}

type htmlPage struct {
	Report    *analysis.Report
	Rows      []htmlRow
	Resources []htmlRow
}

// HTML writes the report as a standalone HTML page. Element cells carry an
// anchor; next-element cells link to it only when the target has rows of its
// own.
func HTML(w io.Writer, r *analysis.Report) error {
	page := htmlPage{
		Report:    r,
		Rows:      htmlRows(r.Rows),
		Resources: htmlRows(r.Resources),
	}
	if err := pages.ExecuteTemplate(w, "report.html", page); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}

// Fragment writes only the trace table, for embedding into other pages.
func Fragment(w io.Writer, r *analysis.Report) error {
	if err := pages.ExecuteTemplate(w, "table", htmlRows(r.Rows)); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}

func htmlRows(rows []trace.Row) []htmlRow {
	present := make(map[string]bool, len(rows))
	for _, row := range rows {
		present[row.Element] = true
	}

	out := make([]htmlRow, 0, len(rows))
	for _, row := range rows {
		hr := htmlRow{
			Kind:       string(row.Kind),
			Parameters: row.ParameterSummary,
			Condition:  row.BranchCondition,
			Next:       row.NextElementName,
			Linked:     present[row.NextElementName],
		}
		if !row.Continuation {
			hr.Anchor = row.Element
			hr.Detail = strings.TrimSpace(strings.TrimPrefix(row.ElementDescription, row.Element))
		}
		out = append(out, hr)
	}
	return out
}

// lines splits a " / " separated summary into display lines.
func lines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, trace.Separator)
}
