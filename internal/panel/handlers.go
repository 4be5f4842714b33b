package panel

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"

	"github.com/rendis/flowlens/internal/report"
	"github.com/rendis/flowlens/internal/store"
	"github.com/rendis/flowlens/pkg/schema"
)

// --- Page data types ---

type pageData struct {
	Title  string
	Active string
}

type reportsData struct {
	pageData
	Reports     []*store.Summary
	Query       string
	ProcessType string
	Limit       int
	Offset      int
	HasMore     bool
}

type reportDetailData struct {
	pageData
	Record  *store.Record
	Table   template.HTML // trace table fragment
	Formats []report.Format
}

// --- Page handlers ---

func (s *PanelServer) handleReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	// One extra row tells whether a next page exists.
	reports, err := s.deps.Store.ListReports(ctx, store.ReportFilter{
		FlowLabel:   q.Get("q"),
		ProcessType: q.Get("type"),
		Limit:       limit + 1,
		Offset:      offset,
	})
	if err != nil {
		s.deps.Logger.Error("list reports failed", "error", err)
		reports = nil
	}
	hasMore := len(reports) > limit
	if hasMore {
		reports = reports[:limit]
	}

	s.renderPage(w, "reports.html", reportsData{
		pageData:    pageData{Title: "Reports", Active: "reports"},
		Reports:     reports,
		Query:       q.Get("q"),
		ProcessType: q.Get("type"),
		Limit:       limit,
		Offset:      offset,
		HasMore:     hasMore,
	})
}

func (s *PanelServer) handleReportDetail(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRecord(w, r)
	if !ok {
		return
	}

	var table bytes.Buffer
	if err := report.Fragment(&table, rec.Report); err != nil {
		s.deps.Logger.Error("render table failed", "report_id", rec.ID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.renderPage(w, "report_detail.html", reportDetailData{
		pageData: pageData{Title: rec.FlowLabel, Active: "reports"},
		Record:   rec,
		Table:    template.HTML(table.String()),
		Formats:  report.Formats,
	})
}

// handleDownload renders an archived report in the requested format as an
// attachment.
func (s *PanelServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, ok := s.loadRecord(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, rec.Report, format); err != nil {
		s.deps.Logger.Error("render report failed", "report_id", rec.ID, "format", format, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadName(rec.FlowLabel, format)+`"`)
	_, _ = w.Write(buf.Bytes())
}

var contentTypes = map[report.Format]string{
	report.FormatMarkdown: "text/markdown; charset=utf-8",
	report.FormatHTML:     "text/html; charset=utf-8",
	report.FormatJSON:     "application/json",
	report.FormatYAML:     "application/yaml",
	report.FormatText:     "text/plain; charset=utf-8",
}

// downloadName keeps the markdown attachment name and swaps the extension
// for the other formats. Quotes are stripped from the label.
func downloadName(label string, format report.Format) string {
	name := report.DownloadName(strings.ReplaceAll(label, `"`, ""))
	ext := map[report.Format]string{
		report.FormatHTML: ".html",
		report.FormatJSON: ".json",
		report.FormatYAML: ".yaml",
		report.FormatText: ".txt",
	}[format]
	if ext == "" {
		return name
	}
	return strings.TrimSuffix(name, ".md") + ext
}

// loadRecord fetches the report named by the id path value, writing a 404 or
// 500 page when it cannot.
func (s *PanelServer) loadRecord(w http.ResponseWriter, r *http.Request) (*store.Record, bool) {
	id := r.PathValue("id")
	rec, err := s.deps.Store.GetReport(r.Context(), id)
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeNotFound) {
			http.Error(w, "report not found", http.StatusNotFound)
			return nil, false
		}
		s.deps.Logger.Error("get report failed", "report_id", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	return rec, true
}
