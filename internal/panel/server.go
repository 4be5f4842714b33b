// Package panel serves a read-only web browser over archived analysis
// reports, plus a small JSON API for analyzing and archiving new flows.
package panel

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/rendis/flowlens/internal/analysis"
	"github.com/rendis/flowlens/internal/logging"
	"github.com/rendis/flowlens/internal/store"
)

//go:embed templates static
var content embed.FS

// PanelDeps holds the dependencies for the panel server. Analyzer may be nil,
// which disables POST /api/analyze.
type PanelDeps struct {
	Store    store.Store
	Analyzer *analysis.Analyzer
	Logger   *slog.Logger
}

// PanelServer serves the report browser.
type PanelServer struct {
	deps  PanelDeps
	pages map[string]*template.Template
}

// NewPanelServer creates a new PanelServer with parsed templates.
func NewPanelServer(deps PanelDeps) *PanelServer {
	deps.Logger = logging.Default(deps.Logger)

	funcMap := template.FuncMap{
		"timeAgo":    timeAgo,
		"issueBadge": issueBadge,
		"truncate":   truncate,
		"add":        add,
		"subtract":   subtract,
	}

	// Each page clones the base layout so that its {{define "content"}}
	// doesn't collide with others.
	base := template.Must(template.New("").Funcs(funcMap).ParseFS(content, "templates/base.html"))

	pageFiles := []string{
		"reports.html",
		"report_detail.html",
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for _, pf := range pageFiles {
		clone := template.Must(base.Clone())
		pages[pf] = template.Must(clone.ParseFS(content, "templates/"+pf))
	}

	return &PanelServer{
		deps:  deps,
		pages: pages,
	}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	staticFS, _ := fs.Sub(content, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	// Pages.
	mux.HandleFunc("GET /{$}", s.handleReports)
	mux.HandleFunc("GET /reports/{id}", s.handleReportDetail)
	mux.HandleFunc("GET /reports/{id}/download", s.handleDownload)

	// API.
	mux.HandleFunc("GET /api/reports", s.handleListReports)
	mux.HandleFunc("GET /api/reports/{id}", s.handleGetReport)
	mux.HandleFunc("DELETE /api/reports/{id}", s.handleDeleteReport)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)

	return mux
}

// renderPage executes a page template by name.
func (s *PanelServer) renderPage(w http.ResponseWriter, page string, data any) {
	tmpl, ok := s.pages[page]
	if !ok {
		s.deps.Logger.Error("template not found", "page", page)
		http.Error(w, fmt.Sprintf("template %q not found", page), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		s.deps.Logger.Error("template render error", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
