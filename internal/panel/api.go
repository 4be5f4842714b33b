package panel

import (
	"fmt"
	"io"
	"net/http"

	"github.com/rendis/flowlens/internal/store"
	"github.com/rendis/flowlens/pkg/schema"
)

// maxAnalyzeBody caps the flow definition accepted by POST /api/analyze.
const maxAnalyzeBody = 10 << 20

// handleListReports returns archived report summaries.
func (s *PanelServer) handleListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reports, err := s.deps.Store.ListReports(r.Context(), store.ReportFilter{
		FlowLabel:   q.Get("q"),
		ProcessType: q.Get("type"),
		Fingerprint: q.Get("fingerprint"),
		Limit:       queryInt(r, "limit", 50),
		Offset:      queryInt(r, "offset", 0),
	})
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if reports == nil {
		reports = []*store.Summary{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// handleGetReport returns one archived record with its full report.
func (s *PanelServer) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Store.GetReport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteReport removes an archived report.
func (s *PanelServer) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Store.DeleteReport(r.Context(), id); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// handleAnalyze analyzes the flow definition in the request body. With
// ?save=true the report is archived before it is returned.
func (s *PanelServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analyzer == nil {
		writeError(w, http.StatusNotImplemented, "analysis is not enabled on this server")
		return
	}
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxAnalyzeBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}

	rep, err := s.deps.Analyzer.AnalyzeJSON(ctx, body)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	if r.URL.Query().Get("save") == "true" {
		rec := store.NewRecord(rep, r.URL.Query().Get("source"), body)
		if err := s.deps.Store.SaveReport(ctx, rec); err != nil {
			s.deps.Logger.ErrorContext(ctx, "save report failed", "report_id", rep.ID, "error", err)
			writeFlowError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// writeFlowError maps a FlowError code onto an HTTP status.
func writeFlowError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case schema.IsCode(err, schema.ErrCodeNotFound):
		status = http.StatusNotFound
	case schema.IsFatal(err), schema.IsCode(err, schema.ErrCodeValidation):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
