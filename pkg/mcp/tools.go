package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/flowlens/internal/analysis"
	"github.com/rendis/flowlens/internal/diagram"
	"github.com/rendis/flowlens/internal/narrative"
	"github.com/rendis/flowlens/internal/report"
	"github.com/rendis/flowlens/internal/store"
	"github.com/rendis/flowlens/internal/validation"
	"github.com/rendis/flowlens/pkg/schema"
)

// handleAnalyze runs the full analysis and renders the report.
func (s *FlowServer) handleAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := report.ParseFormat(req.GetString("format", "json"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, rep, errResult := s.analyze(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	if req.GetBool("save", false) {
		if s.store == nil {
			return mcp.NewToolResultError("report archive is not configured"), nil
		}
		rec := store.NewRecord(rep, req.GetString("source", ""), raw)
		if err := s.store.SaveReport(ctx, rec); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to save report: %v", err)), nil
		}
		if err := s.notifier.ReportArchived(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "archive notification failed", "report_id", rec.ID, "error", err)
		}
	}

	if format == report.FormatJSON {
		return marshalResult(rep)
	}
	var buf bytes.Buffer
	if err := report.Render(&buf, rep, format); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("render failed: %v", err)), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

// handleTrace returns the trace table, filtered by an optional CEL expression.
func (s *FlowServer) handleTrace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, rep, errResult := s.analyze(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	rows, err := analysis.FilterRows(ctx, s.cel, req.GetString("where", ""), rep.Flow, rep.Rows)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("filter failed: %v", err)), nil
	}

	if req.GetString("format", "markdown") == "json" {
		return marshalResult(map[string]any{"flow": rep.Flow, "rows": rows})
	}
	return mcp.NewToolResultText(report.Table(rows)), nil
}

// handleNarrate returns the narrative sentences as prose.
func (s *FlowServer) handleNarrate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, rep, errResult := s.analyze(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	if len(rep.Narrative) == 0 {
		return mcp.NewToolResultText("This flow has no record operations, action calls or subflows."), nil
	}
	return mcp.NewToolResultText("This flow:\n" + narrative.Join(rep.Narrative)), nil
}

// handleDiagram renders the linearized graph in the requested format.
func (s *FlowServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "png" && format != "svg" {
		return mcp.NewToolResultError("format must be ascii, mermaid, png or svg"), nil
	}

	_, rep, errResult := s.analyze(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	model, err := diagram.Build(rep.Graph, rep.Issues)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", err)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		imgFormat := diagram.ImageFormat(format)
		img, err := diagram.RenderImage(ctx, model, imgFormat)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", err)), nil
		}
		mime := "image/png"
		if imgFormat == diagram.ImageSVG {
			mime = "image/svg+xml"
		}
		return mcp.NewToolResultImage(model.Title, base64.StdEncoding.EncodeToString(img), mime), nil
	}
}

// handleLint returns lint findings and unreachable elements. Extra rules
// apply to this call only.
func (s *FlowServer) handleLint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	extra, err := parseRules(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	an := s.analyzer
	if len(extra) > 0 {
		an, err = analysis.New(analysis.Config{
			Logger: s.logger,
			Rules:  append(append([]validation.Rule(nil), s.rules...), extra...),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid rules: %v", err)), nil
		}
	}

	_, rep, errResult := s.analyzeWith(ctx, an, req)
	if errResult != nil {
		return errResult, nil
	}

	issues := rep.Issues
	if issues == nil {
		issues = []schema.ValidationIssue{}
	}
	return marshalResult(map[string]any{
		"flow":        rep.Flow.Label,
		"issues":      issues,
		"unreachable": rep.Unreachable,
	})
}

// handleHistory lists archived reports or returns one by id.
func (s *FlowServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("report archive is not configured"), nil
	}

	if id := req.GetString("id", ""); id != "" {
		rec, err := s.store.GetReport(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("report lookup failed: %v", err)), nil
		}
		return marshalResult(rec)
	}

	filter := store.ReportFilter{
		FlowLabel:   req.GetString("flow", ""),
		ProcessType: req.GetString("process_type", ""),
		Limit:       req.GetInt("limit", 20),
	}
	if since := req.GetString("since", ""); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("since must be RFC3339: %v", err)), nil
		}
		filter.Since = &t
	}

	reports, err := s.store.ListReports(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	if reports == nil {
		reports = []*store.Summary{}
	}
	return marshalResult(map[string]any{"reports": reports})
}

// --- Internal helpers ---

func (s *FlowServer) analyze(ctx context.Context, req mcp.CallToolRequest) ([]byte, *analysis.Report, *mcp.CallToolResult) {
	return s.analyzeWith(ctx, s.analyzer, req)
}

// analyzeWith decodes the definition argument and analyzes it. A failure is
// returned as a tool error result; fatal definition errors carry the same
// wording as the CLI.
func (s *FlowServer) analyzeWith(ctx context.Context, an *analysis.Analyzer, req mcp.CallToolRequest) ([]byte, *analysis.Report, *mcp.CallToolResult) {
	raw, err := definitionArg(req)
	if err != nil {
		return nil, nil, mcp.NewToolResultError(err.Error())
	}

	rep, err := an.AnalyzeJSON(ctx, raw)
	if err != nil {
		s.logger.DebugContext(ctx, "analysis failed", "error", err)
		return nil, nil, mcp.NewToolResultError(fmt.Sprintf("flow definition could not be parsed: %v", err))
	}
	return raw, rep, nil
}

// definitionArg returns the definition argument as raw JSON. Both an object
// and a JSON-encoded string are accepted.
func definitionArg(req mcp.CallToolRequest) ([]byte, error) {
	v, ok := req.GetArguments()["definition"]
	if !ok || v == nil {
		return nil, fmt.Errorf("definition is required")
	}
	if str, ok := v.(string); ok {
		if str == "" {
			return nil, fmt.Errorf("definition is required")
		}
		return []byte(str), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("invalid definition: %v", err)
	}
	return raw, nil
}

// parseRules decodes the optional rules argument.
func parseRules(req mcp.CallToolRequest) ([]validation.Rule, error) {
	v, ok := req.GetArguments()["rules"]
	if !ok || v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("invalid rules: %v", err)
	}
	var rules []validation.Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("invalid rules: %v", err)
	}
	return rules, nil
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
