// Package mcp exposes flow analysis to agents as MCP tools over stdio.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowlens/internal/analysis"
	"github.com/rendis/flowlens/internal/expressions"
	"github.com/rendis/flowlens/internal/logging"
	"github.com/rendis/flowlens/internal/store"
	"github.com/rendis/flowlens/internal/validation"
)

// FlowServerDeps holds the dependencies for creating a FlowServer. Store may
// be nil, which disables saving and flow.history.
type FlowServerDeps struct {
	Analyzer *analysis.Analyzer
	Store    store.Store
	Rules    []validation.Rule // lint rules the analyzer was built with
	Logger   *slog.Logger
	Version  string
}

// FlowServer wraps an MCP server with flowlens tool handlers.
type FlowServer struct {
	analyzer  *analysis.Analyzer
	store     store.Store
	rules     []validation.Rule
	cel       *expressions.CELEngine
	logger    *slog.Logger
	notifier  Notifier
	mcpServer *server.MCPServer
}

// NewFlowServer creates a new FlowServer with all tools registered.
func NewFlowServer(deps FlowServerDeps) (*FlowServer, error) {
	an := deps.Analyzer
	if an == nil {
		var err error
		an, err = analysis.New(analysis.Config{Logger: deps.Logger, Rules: deps.Rules})
		if err != nil {
			return nil, err
		}
	}
	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &FlowServer{
		analyzer: an,
		store:    deps.Store,
		rules:    deps.Rules,
		cel:      celEngine,
		logger:   logging.Default(deps.Logger),
	}

	mcpSrv := server.NewMCPServer(
		"flowlens",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("flowlens explains Salesforce flow definitions. Pass the flow metadata JSON as definition. "+
			"Use flow.analyze for the full report, flow.trace for the execution-ordered table, flow.narrate for a prose summary, "+
			"flow.diagram for ASCII, Mermaid or image diagrams, flow.lint for findings and flow.history to browse archived reports."),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv)
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *FlowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: analyzeTool(), Handler: s.handleAnalyze},
		{Tool: traceTool(), Handler: s.handleTrace},
		{Tool: narrateTool(), Handler: s.handleNarrate},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: lintTool(), Handler: s.handleLint},
		{Tool: historyTool(), Handler: s.handleHistory},
	}
}

// --- Tool definitions ---

func withDefinition() mcp.ToolOption {
	return mcp.WithObject("definition", mcp.Required(),
		mcp.Description("Flow metadata object, as returned by the Tooling API or a JSON-converted .flow-meta.xml"))
}

func analyzeTool() mcp.Tool {
	return mcp.NewTool("flow.analyze",
		mcp.WithDescription("Analyze a flow definition and return the full report: header, trace table, narrative, resources and lint findings"),
		withDefinition(),
		mcp.WithString("format",
			mcp.Enum("json", "markdown", "yaml", "text", "html"),
			mcp.Description("Report format (default: json)"),
		),
		mcp.WithBoolean("save", mcp.Description("Archive the report so flow.history can return it")),
		mcp.WithString("source", mcp.Description("Where the definition came from, stored with an archived report")),
	)
}

func traceTool() mcp.Tool {
	return mcp.NewTool("flow.trace",
		mcp.WithDescription("Return the execution-ordered trace table of a flow, optionally filtered by a CEL expression over element and flow"),
		withDefinition(),
		mcp.WithString("where", mcp.Description(`CEL filter, e.g. element.kind == "decision" or "Send_Email" in element.targets`)),
		mcp.WithString("format",
			mcp.Enum("json", "markdown"),
			mcp.Description("Table format (default: markdown)"),
		),
	)
}

func narrateTool() mcp.Tool {
	return mcp.NewTool("flow.narrate",
		mcp.WithDescription("Summarize in prose what a flow inserts, updates, deletes, queries and calls, and under which conditions"),
		withDefinition(),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("flow.diagram",
		mcp.WithDescription("Generate a diagram of a flow. Returns ASCII art, Mermaid flowchart syntax, or a PNG or SVG image"),
		withDefinition(),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "png", "svg"),
			mcp.Description("Output format"),
		),
	)
}

func lintTool() mcp.Tool {
	return mcp.NewTool("flow.lint",
		mcp.WithDescription("Check a flow for common problems: DML in loops, missing fault paths, unreachable elements, dangling connectors and hard-coded ids"),
		withDefinition(),
		mcp.WithArray("rules",
			mcp.Description("Extra rules, each {code, message, when, severity}; when is an expr-lang condition over element facts"),
			mcp.Items(map[string]any{"type": "object"}),
		),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("flow.history",
		mcp.WithDescription("List archived reports, or return one archived report by id"),
		mcp.WithString("id", mcp.Description("Report id; when set the full report is returned")),
		mcp.WithString("flow", mcp.Description("Case-insensitive substring of the flow label")),
		mcp.WithString("process_type", mcp.Description("Exact process type, e.g. AutoLaunchedFlow")),
		mcp.WithString("since", mcp.Description("RFC3339 timestamp; only reports created at or after it")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of reports (default: 20)")),
	)
}
