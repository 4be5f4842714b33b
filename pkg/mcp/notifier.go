package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowlens/internal/store"
)

// Notifier tells connected clients about archive changes.
type Notifier interface {
	ReportArchived(ctx context.Context, rec *store.Record) error
}

// MCPNotifier implements Notifier with MCP log message notifications sent to
// the calling client.
type MCPNotifier struct {
	mcpServer *server.MCPServer
}

// NewMCPNotifier creates a notifier bound to mcpServer.
func NewMCPNotifier(mcpServer *server.MCPServer) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer}
}

// ReportArchived notifies the client whose request archived rec.
// Best-effort: returns nil when no initialized session is attached to ctx.
func (n *MCPNotifier) ReportArchived(ctx context.Context, rec *store.Record) error {
	err := n.mcpServer.SendNotificationToClient(ctx, "notifications/message", map[string]any{
		"level":  "info",
		"logger": "flowlens",
		"data": map[string]any{
			"event":       "report_archived",
			"report_id":   rec.ID,
			"flow":        rec.FlowLabel,
			"row_count":   rec.RowCount,
			"error_count": rec.ErrorCount,
		},
	})
	if errors.Is(err, server.ErrNotificationNotInitialized) || errors.Is(err, server.ErrSessionNotFound) {
		return nil
	}
	return err
}
