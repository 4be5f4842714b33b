package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/flowlens/pkg/schema"
)

// statusTag returns a short ASCII indicator for a status overlay.
func statusTag(st *StatusOverlay) string {
	switch {
	case st == nil:
		return ""
	case st.Unreachable:
		return "[UNREACHABLE]"
	case st.Severity == schema.SeverityError:
		return "[ERR]"
	case st.Severity == schema.SeverityWarning:
		return "[WARN]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text-based ASCII diagram.
// It uses a level-based layout with box-drawing characters, followed by the
// labeled branches, the loop bodies and the unreachable elements.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := model.Node(nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	var labeled []Edge
	for _, e := range model.Edges {
		if e.Label != "" {
			labeled = append(labeled, e)
		}
	}
	if len(labeled) > 0 {
		b.WriteString("\n--- branches ---\n")
		for _, e := range labeled {
			fmt.Fprintf(&b, "  %s ─→ %s [%s]\n", e.From, e.To, e.Label)
		}
	}

	for _, c := range model.Clusters {
		fmt.Fprintf(&b, "\n--- %s ---\n", c.Label)
		for _, id := range c.NodeIDs {
			if node := model.Node(id); node != nil {
				fmt.Fprintf(&b, "  %s\n", firstLine(node.Label))
			}
		}
	}

	var unreachable []*Node
	for _, node := range model.Nodes {
		if node.Status != nil && node.Status.Unreachable {
			unreachable = append(unreachable, node)
		}
	}
	if len(unreachable) > 0 {
		b.WriteString("\n--- unreachable ---\n")
		for _, node := range unreachable {
			fmt.Fprintf(&b, "  %s\n", firstLine(node.Label))
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	contentLines := strings.Split(node.Label, "\n")
	if tag := statusTag(node.Status); tag != "" {
		contentLines = append(contentLines, tag)
	}

	maxLen := 0
	for _, line := range contentLines {
		maxLen = max(maxLen, len(line))
	}
	width := maxLen + 4 // 2 border + 2 padding

	var lines []string
	top := "┌" + strings.Repeat("─", width-2) + "┐"
	bot := "└" + strings.Repeat("─", width-2) + "┘"
	lines = append(lines, top)
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-len(content))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bot)

	return asciiBox{lines: lines, width: width}
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		maxHeight = max(maxHeight, len(box.lines))
	}

	for row := range maxHeight {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ") // gap between boxes
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}
