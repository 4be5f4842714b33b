package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/flowlens/pkg/schema"
)

func TestRenderASCII(t *testing.T) {
	model := buildModel(t, schema.ValidationIssue{Path: "Create", Code: "X", Severity: schema.SeverityWarning})
	out := RenderASCII(model)

	assert.True(t, strings.HasPrefix(out, "=== Branching ===\n\n"))
	assert.Contains(t, out, "│ Start │")
	assert.Contains(t, out, "│ (inserts Account) │")
	assert.Contains(t, out, "[WARN]")
	assert.Contains(t, out, "▼")
	assert.Contains(t, out, "--- branches ---\n")
	assert.Contains(t, out, "  D ─→ Create [Yes]\n")
	assert.Contains(t, out, "  Create ─→ Log [fault]\n")
	assert.Contains(t, out, "--- loop Each ---\n  U\n")
	assert.Contains(t, out, "--- unreachable ---\n  Orphan\n")
}

func TestRenderASCII_SideBySideLevel(t *testing.T) {
	model := &DiagramModel{
		Nodes: []*Node{
			{ID: "a", Label: "a", Kind: NodeKindAction},
			{ID: "bb", Label: "bb", Kind: NodeKindAction},
		},
		Levels: [][]string{{"a", "bb"}},
	}
	out := RenderASCII(model)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "│ a │  │ bb │", lines[1])
	assert.NotContains(t, out, "===")
}

func TestStatusTag(t *testing.T) {
	assert.Empty(t, statusTag(nil))
	assert.Empty(t, statusTag(&StatusOverlay{}))
	assert.Equal(t, "[UNREACHABLE]", statusTag(&StatusOverlay{Unreachable: true, Severity: schema.SeverityError}))
	assert.Equal(t, "[ERR]", statusTag(&StatusOverlay{Severity: schema.SeverityError}))
}
