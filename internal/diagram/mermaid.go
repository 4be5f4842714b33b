package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/flowlens/pkg/schema"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	// Loop bodies first, then the remaining nodes.
	for _, c := range model.Clusters {
		fmt.Fprintf(&b, "    subgraph %s[\"%s\"]\n", mermaidSafeID(c.ID), mermaidEscapeLabel(c.Label))
		for _, id := range c.NodeIDs {
			if node := model.Node(id); node != nil {
				fmt.Fprintf(&b, "        %s\n", mermaidNodeDef(node))
			}
		}
		b.WriteString("    end\n")
	}
	for _, node := range model.Nodes {
		if model.clusterOf(node.ID) == nil {
			fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
		}
	}

	for _, edge := range model.Edges {
		arrow := "-->"
		if edge.Fault {
			arrow = "-.->"
		}
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		fmt.Fprintf(&b, "    %s %s%s %s\n", mermaidSafeID(edge.From), arrow, label, mermaidSafeID(edge.To))
	}

	b.WriteString("\n")
	b.WriteString("    classDef error fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef warning fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef unreachable fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5\n")

	for _, node := range model.Nodes {
		if cls := mermaidStatusClass(node.Status); cls != "" {
			fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), cls)
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(firstLine(node.Label))

	switch node.Kind {
	case NodeKindDecision:
		return fmt.Sprintf("%s{\"%s\"}", id, label)
	case NodeKindLoop:
		return fmt.Sprintf("%s{{\"%s\"}}", id, label)
	case NodeKindWait:
		return fmt.Sprintf("%s([\"%s\"])", id, label)
	case NodeKindScreen:
		return fmt.Sprintf("%s[/\"%s\"/]", id, label)
	case NodeKindRecord:
		return fmt.Sprintf("%s[(\"%s\")]", id, label)
	case NodeKindSubflow:
		return fmt.Sprintf("%s[[\"%s\"]]", id, label)
	case NodeKindStart, NodeKindEnd:
		return fmt.Sprintf("%s((\"%s\"))", id, label)
	default: // action, assignment
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots, dashes and spaces with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", "$", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel escapes double quotes for quoted Mermaid labels.
func mermaidEscapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}

// mermaidStatusClass maps a status overlay to a Mermaid class name.
func mermaidStatusClass(st *StatusOverlay) string {
	switch {
	case st == nil:
		return ""
	case st.Unreachable:
		return "unreachable"
	case st.Severity == schema.SeverityError:
		return "error"
	case st.Severity == schema.SeverityWarning:
		return "warning"
	default:
		return ""
	}
}
