package diagram

import (
	"fmt"

	"github.com/rendis/flowlens/internal/engine"
	"github.com/rendis/flowlens/internal/narrative"
	"github.com/rendis/flowlens/pkg/schema"
)

const endID = "__end__"

// Build constructs a DiagramModel from a linearized graph. Reachable elements
// come first in visit order, unreachable ones after them in declaration order.
// Declarative elements are not drawn. Lint issues, when given, are overlaid on
// the nodes they name.
func Build(g *engine.Graph, issues []schema.ValidationIssue) (*DiagramModel, error) {
	if g == nil {
		return nil, fmt.Errorf("diagram: nil graph")
	}
	if entry, ok := g.Lookup(g.Entry); !ok || !entry.Visited() {
		return nil, fmt.Errorf("diagram: graph is not linearized")
	}

	byElement := make(map[string][]schema.ValidationIssue)
	for _, is := range issues {
		byElement[is.Path] = append(byElement[is.Path], is)
	}

	model := &DiagramModel{Title: titleOf(g)}
	ordered := g.Ordered()
	terminal := false

	for _, el := range ordered {
		model.Nodes = append(model.Nodes, elementNode(el, byElement[el.Name]))
		out := 0
		for _, br := range el.Branches {
			if !br.Resolved {
				continue
			}
			out++
			model.Edges = append(model.Edges, Edge{
				From:  el.Name,
				To:    br.Target,
				Label: edgeLabel(br),
				Fault: br.Kind == engine.BranchFault,
			})
		}
		if out == 0 {
			terminal = true
			model.Edges = append(model.Edges, Edge{From: el.Name, To: endID})
		}
	}
	if terminal {
		model.Nodes = append(model.Nodes, &Node{ID: endID, Label: "End", Kind: NodeKindEnd})
	}

	for _, el := range g.Unreachable() {
		node := elementNode(el, byElement[el.Name])
		node.Status.Unreachable = true
		model.Nodes = append(model.Nodes, node)
	}

	model.Levels = buildLevels(g, terminal)
	model.Clusters = buildClusters(g)
	return model, nil
}

// elementNode maps an element to a node. Status is always set.
func elementNode(el *engine.Element, issues []schema.ValidationIssue) *Node {
	node := &Node{
		ID:     el.Name,
		Label:  nodeLabel(el),
		Kind:   kindOf(el.Kind),
		Status: &StatusOverlay{},
	}
	for _, is := range issues {
		node.Status.Codes = append(node.Status.Codes, is.Code)
		if is.Severity == schema.SeverityError || node.Status.Severity == "" {
			node.Status.Severity = is.Severity
		}
	}
	return node
}

func kindOf(k schema.Kind) NodeKind {
	switch k {
	case schema.KindStart:
		return NodeKindStart
	case schema.KindDecision:
		return NodeKindDecision
	case schema.KindLoop:
		return NodeKindLoop
	case schema.KindWait:
		return NodeKindWait
	case schema.KindScreen:
		return NodeKindScreen
	case schema.KindRecordLookup, schema.KindRecordCreate, schema.KindRecordUpdate,
		schema.KindRecordDelete, schema.KindRecordRollback:
		return NodeKindRecord
	case schema.KindActionCall, schema.KindApexPluginCall:
		return NodeKindAction
	case schema.KindSubflow:
		return NodeKindSubflow
	default:
		return NodeKindAssignment
	}
}

// nodeLabel is the display label, followed on a second line by what a
// side-effecting element does.
func nodeLabel(el *engine.Element) string {
	if el.Kind.SideEffecting() {
		return fmt.Sprintf("%s\n(%s %s)", el.DisplayLabel(), narrative.Verb(el.Kind), narrative.Target(el))
	}
	return el.DisplayLabel()
}

// edgeLabel names the outcome of a branch. Success paths are unlabeled.
func edgeLabel(br engine.Branch) string {
	switch br.Kind {
	case engine.BranchPrimary:
		return ""
	case engine.BranchFault:
		return "fault"
	default:
		return br.Outcome
	}
}

// buildLevels groups reachable elements by their shortest distance from the
// entry, keeping visit order within a level. End gets a level of its own.
func buildLevels(g *engine.Graph, withEnd bool) [][]string {
	depth := map[string]int{g.Entry: 0}
	queue := []string{g.Entry}
	maxDepth := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		el, _ := g.Lookup(cur)
		for _, br := range el.Branches {
			if !br.Resolved {
				continue
			}
			if _, seen := depth[br.Target]; seen {
				continue
			}
			depth[br.Target] = depth[cur] + 1
			maxDepth = max(maxDepth, depth[br.Target])
			queue = append(queue, br.Target)
		}
	}

	levels := make([][]string, maxDepth+1)
	for _, el := range g.Ordered() {
		if d, ok := depth[el.Name]; ok {
			levels[d] = append(levels[d], el.Name)
		}
	}
	if withEnd {
		levels = append(levels, []string{endID})
	}
	return levels
}

// buildClusters draws each reachable element in the innermost loop whose body
// contains it.
func buildClusters(g *engine.Graph) []*Cluster {
	type scope struct {
		loop *engine.Element
		size int
	}
	innermost := make(map[string]scope)
	bodies := make(map[string][]*engine.Element)

	for _, loop := range g.Loops() {
		if !loop.Visited() {
			continue
		}
		body := g.LoopBody(loop)
		bodies[loop.Name] = body
		for _, el := range body {
			if cur, ok := innermost[el.Name]; !ok || len(body) < cur.size {
				innermost[el.Name] = scope{loop: loop, size: len(body)}
			}
		}
	}

	var clusters []*Cluster
	for _, loop := range g.Loops() {
		body, ok := bodies[loop.Name]
		if !ok {
			continue
		}
		c := &Cluster{ID: "loop_" + loop.Name, Label: "loop " + loop.DisplayLabel()}
		for _, el := range body {
			if innermost[el.Name].loop == loop && el.Visited() {
				c.NodeIDs = append(c.NodeIDs, el.Name)
			}
		}
		if len(c.NodeIDs) > 0 {
			clusters = append(clusters, c)
		}
	}
	return clusters
}

func titleOf(g *engine.Graph) string {
	if g.Flow != nil && g.Flow.Label != "" {
		return g.Flow.Label
	}
	return "Flow"
}
