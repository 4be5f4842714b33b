package diagram

import "github.com/rendis/flowlens/pkg/schema"

// NodeKind classifies a diagram node by the shape it is drawn with.
type NodeKind string

const (
	NodeKindStart      NodeKind = "start"
	NodeKindEnd        NodeKind = "end"
	NodeKindDecision   NodeKind = "decision"
	NodeKindLoop       NodeKind = "loop"
	NodeKindWait       NodeKind = "wait"
	NodeKindScreen     NodeKind = "screen"
	NodeKindRecord     NodeKind = "record"
	NodeKindAction     NodeKind = "action"
	NodeKindSubflow    NodeKind = "subflow"
	NodeKindAssignment NodeKind = "assignment"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title    string
	Nodes    []*Node
	Edges    []Edge
	Levels   [][]string // reachable node IDs by shortest distance from Start
	Clusters []*Cluster
}

// Node represents one flow element.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status *StatusOverlay
}

// Cluster groups the body of a loop.
type Cluster struct {
	ID      string
	Label   string
	NodeIDs []string
}

// StatusOverlay carries analysis findings for a node.
type StatusOverlay struct {
	Unreachable bool
	Severity    schema.ValidationSeverity // highest lint severity, "" when clean
	Codes       []string                  // lint codes in report order
}

// Edge represents one resolved connector.
type Edge struct {
	From  string
	To    string
	Label string
	Fault bool
}

// Node returns the node with the given ID, or nil.
func (m *DiagramModel) Node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// clusterOf returns the cluster a node is drawn in, or nil.
func (m *DiagramModel) clusterOf(id string) *Cluster {
	for _, c := range m.Clusters {
		for _, member := range c.NodeIDs {
			if member == id {
				return c
			}
		}
	}
	return nil
}
