package engine

import (
	"sort"

	"github.com/rendis/flowlens/pkg/schema"
)

// BranchKind classifies an outgoing slot by the connector it was derived from.
type BranchKind string

const (
	BranchPrimary      BranchKind = "primary"
	BranchFault        BranchKind = "fault"
	BranchRule         BranchKind = "rule"
	BranchDefault      BranchKind = "default"
	BranchNextValue    BranchKind = "nextValue"
	BranchNoMoreValues BranchKind = "noMoreValues"
	BranchEvent        BranchKind = "event"
	BranchScheduled    BranchKind = "scheduled"
)

// Branch is one outgoing slot of an element. An empty Target terminates the
// path but still occupies its slot. Resolved reports whether Target names an
// element of the same graph.
type Branch struct {
	Target   string     `json:"target,omitempty"`
	Label    string     `json:"label"`
	Outcome  string     `json:"outcome"`
	Kind     BranchKind `json:"kind"`
	Index    int        `json:"index"`
	Resolved bool       `json:"resolved"`
}

// Dangling reports whether the branch names a target that does not exist.
func (b Branch) Dangling() bool {
	return b.Target != "" && !b.Resolved
}

// Element is the uniform unit of analysis built by Normalize and annotated in
// place by Linearize.
type Element struct {
	Name        string
	Label       string
	Description string
	Kind        schema.Kind
	Payload     schema.Node
	Branches    []Branch

	// Order is the declaration position, Start first.
	Order int

	// Set by Linearize. VisitIndex is 1-based; zero means unreachable.
	VisitIndex     int
	VisitCount     int
	Parent         *Element
	ParentBranch   int
	ConditionLabel string
	Screen         *Element
}

// Visited reports whether the linearizer reached the element.
func (e *Element) Visited() bool {
	return e.VisitIndex > 0
}

// DisplayLabel returns the label, falling back to the name.
func (e *Element) DisplayLabel() string {
	if e.Label != "" {
		return e.Label
	}
	return e.Name
}

// Forks reports whether the element opens a new narrative context for the
// elements reached through its branches.
func (e *Element) Forks() bool {
	return len(e.Branches) > 1 || e.Kind.Revisitable()
}

// Via returns the branch that led to the element, if any.
func (e *Element) Via() (Branch, bool) {
	if e.Parent == nil || e.ParentBranch < 0 || e.ParentBranch >= len(e.Parent.Branches) {
		return Branch{}, false
	}
	return e.Parent.Branches[e.ParentBranch], true
}

// Graph is the normalized element collection of one flow.
type Graph struct {
	Elements map[string]*Element
	Names    []string // declaration order, Start first
	Entry    string
	Flow     *schema.FlowDefinition
}

// Lookup returns the named element.
func (g *Graph) Lookup(name string) (*Element, bool) {
	if name == "" {
		return nil, false
	}
	el, ok := g.Elements[name]
	return el, ok
}

// Ordered returns the reachable elements sorted by visit index.
func (g *Graph) Ordered() []*Element {
	out := make([]*Element, 0, len(g.Names))
	for _, name := range g.Names {
		if el := g.Elements[name]; el.Visited() {
			out = append(out, el)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].VisitIndex < out[j].VisitIndex
	})
	return out
}

// Unreachable returns control-flow elements the linearizer never reached, in
// declaration order.
func (g *Graph) Unreachable() []*Element {
	var out []*Element
	for _, name := range g.Names {
		el := g.Elements[name]
		if !el.Visited() && !el.Kind.Declarative() {
			out = append(out, el)
		}
	}
	return out
}

// Declarations returns the declarative elements in declaration order.
func (g *Graph) Declarations() []*Element {
	var out []*Element
	for _, name := range g.Names {
		if el := g.Elements[name]; el.Kind.Declarative() {
			out = append(out, el)
		}
	}
	return out
}
