package engine

import (
	"github.com/rendis/flowlens/pkg/schema"
)

// cursor is the narrative context carried along a traversal path.
type cursor struct {
	parent *Element
	branch int
	label  string
	screen *Element
}

// linearizer holds the traversal-local state of one Linearize call.
type linearizer struct {
	graph   *Graph
	index   int
	pending []*Element
	onStack map[*Element]bool
}

// Linearize assigns a deterministic visit order to every element reachable
// from the graph's entry. It walks depth-first with an explicit pending stack:
// decision, loop and wait elements are re-entered once per branch so every
// outcome is explored, while any other element is entered at most once per
// path. Previous annotations are cleared first, so repeated calls yield the
// same result.
func Linearize(g *Graph) error {
	entry, ok := g.Lookup(g.Entry)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeUnresolvedEntry, "entry element %q not found", g.Entry)
	}

	for _, el := range g.Elements {
		el.VisitIndex = 0
		el.VisitCount = 0
		el.Parent = nil
		el.ParentBranch = 0
		el.ConditionLabel = ""
		el.Screen = nil
	}

	l := &linearizer{graph: g, onStack: make(map[*Element]bool)}

	cur, ctx := entry, cursor{parent: entry, label: "start"}
	for cur != nil {
		next, nextCtx := l.visit(cur, ctx)
		if next == nil {
			next, nextCtx = l.resume()
		}
		cur, ctx = next, nextCtx
	}
	return nil
}

// visit enters el under ctx and returns the element reached through the
// selected branch, or nil when the path ends here.
func (l *linearizer) visit(el *Element, ctx cursor) (*Element, cursor) {
	if el.VisitIndex == 0 {
		l.index++
		el.VisitIndex = l.index
	}
	el.VisitCount++
	if el.VisitCount == 1 {
		el.Parent = ctx.parent
		el.ParentBranch = ctx.branch
		el.ConditionLabel = ctx.label
		el.Screen = ctx.screen
	}

	n := len(el.Branches)
	if n == 0 {
		return nil, ctx
	}
	if el.VisitCount < n && !l.onStack[el] {
		l.pending = append(l.pending, el)
		l.onStack[el] = true
	}

	// One untaken branch per visit, clamped to the last slot.
	idx := min(el.VisitCount-1, n-1)
	b := el.Branches[idx]

	out := ctx
	if el.Kind == schema.KindScreen {
		out.screen = el
	}
	if el.Forks() {
		out.parent, out.branch, out.label = el, idx, b.Label
	}
	return l.follow(b.Target), out
}

// follow resolves a branch target, returning nil when the path terminates:
// the target is empty, unknown or declarative, or re-entering it would
// repeat work already done.
func (l *linearizer) follow(name string) *Element {
	t, ok := l.graph.Lookup(name)
	if !ok || t.Kind.Declarative() {
		return nil
	}
	if t.VisitCount > 0 && (!t.Kind.Revisitable() || t.VisitCount >= len(t.Branches)) {
		return nil
	}
	return t
}

// resume returns the most recent pending element that still has untaken
// branches, restoring the context it was first entered with.
func (l *linearizer) resume() (*Element, cursor) {
	for len(l.pending) > 0 {
		top := l.pending[len(l.pending)-1]
		if top.VisitCount < len(top.Branches) {
			return top, cursor{
				parent: top.Parent,
				branch: top.ParentBranch,
				label:  top.ConditionLabel,
				screen: top.Screen,
			}
		}
		l.pending = l.pending[:len(l.pending)-1]
		delete(l.onStack, top)
	}
	return nil, cursor{}
}
