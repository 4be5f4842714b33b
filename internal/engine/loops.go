package engine

import "github.com/rendis/flowlens/pkg/schema"

// LoopBody returns the elements reachable from the next-value branch of loop
// without passing back through it, in breadth-first order. It returns nil for
// non-loop elements.
func (g *Graph) LoopBody(loop *Element) []*Element {
	if loop == nil || loop.Kind != schema.KindLoop || len(loop.Branches) == 0 {
		return nil
	}

	var body []*Element
	seen := map[string]bool{loop.Name: true}
	queue := []string{loop.Branches[0].Target}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		el, ok := g.Lookup(cur)
		if !ok || seen[cur] || el.Kind.Declarative() {
			continue
		}
		seen[cur] = true
		body = append(body, el)

		for _, br := range el.Branches {
			if br.Resolved && !seen[br.Target] {
				queue = append(queue, br.Target)
			}
		}
	}
	return body
}

// Loops returns the loop elements in declaration order.
func (g *Graph) Loops() []*Element {
	var out []*Element
	for _, name := range g.Names {
		if el := g.Elements[name]; el.Kind == schema.KindLoop {
			out = append(out, el)
		}
	}
	return out
}
