package validation

import (
	"encoding/json"
	"sort"

	"github.com/rendis/flowlens/internal/engine"
	"github.com/rendis/flowlens/pkg/schema"
)

// Facts is the lint view of one element: a flat map of the properties rule
// conditions can reference.
type Facts map[string]any

// collectFacts derives the facts of every element of g in declaration order.
// g must have been linearized.
func collectFacts(g *engine.Graph) []Facts {
	enclosing := loopScopes(g)

	out := make([]Facts, 0, len(g.Names))
	for _, name := range g.Names {
		el := g.Elements[name]

		targets := make([]string, 0, len(el.Branches))
		dangling := make([]string, 0)
		hasFault := false
		for _, br := range el.Branches {
			if br.Kind == engine.BranchFault {
				hasFault = true
			}
			if br.Target == "" {
				continue
			}
			targets = append(targets, br.Target)
			if br.Dangling() {
				dangling = append(dangling, br.Target)
			}
		}

		loops := enclosing[name]
		if loops == nil {
			loops = []string{}
		}

		out = append(out, Facts{
			"name":           el.Name,
			"label":          el.DisplayLabel(),
			"kind":           string(el.Kind),
			"visited":        el.Visited(),
			"visit_index":    el.VisitIndex,
			"declarative":    el.Kind.Declarative(),
			"side_effecting": el.Kind.SideEffecting(),
			"dml":            isDML(el.Kind),
			"query":          el.Kind == schema.KindRecordLookup,
			"has_fault":      hasFault,
			"in_loop":        len(loops) > 0,
			"loops":          loops,
			"targets":        targets,
			"dangling":       dangling,
			"literals":       literals(el.Payload),
		})
	}
	return out
}

func isDML(k schema.Kind) bool {
	switch k {
	case schema.KindRecordCreate, schema.KindRecordUpdate, schema.KindRecordDelete, schema.KindRecordRollback:
		return true
	default:
		return false
	}
}

// loopScopes maps each element name to the labels of the loops whose body
// reaches it.
func loopScopes(g *engine.Graph) map[string][]string {
	scopes := make(map[string][]string)
	for _, loop := range g.Loops() {
		for _, el := range g.LoopBody(loop) {
			scopes[el.Name] = append(scopes[el.Name], loop.DisplayLabel())
		}
	}
	return scopes
}

// literals collects every string leaf of an element payload, skipping
// descriptive members and connector targets.
func literals(payload any) []string {
	out := []string{}
	if payload == nil {
		return out
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return out
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return out
	}

	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case map[string]any:
			for k, child := range val {
				switch k {
				case "name", "label", "description", "targetReference":
					continue
				}
				walk(child)
			}
		case []any:
			for _, child := range val {
				walk(child)
			}
		case string:
			out = append(out, val)
		}
	}
	walk(doc)
	sort.Strings(out)
	return out
}
