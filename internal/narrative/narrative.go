// Package narrative describes the side effects of a linearized flow in prose,
// one sentence per record operation, action call or subflow invocation.
package narrative

import (
	"strings"

	"github.com/rendis/flowlens/internal/engine"
	"github.com/rendis/flowlens/pkg/schema"
)

// Summarize returns one sentence per side-effecting element, in visit order.
// Each element is narrated at most once, however many paths reach it.
// Unvisited elements are ignored.
func Summarize(ordered []*engine.Element) []string {
	seen := make(map[string]bool)
	var out []string
	for _, el := range ordered {
		if !el.Visited() || !el.Kind.SideEffecting() || seen[el.Name] {
			continue
		}
		seen[el.Name] = true

		sentence := Verb(el.Kind) + " " + Target(el)
		if clause := Context(el); clause != "" {
			sentence += " " + clause
		}
		out = append(out, sentence)
	}
	return out
}

// Join concatenates the sentences into one prose block.
func Join(sentences []string) string {
	return strings.Join(sentences, "\n")
}

// Verb returns the narrated action of a side-effecting kind.
func Verb(k schema.Kind) string {
	switch k {
	case schema.KindRecordCreate:
		return "inserts"
	case schema.KindRecordUpdate:
		return "updates"
	case schema.KindRecordDelete:
		return "deletes"
	case schema.KindRecordLookup:
		return "queries"
	case schema.KindActionCall:
		return "calls action"
	case schema.KindSubflow:
		return "calls flow"
	default:
		return string(k)
	}
}

// Target returns the object, action or flow an element acts on.
func Target(el *engine.Element) string {
	switch n := el.Payload.(type) {
	case *schema.RecordCreate:
		return firstOf(n.Object, n.InputReference)
	case *schema.RecordUpdate:
		return firstOf(n.Object, n.InputReference)
	case *schema.RecordDelete:
		return firstOf(n.Object, n.InputReference)
	case *schema.RecordLookup:
		return firstOf(n.Object, n.OutputReference)
	case *schema.ActionCall:
		return firstOf(n.ActionName, el.DisplayLabel())
	case *schema.Subflow:
		return firstOf(n.FlowName, el.DisplayLabel())
	default:
		return el.DisplayLabel()
	}
}

// Context builds the clause naming the gate that led to el: the branch of the
// nearest decision, loop, wait, scheduled path or fault connector, preceded by
// the most recent screen on the path. Success paths of plain elements are
// transparent and inherit the context of the element they follow.
func Context(el *engine.Element) string {
	parent, branch, ok := gate(el)

	var after []string
	if el.Screen != nil {
		after = append(after, "screen "+el.Screen.DisplayLabel())
	}

	lead := ""
	if ok {
		switch {
		case parent.Kind == schema.KindStart && branch.Kind == engine.BranchScheduled:
			lead = "on scheduled path " + branch.Outcome
		case parent.Kind == schema.KindStart:
			if len(after) == 0 {
				return "at the start"
			}
		case parent.Kind == schema.KindLoop:
			lead = "when loop " + parent.DisplayLabel() + " has " + branch.Outcome
		case parent.Kind == schema.KindDecision:
			after = append(after, "checking "+parent.DisplayLabel()+" is "+branch.Outcome)
		case parent.Kind == schema.KindWait:
			after = append(after, "event "+branch.Outcome+" on "+parent.DisplayLabel())
		case branch.Kind == engine.BranchFault:
			after = append(after, parent.DisplayLabel()+" fails")
		}
	}

	parts := make([]string, 0, 2)
	if lead != "" {
		parts = append(parts, lead)
	}
	if len(after) > 0 {
		parts = append(parts, "after "+strings.Join(after, " and "))
	}
	return strings.Join(parts, " ")
}

// gate walks up the parent chain past success branches of plain elements.
// Parents always have a lower visit index, so the walk terminates.
func gate(el *engine.Element) (*engine.Element, engine.Branch, bool) {
	cur := el
	for {
		branch, ok := cur.Via()
		if !ok {
			return nil, engine.Branch{}, false
		}
		parent := cur.Parent
		plain := parent.Kind != schema.KindStart && !parent.Kind.Revisitable()
		if !plain || branch.Kind != engine.BranchPrimary || parent == cur {
			return parent, branch, true
		}
		cur = parent
	}
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
