// Package trace builds the execution-ordered table of a linearized flow: one
// row per branch slot of every reachable element.
package trace

import (
	"fmt"
	"strings"

	"github.com/rendis/flowlens/internal/engine"
	"github.com/rendis/flowlens/pkg/schema"
)

// Row is one line of the trace table. Continuation rows belong to the element
// of the row above them and leave its description, kind and parameters blank.
type Row struct {
	Element            string      `json:"element" yaml:"element"`
	ElementDescription string      `json:"elementDescription,omitempty" yaml:"elementDescription,omitempty"`
	Kind               schema.Kind `json:"kind,omitempty" yaml:"kind,omitempty"`
	ParameterSummary   string      `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	BranchCondition    string      `json:"condition" yaml:"condition"`
	NextElementName    string      `json:"next,omitempty" yaml:"next,omitempty"`
	Continuation       bool        `json:"continuation,omitempty" yaml:"continuation,omitempty"`
}

// Builder turns ordered elements into rows.
type Builder struct {
	params *Formatter
}

// NewBuilder creates a Builder using f for parameter summaries.
func NewBuilder(f *Formatter) *Builder {
	if f == nil {
		f = NewFormatter(nil)
	}
	return &Builder{params: f}
}

// Build emits the rows of every visited element in the given order. Elements
// without a visit index are skipped. Each branch slot yields one row, so a
// decision with R rules yields R+1 rows, a loop 2 and a wait one per event.
// A wait without events yields none; other kinds without branches get a
// single row.
func (b *Builder) Build(ordered []*engine.Element) []Row {
	rows := make([]Row, 0, len(ordered))
	for _, el := range ordered {
		if !el.Visited() {
			continue
		}
		rows = append(rows, b.elementRows(el)...)
	}
	return rows
}

func (b *Builder) elementRows(el *engine.Element) []Row {
	if len(el.Branches) == 0 {
		if el.Kind.Revisitable() {
			return nil
		}
		return []Row{b.head(el)}
	}
	rows := make([]Row, 0, len(el.Branches))
	for i, br := range el.Branches {
		row := Row{Element: el.Name, Continuation: true}
		if i == 0 {
			row = b.head(el)
		}
		row.BranchCondition = Condition(el, br)
		if br.Resolved {
			row.NextElementName = br.Target
		}
		rows = append(rows, row)
	}
	return rows
}

func (b *Builder) head(el *engine.Element) Row {
	return Row{
		Element:            el.Name,
		ElementDescription: Describe(el),
		Kind:               el.Kind,
		ParameterSummary:   b.params.Parameters(el),
	}
}

// Resources emits one row per declarative element (variables, constants,
// formulas, text templates, choices). They never enter the traversal.
func (b *Builder) Resources(g *engine.Graph) []Row {
	decls := g.Declarations()
	rows := make([]Row, 0, len(decls))
	for _, el := range decls {
		rows = append(rows, b.head(el))
	}
	return rows
}

// Describe renders "name (label) / description" with empty parts omitted.
func Describe(el *engine.Element) string {
	var sb strings.Builder
	sb.WriteString(el.Name)
	if el.Label != "" {
		sb.WriteString(" (" + el.Label + ")")
	}
	if el.Description != "" {
		sb.WriteString(Separator + el.Description)
	}
	return sb.String()
}

// Condition renders the branch condition shown on a row.
func Condition(el *engine.Element, br engine.Branch) string {
	switch n := el.Payload.(type) {
	case *schema.Start:
		if br.Kind == engine.BranchPrimary {
			return "Runs immediately"
		}
		if i := br.Index - 1; i >= 0 && i < len(n.ScheduledPaths) {
			p := n.ScheduledPaths[i]
			source := "RecordTriggerEvent"
			if p.TimeSource == "RecordField" {
				source = p.RecordField
			}
			return fmt.Sprintf("%s%s%d %s %s", br.Label, Separator, p.OffsetNumber, p.OffsetUnit, source)
		}

	case *schema.Decision:
		if br.Kind == engine.BranchRule && br.Index < len(n.Rules) {
			r := n.Rules[br.Index]
			var s segments
			head := r.Name
			if r.Label != "" {
				head += " (" + r.Label + ")"
			}
			s = append(s, head)
			s.ops(r.Conditions)
			return s.String()
		}

	case *schema.Wait:
		if br.Index < len(n.WaitEvents) {
			w := n.WaitEvents[br.Index]
			var s segments
			s = append(s, br.Outcome)
			if w.EventType != "" {
				s.add("Type: %s", w.EventType)
			}
			s.ops(w.Conditions)
			return s.String()
		}

	case *schema.Loop:
		if br.Kind == engine.BranchNextValue {
			return "Next value"
		}
		return "No more values"
	}

	switch br.Kind {
	case engine.BranchPrimary:
		return "success"
	case engine.BranchFault:
		return "fault"
	default:
		return br.Label
	}
}

// Build emits the rows of the ordered elements with default formatting.
func Build(ordered []*engine.Element) []Row {
	return NewBuilder(nil).Build(ordered)
}
