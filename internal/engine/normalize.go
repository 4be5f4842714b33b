package engine

import (
	"fmt"

	"github.com/rendis/flowlens/pkg/schema"
)

// Normalize converts the kind-keyed collections of a flow definition into one
// Graph of uniform elements. It registers a synthesized Start element first,
// then every collection in schema.Collections order, deriving each element's
// branch slots from its kind-specific connectors.
func Normalize(def *schema.FlowDefinition) (*Graph, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeMalformedDefinition, "flow definition is nil")
	}

	g := &Graph{
		Elements: make(map[string]*Element),
		Entry:    schema.StartName,
		Flow:     def,
	}

	start := entryDescriptor(def)
	g.add(&Element{
		Name:     schema.StartName,
		Kind:     schema.KindStart,
		Payload:  start,
		Branches: startBranches(start),
	})

	// First pass: register every element and reject duplicates.
	for _, c := range schema.Collections {
		for i, node := range def.Collection(c.Kind) {
			h := node.Header()
			if h.Name == "" {
				return nil, schema.NewErrorf(schema.ErrCodeMalformedDefinition,
					"%s at index %d has empty name", c.Key, i)
			}
			if h.Name == schema.StartName {
				return nil, schema.NewErrorf(schema.ErrCodeDuplicateElement,
					"%s %q: the name is reserved for the flow entry", c.Kind, h.Name).WithElement(h.Name)
			}
			if _, exists := g.Elements[h.Name]; exists {
				return nil, schema.NewErrorf(schema.ErrCodeDuplicateElement,
					"duplicate element name: %s", h.Name).WithElement(h.Name)
			}
			g.add(&Element{
				Name:        h.Name,
				Label:       h.Label,
				Description: h.Description,
				Kind:        c.Kind,
				Payload:     node,
				Branches:    deriveBranches(node),
			})
		}
	}

	// Second pass: resolve branch targets.
	for _, el := range g.Elements {
		for i := range el.Branches {
			_, el.Branches[i].Resolved = g.Lookup(el.Branches[i].Target)
		}
	}

	// The entry must lead somewhere.
	for _, b := range g.Elements[schema.StartName].Branches {
		if b.Resolved {
			return g, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeMalformedDefinition,
		"entry reference %q does not resolve to any element", entryReference(def))
}

func (g *Graph) add(el *Element) {
	el.Order = len(g.Names)
	g.Elements[el.Name] = el
	g.Names = append(g.Names, el.Name)
}

// entryDescriptor returns the start descriptor, synthesizing one from the
// legacy startElementReference when the definition has no start node.
func entryDescriptor(def *schema.FlowDefinition) *schema.Start {
	if def.Start == nil {
		return &schema.Start{Connector: &schema.Connector{TargetReference: def.StartElementReference}}
	}
	if def.Start.Connector.Target() == "" && def.StartElementReference != "" {
		s := *def.Start
		s.Connector = &schema.Connector{TargetReference: def.StartElementReference}
		return &s
	}
	return def.Start
}

func entryReference(def *schema.FlowDefinition) string {
	if def.StartElementReference != "" {
		return def.StartElementReference
	}
	if def.Start != nil {
		return def.Start.Connector.Target()
	}
	return ""
}

func startBranches(s *schema.Start) []Branch {
	branches := []Branch{{
		Target:  s.Connector.Target(),
		Label:   "Runs immediately",
		Outcome: "Runs immediately",
		Kind:    BranchPrimary,
	}}
	for _, p := range s.ScheduledPaths {
		label := p.Label
		if label == "" {
			label = p.Name
		}
		branches = append(branches, Branch{
			Target:  p.Connector.Target(),
			Label:   label,
			Outcome: label,
			Kind:    BranchScheduled,
		})
	}
	return indexBranches(branches)
}

// deriveBranches computes the ordered branch slots of one element.
func deriveBranches(node schema.Node) []Branch {
	label := displayLabel(node.Header())

	switch n := node.(type) {
	case *schema.Decision:
		branches := make([]Branch, 0, len(n.Rules)+1)
		for _, r := range n.Rules {
			outcome := r.Label
			if outcome == "" {
				outcome = r.Name
			}
			branches = append(branches, Branch{
				Target:  r.Connector.Target(),
				Label:   fmt.Sprintf("condition %s on %s", outcome, label),
				Outcome: outcome,
				Kind:    BranchRule,
			})
		}
		def := n.DefaultConnectorLabel
		if def == "" {
			def = "success"
		}
		branches = append(branches, Branch{
			Target:  n.DefaultConnector.Target(),
			Label:   def,
			Outcome: def,
			Kind:    BranchDefault,
		})
		return indexBranches(branches)

	case *schema.Loop:
		return indexBranches([]Branch{
			{
				Target:  n.NextValueConnector.Target(),
				Label:   "next value on " + label,
				Outcome: "next value",
				Kind:    BranchNextValue,
			},
			{
				Target:  n.NoMoreValuesConnector.Target(),
				Label:   "no more values on " + label,
				Outcome: "no more values",
				Kind:    BranchNoMoreValues,
			},
		})

	case *schema.Wait:
		branches := make([]Branch, 0, len(n.WaitEvents))
		for _, w := range n.WaitEvents {
			outcome := w.Label
			if outcome == "" {
				outcome = w.Name
			}
			branches = append(branches, Branch{
				Target:  w.Connector.Target(),
				Label:   "wait event " + outcome,
				Outcome: outcome,
				Kind:    BranchEvent,
			})
		}
		return indexBranches(branches)

	case schema.Linked:
		links := n.Connectors()
		branches := []Branch{{
			Target:  links.Next(),
			Label:   label + " is true",
			Outcome: "success",
			Kind:    BranchPrimary,
		}}
		if fault := links.Fault(); fault != "" {
			branches = append(branches, Branch{
				Target:  fault,
				Label:   "fails on " + label,
				Outcome: "fault",
				Kind:    BranchFault,
			})
		}
		return indexBranches(branches)

	default:
		// Declarative kinds have no control flow.
		return nil
	}
}

func indexBranches(branches []Branch) []Branch {
	for i := range branches {
		branches[i].Index = i
	}
	return branches
}

func displayLabel(b schema.Base) string {
	if b.Label != "" {
		return b.Label
	}
	return b.Name
}
