package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowlens/pkg/schema"
)

// --- helpers ---

func conn(target string) *schema.Connector {
	if target == "" {
		return nil
	}
	return &schema.Connector{TargetReference: target}
}

func startAt(target string) *schema.Start {
	return &schema.Start{Connector: conn(target)}
}

func create(name, object, next string) schema.RecordCreate {
	return schema.RecordCreate{
		Base:   schema.Base{Name: name, Label: name},
		Links:  schema.Links{Connector: conn(next)},
		Object: object,
	}
}

func update(name, ref, next string) schema.RecordUpdate {
	return schema.RecordUpdate{
		Base:           schema.Base{Name: name, Label: name},
		Links:          schema.Links{Connector: conn(next)},
		InputReference: ref,
	}
}

func assign(name, next string) schema.Assignment {
	return schema.Assignment{
		Base:  schema.Base{Name: name, Label: name},
		Links: schema.Links{Connector: conn(next)},
	}
}

func rule(name, label, target string) schema.Rule {
	return schema.Rule{Name: name, Label: label, Connector: conn(target)}
}

func decision(name, defaultTarget string, rules ...schema.Rule) schema.Decision {
	return schema.Decision{
		Base:             schema.Base{Name: name, Label: name},
		Rules:            rules,
		DefaultConnector: conn(defaultTarget),
	}
}

func loop(name, collection, body, exit string) schema.Loop {
	return schema.Loop{
		Base:                  schema.Base{Name: name, Label: name},
		CollectionReference:   collection,
		NextValueConnector:    conn(body),
		NoMoreValuesConnector: conn(exit),
	}
}

func mustNormalize(t *testing.T, def *schema.FlowDefinition) *Graph {
	t.Helper()
	g, err := Normalize(def)
	require.NoError(t, err)
	return g
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, code, fe.Code, fe.Message)
}

// --- tests ---

func TestNormalize_GenericBranches(t *testing.T) {
	c := create("Create_Account", "Account", "Next")
	c.FaultConnector = conn("Handle_Error")
	def := &schema.FlowDefinition{
		Start:         startAt("Create_Account"),
		RecordCreates: []schema.RecordCreate{c},
		Assignments:   []schema.Assignment{assign("Next", ""), assign("Handle_Error", "")},
	}

	g := mustNormalize(t, def)
	el := g.Elements["Create_Account"]
	require.Len(t, el.Branches, 2)
	assert.Equal(t, Branch{Target: "Next", Label: "Create_Account is true", Outcome: "success", Kind: BranchPrimary, Index: 0, Resolved: true}, el.Branches[0])
	assert.Equal(t, Branch{Target: "Handle_Error", Label: "fails on Create_Account", Outcome: "fault", Kind: BranchFault, Index: 1, Resolved: true}, el.Branches[1])

	// A terminal element still owns its primary slot.
	last := g.Elements["Next"]
	require.Len(t, last.Branches, 1)
	assert.Empty(t, last.Branches[0].Target)
}

func TestNormalize_DefaultConnectorFallback(t *testing.T) {
	a := assign("A", "")
	a.DefaultConnector = conn("B")
	g := mustNormalize(t, &schema.FlowDefinition{
		Start:       startAt("A"),
		Assignments: []schema.Assignment{a, assign("B", "")},
	})
	assert.Equal(t, "B", g.Elements["A"].Branches[0].Target)
}

func TestNormalize_DecisionArity(t *testing.T) {
	d := decision("D", "", rule("r1", "A", "U1"), rule("r2", "B", "U2"))
	d.Label = "Is Big"
	g := mustNormalize(t, &schema.FlowDefinition{
		Start:         startAt("D"),
		Decisions:     []schema.Decision{d},
		RecordUpdates: []schema.RecordUpdate{update("U1", "x", ""), update("U2", "y", "")},
	})

	el := g.Elements["D"]
	require.Len(t, el.Branches, 3)
	assert.Equal(t, "condition A on Is Big", el.Branches[0].Label)
	assert.Equal(t, "condition B on Is Big", el.Branches[1].Label)
	assert.Equal(t, BranchDefault, el.Branches[2].Kind)
	assert.Equal(t, "success", el.Branches[2].Label)
	assert.Empty(t, el.Branches[2].Target)

	d.DefaultConnectorLabel = "Otherwise"
	g = mustNormalize(t, &schema.FlowDefinition{Start: startAt("D"), Decisions: []schema.Decision{d}})
	assert.Equal(t, "Otherwise", g.Elements["D"].Branches[2].Label)
}

func TestNormalize_LoopAlwaysTwoBranches(t *testing.T) {
	l := loop("L", "Records", "", "")
	g := mustNormalize(t, &schema.FlowDefinition{Start: startAt("L"), Loops: []schema.Loop{l}})

	el := g.Elements["L"]
	require.Len(t, el.Branches, 2)
	assert.Equal(t, "next value on L", el.Branches[0].Label)
	assert.Equal(t, "no more values on L", el.Branches[1].Label)
}

func TestNormalize_WaitEvents(t *testing.T) {
	w := schema.Wait{
		Base: schema.Base{Name: "W", Label: "Pause"},
		WaitEvents: []schema.WaitEvent{
			{Name: "e1", Label: "Approved", Connector: conn("A")},
			{Name: "e2", Label: "Rejected"},
			{Name: "e3"},
		},
	}
	g := mustNormalize(t, &schema.FlowDefinition{
		Start:       startAt("W"),
		Waits:       []schema.Wait{w},
		Assignments: []schema.Assignment{assign("A", "")},
	})

	el := g.Elements["W"]
	require.Len(t, el.Branches, 3)
	assert.Equal(t, "wait event Approved", el.Branches[0].Label)
	assert.Equal(t, "wait event Rejected", el.Branches[1].Label)
	assert.Equal(t, "wait event e3", el.Branches[2].Label)
}

func TestNormalize_StartWithScheduledPaths(t *testing.T) {
	start := startAt("A")
	start.ScheduledPaths = []schema.ScheduledPath{
		{Name: "p1", Label: "One Day Later", Connector: conn("B")},
	}
	g := mustNormalize(t, &schema.FlowDefinition{
		Start:       start,
		Assignments: []schema.Assignment{assign("A", ""), assign("B", "")},
	})

	el := g.Elements[schema.StartName]
	assert.Equal(t, schema.KindStart, el.Kind)
	assert.Equal(t, 0, el.Order)
	require.Len(t, el.Branches, 2)
	assert.Equal(t, BranchPrimary, el.Branches[0].Kind)
	assert.Equal(t, "One Day Later", el.Branches[1].Label)
	assert.Equal(t, BranchScheduled, el.Branches[1].Kind)
}

func TestNormalize_SynthesizedStart(t *testing.T) {
	g := mustNormalize(t, &schema.FlowDefinition{
		StartElementReference: "A",
		Assignments:           []schema.Assignment{assign("A", "")},
	})
	assert.Equal(t, "A", g.Elements[schema.StartName].Branches[0].Target)
	assert.Equal(t, []string{schema.StartName, "A"}, g.Names)
}

func TestNormalize_DeclarativeKindsHaveNoBranches(t *testing.T) {
	g := mustNormalize(t, &schema.FlowDefinition{
		Start:       startAt("A"),
		Assignments: []schema.Assignment{assign("A", "")},
		Variables:   []schema.Variable{{Base: schema.Base{Name: "v"}}},
		Formulas:    []schema.Formula{{Base: schema.Base{Name: "f"}}},
		Constants:   []schema.Constant{{Base: schema.Base{Name: "c"}}},
	})
	for _, name := range []string{"v", "f", "c"} {
		assert.Empty(t, g.Elements[name].Branches, name)
		assert.True(t, g.Elements[name].Kind.Declarative())
	}
	assert.Len(t, g.Declarations(), 3)
}

func TestNormalize_DuplicateName(t *testing.T) {
	_, err := Normalize(&schema.FlowDefinition{
		Start:         startAt("A"),
		Assignments:   []schema.Assignment{assign("A", "")},
		RecordCreates: []schema.RecordCreate{create("A", "Account", "")},
	})
	assertCode(t, err, schema.ErrCodeDuplicateElement)
}

func TestNormalize_ReservedStartName(t *testing.T) {
	_, err := Normalize(&schema.FlowDefinition{
		Start:       startAt("Start"),
		Assignments: []schema.Assignment{assign(schema.StartName, "")},
	})
	assertCode(t, err, schema.ErrCodeDuplicateElement)
	assert.ErrorContains(t, err, "reserved for the flow entry")
}

func TestNormalize_EmptyName(t *testing.T) {
	_, err := Normalize(&schema.FlowDefinition{
		Start:       startAt("A"),
		Assignments: []schema.Assignment{assign("", "")},
	})
	assertCode(t, err, schema.ErrCodeMalformedDefinition)
}

func TestNormalize_UnresolvableEntry(t *testing.T) {
	_, err := Normalize(&schema.FlowDefinition{
		Start:       startAt("Missing"),
		Assignments: []schema.Assignment{assign("A", "")},
	})
	assertCode(t, err, schema.ErrCodeMalformedDefinition)

	_, err = Normalize(&schema.FlowDefinition{Assignments: []schema.Assignment{assign("A", "")}})
	assertCode(t, err, schema.ErrCodeMalformedDefinition)

	_, err = Normalize(nil)
	assertCode(t, err, schema.ErrCodeMalformedDefinition)
}

func TestNormalize_EntryResolvedThroughScheduledPath(t *testing.T) {
	start := &schema.Start{ScheduledPaths: []schema.ScheduledPath{{Label: "Later", Connector: conn("A")}}}
	g := mustNormalize(t, &schema.FlowDefinition{
		Start:       start,
		Assignments: []schema.Assignment{assign("A", "")},
	})
	require.Len(t, g.Elements[schema.StartName].Branches, 2)
	assert.Empty(t, g.Elements[schema.StartName].Branches[0].Target)
}

func TestNormalize_DanglingBranch(t *testing.T) {
	g := mustNormalize(t, &schema.FlowDefinition{
		Start:       startAt("A"),
		Assignments: []schema.Assignment{assign("A", "Ghost"), assign("B", "")},
	})
	b := g.Elements["A"].Branches[0]
	assert.False(t, b.Resolved)
	assert.True(t, b.Dangling())
	assert.False(t, g.Elements["B"].Branches[0].Dangling(), "empty target terminates, it does not dangle")
}
