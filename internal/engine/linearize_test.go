package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowlens/pkg/schema"
)

func linearized(t *testing.T, def *schema.FlowDefinition) *Graph {
	t.Helper()
	g := mustNormalize(t, def)
	require.NoError(t, Linearize(g))
	return g
}

func orderOf(g *Graph) []string {
	var names []string
	for _, el := range g.Ordered() {
		names = append(names, el.Name)
	}
	return names
}

func TestLinearize_StraightLine(t *testing.T) {
	g := linearized(t, &schema.FlowDefinition{
		Start:         startAt("Create"),
		RecordCreates: []schema.RecordCreate{create("Create", "Account", "")},
	})

	assert.Equal(t, []string{schema.StartName, "Create"}, orderOf(g))

	start := g.Elements[schema.StartName]
	assert.Equal(t, 1, start.VisitIndex)
	assert.Same(t, start, start.Parent)
	assert.Equal(t, "start", start.ConditionLabel)

	el := g.Elements["Create"]
	assert.Equal(t, 2, el.VisitIndex)
	assert.Equal(t, 1, el.VisitCount)
	assert.Same(t, start, el.Parent)
	assert.Equal(t, "start", el.ConditionLabel)
}

func TestLinearize_DecisionEnumeratesEveryRule(t *testing.T) {
	g := linearized(t, &schema.FlowDefinition{
		Start:         startAt("D"),
		Decisions:     []schema.Decision{decision("D", "", rule("r1", "A", "U1"), rule("r2", "B", "U2"))},
		RecordUpdates: []schema.RecordUpdate{update("U1", "x", ""), update("U2", "y", "")},
	})

	assert.Equal(t, []string{schema.StartName, "D", "U1", "U2"}, orderOf(g))

	d := g.Elements["D"]
	assert.Equal(t, 3, d.VisitCount, "one visit per branch slot")

	u1, u2 := g.Elements["U1"], g.Elements["U2"]
	assert.Same(t, d, u1.Parent)
	assert.Equal(t, 0, u1.ParentBranch)
	assert.Equal(t, "condition A on D", u1.ConditionLabel)
	assert.Same(t, d, u2.Parent)
	assert.Equal(t, 1, u2.ParentBranch)
	assert.Equal(t, "condition B on D", u2.ConditionLabel)
}

func TestLinearize_LoopOneLevelUnrolling(t *testing.T) {
	g := linearized(t, &schema.FlowDefinition{
		Start: startAt("L"),
		Loops: []schema.Loop{loop("L", "Records", "Del", "")},
		RecordDeletes: []schema.RecordDelete{{
			Base:           schema.Base{Name: "Del"},
			Links:          schema.Links{Connector: conn("L")},
			InputReference: "Records",
		}},
	})

	assert.Equal(t, []string{schema.StartName, "L", "Del"}, orderOf(g))
	assert.Equal(t, 2, g.Elements["L"].VisitCount, "body visit then exit visit")
	assert.Equal(t, 1, g.Elements["Del"].VisitCount)
	assert.Equal(t, "next value on L", g.Elements["Del"].ConditionLabel)
}

func TestLinearize_DanglingTargetTerminatesPath(t *testing.T) {
	g := linearized(t, &schema.FlowDefinition{
		Start:       startAt("A"),
		Assignments: []schema.Assignment{assign("A", "Ghost")},
	})
	assert.Equal(t, []string{schema.StartName, "A"}, orderOf(g))
}

func TestLinearize_CycleOfPlainElementsTerminates(t *testing.T) {
	g := linearized(t, &schema.FlowDefinition{
		Start:       startAt("A"),
		Assignments: []schema.Assignment{assign("A", "B"), assign("B", "C"), assign("C", "A")},
	})
	assert.Equal(t, []string{schema.StartName, "A", "B", "C"}, orderOf(g))
	assert.Equal(t, 1, g.Elements["A"].VisitCount)
}

func TestLinearize_CycleOfDecisionsTerminates(t *testing.T) {
	g := linearized(t, &schema.FlowDefinition{
		Start: startAt("D1"),
		Decisions: []schema.Decision{
			decision("D1", "D2", rule("r", "again", "D2")),
			decision("D2", "D1", rule("r", "back", "D1")),
		},
	})
	assert.Equal(t, []string{schema.StartName, "D1", "D2"}, orderOf(g))
	assert.Equal(t, 2, g.Elements["D1"].VisitCount)
	assert.Equal(t, 2, g.Elements["D2"].VisitCount)
}

func TestLinearize_ConvergenceVisitsOnce(t *testing.T) {
	g := linearized(t, &schema.FlowDefinition{
		Start:         startAt("D"),
		Decisions:     []schema.Decision{decision("D", "Join", rule("r1", "A", "Join"))},
		RecordCreates: []schema.RecordCreate{create("Join", "Case", "")},
	})
	join := g.Elements["Join"]
	assert.Equal(t, 1, join.VisitCount)
	assert.Equal(t, 0, join.ParentBranch, "first path wins")
}

func TestLinearize_FaultPathResumed(t *testing.T) {
	c := create("C", "Account", "OK")
	c.FaultConnector = conn("Fail")
	g := linearized(t, &schema.FlowDefinition{
		Start:         startAt("C"),
		RecordCreates: []schema.RecordCreate{c},
		Assignments:   []schema.Assignment{assign("OK", ""), assign("Fail", "")},
	})

	assert.Equal(t, []string{schema.StartName, "C", "OK", "Fail"}, orderOf(g))
	fail := g.Elements["Fail"]
	assert.Same(t, g.Elements["C"], fail.Parent)
	assert.Equal(t, "fails on C", fail.ConditionLabel)
}

func TestLinearize_ScreenContextRestoredOnResume(t *testing.T) {
	screen := schema.Screen{
		Base:  schema.Base{Name: "S", Label: "Pick"},
		Links: schema.Links{Connector: conn("A")},
	}
	g := linearized(t, &schema.FlowDefinition{
		Start:       startAt("D"),
		Decisions:   []schema.Decision{decision("D", "B", rule("r1", "yes", "S"))},
		Screens:     []schema.Screen{screen},
		Assignments: []schema.Assignment{assign("A", ""), assign("B", "")},
	})

	assert.Same(t, g.Elements["S"], g.Elements["A"].Screen)
	assert.Nil(t, g.Elements["B"].Screen, "screen context must not leak into the sibling branch")
	assert.Nil(t, g.Elements["S"].Screen)
}

func TestLinearize_Coverage(t *testing.T) {
	g := linearized(t, &schema.FlowDefinition{
		Start:       startAt("A"),
		Assignments: []schema.Assignment{assign("A", ""), assign("Orphan", "A")},
		Variables:   []schema.Variable{{Base: schema.Base{Name: "v"}}},
	})

	assert.False(t, g.Elements["Orphan"].Visited())
	assert.False(t, g.Elements["v"].Visited())
	require.Len(t, g.Unreachable(), 1)
	assert.Equal(t, "Orphan", g.Unreachable()[0].Name)
}

func TestLinearize_DeclarativeTargetNotTraversed(t *testing.T) {
	g := linearized(t, &schema.FlowDefinition{
		Start:       startAt("A"),
		Assignments: []schema.Assignment{assign("A", "v")},
		Variables:   []schema.Variable{{Base: schema.Base{Name: "v"}}},
	})
	assert.False(t, g.Elements["v"].Visited())
}

func TestLinearize_UniqueIncreasingIndexes(t *testing.T) {
	g := linearized(t, sampleFlow())

	seen := map[int]bool{}
	prev := 0
	for _, el := range g.Ordered() {
		assert.False(t, seen[el.VisitIndex])
		seen[el.VisitIndex] = true
		assert.Greater(t, el.VisitIndex, prev)
		prev = el.VisitIndex
	}
	assert.Equal(t, 1, g.Elements[schema.StartName].VisitIndex)
}

func TestLinearize_Deterministic(t *testing.T) {
	first := linearized(t, sampleFlow())
	second := linearized(t, sampleFlow())
	assert.Equal(t, orderOf(first), orderOf(second))

	// Re-running on the same graph resets prior annotations.
	require.NoError(t, Linearize(first))
	assert.Equal(t, orderOf(second), orderOf(first))
	for name, el := range first.Elements {
		assert.Equal(t, second.Elements[name].VisitCount, el.VisitCount, name)
	}
}

func TestLinearize_UnresolvedEntry(t *testing.T) {
	g := mustNormalize(t, &schema.FlowDefinition{
		Start:       startAt("A"),
		Assignments: []schema.Assignment{assign("A", "")},
	})
	g.Entry = "Nope"
	assertCode(t, Linearize(g), schema.ErrCodeUnresolvedEntry)
}

// sampleFlow mixes every revisitable kind with a fault path.
func sampleFlow() *schema.FlowDefinition {
	c := create("Create_Task", "Task", "")
	c.FaultConnector = conn("Log_Error")
	return &schema.FlowDefinition{
		Label: "Sample",
		Start: startAt("Get_Accounts"),
		RecordLookups: []schema.RecordLookup{{
			Base:   schema.Base{Name: "Get_Accounts"},
			Links:  schema.Links{Connector: conn("Each_Account")},
			Object: "Account",
		}},
		Loops:     []schema.Loop{loop("Each_Account", "Get_Accounts", "Is_Big", "Wait_Approval")},
		Decisions: []schema.Decision{decision("Is_Big", "Each_Account", rule("big", "Big", "Create_Task"))},
		RecordCreates: []schema.RecordCreate{c},
		Waits: []schema.Wait{{
			Base: schema.Base{Name: "Wait_Approval"},
			WaitEvents: []schema.WaitEvent{
				{Name: "ok", Label: "Approved"},
				{Name: "ko", Label: "Rejected", Connector: conn("Log_Error")},
			},
		}},
		Assignments: []schema.Assignment{assign("Log_Error", "")},
	}
}
