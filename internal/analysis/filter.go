package analysis

import (
	"context"

	"github.com/rendis/flowlens/internal/expressions"
	"github.com/rendis/flowlens/internal/trace"
)

// Group is one element's slice of the trace table: its head row followed by
// its continuation rows.
type Group []trace.Row

// Groups splits rows into element groups.
func Groups(rows []trace.Row) []Group {
	var out []Group
	for _, r := range rows {
		if r.Continuation && len(out) > 0 && out[len(out)-1][0].Element == r.Element {
			out[len(out)-1] = append(out[len(out)-1], r)
			continue
		}
		out = append(out, Group{r})
	}
	return out
}

// activation exposes a group to CEL as the element variable.
func (g Group) activation(position int) map[string]any {
	head := g[0]
	conditions := make([]any, 0, len(g))
	targets := make([]any, 0, len(g))
	for _, r := range g {
		conditions = append(conditions, r.BranchCondition)
		targets = append(targets, r.NextElementName)
	}
	return map[string]any{
		"name":        head.Element,
		"kind":        string(head.Kind),
		"description": head.ElementDescription,
		"parameters":  head.ParameterSummary,
		"visit_index": int64(position),
		"conditions":  conditions,
		"targets":     targets,
	}
}

// FilterRows keeps the element groups of rows whose element activation
// satisfies the CEL expression. An empty expression keeps everything.
func FilterRows(ctx context.Context, cel *expressions.CELEngine, expression string, flow FlowInfo, rows []trace.Row) ([]trace.Row, error) {
	if expression == "" {
		return rows, nil
	}

	flowVars := map[string]any{
		"label":        flow.Label,
		"process_type": flow.ProcessType,
		"status":       flow.Status,
	}

	out := make([]trace.Row, 0, len(rows))
	for i, g := range Groups(rows) {
		ok, err := cel.Match(ctx, expression, map[string]any{
			"element": g.activation(i + 1),
			"flow":    flowVars,
		})
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, g...)
		}
	}
	return out, nil
}
