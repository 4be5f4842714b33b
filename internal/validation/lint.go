package validation

import (
	"context"
	"fmt"

	"github.com/rendis/flowlens/internal/engine"
	"github.com/rendis/flowlens/internal/expressions"
	"github.com/rendis/flowlens/pkg/schema"
)

// Built-in lint codes.
const (
	CodeDMLInLoop          = "DML_IN_LOOP"
	CodeMissingFaultPath   = "MISSING_FAULT_PATH"
	CodeUnreachableElement = "UNREACHABLE_ELEMENT"
	CodeDanglingConnector  = "DANGLING_CONNECTOR"
	CodeHardcodedID        = "HARDCODED_ID"
)

// Rule is one lint check: an expr-lang condition evaluated against the facts
// of every element. Matching elements produce an issue with Code and Message.
type Rule struct {
	Code     string                    `json:"code" yaml:"code"`
	Message  string                    `json:"message" yaml:"message"`
	When     string                    `json:"when" yaml:"when"`
	Severity schema.ValidationSeverity `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// BuiltinRules returns the default rule set.
func BuiltinRules() []Rule {
	return []Rule{
		{
			Code:    CodeDMLInLoop,
			Message: "database operation inside a loop; operate on a collection after the loop instead",
			When:    `visited && in_loop && (dml || query)`,
		},
		{
			Code:    CodeMissingFaultPath,
			Message: "no fault connector; a failure ends the flow with an unhandled error",
			When:    `visited && (dml || query || kind == "actionCall") && !has_fault`,
		},
		{
			Code:    CodeUnreachableElement,
			Message: "not reachable from the start element",
			When:    `!visited && !declarative`,
		},
		{
			Code:    CodeDanglingConnector,
			Message: "connector targets an element that does not exist",
			When:    `len(dangling) > 0`,
		},
		{
			Code:    CodeHardcodedID,
			Message: "hard-coded record id",
			When:    `any(literals, {# matches "^[a-zA-Z0-9]{5}0[a-zA-Z0-9]{9}([a-zA-Z0-9]{3})?$"})`,
		},
	}
}

// Linter evaluates rules over a linearized graph. Findings never block
// analysis.
type Linter struct {
	exprs *expressions.ExprEngine
	rules []Rule
}

// NewLinter creates a Linter with the built-in rules followed by extra.
// Every condition is compiled up front; a rule with a missing code or an
// invalid condition is rejected.
func NewLinter(extra ...Rule) (*Linter, error) {
	l := &Linter{exprs: expressions.NewExprEngine()}

	for _, r := range append(BuiltinRules(), extra...) {
		if r.Code == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "lint rule has no code")
		}
		if err := l.exprs.Compile(r.When); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "lint rule %s: invalid condition", r.Code).
				WithCause(err).
				WithDetails(map[string]any{"rule": r.Code, "when": r.When})
		}
		if r.Severity == "" {
			r.Severity = schema.SeverityWarning
		}
		l.rules = append(l.rules, r)
	}
	return l, nil
}

// Rules returns the active rules in evaluation order.
func (l *Linter) Rules() []Rule {
	return append([]Rule(nil), l.rules...)
}

// Lint evaluates every rule against every element of g. Issues are ordered
// by rule, then by element declaration order. A rule that fails to evaluate
// is reported once as an error and skipped.
func (l *Linter) Lint(ctx context.Context, g *engine.Graph) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	all := collectFacts(g)

	for _, r := range l.rules {
		for _, f := range all {
			hit, err := l.exprs.Test(ctx, r.When, f)
			if err != nil {
				result.AddError("rules."+r.Code, schema.ErrCodeExpression,
					fmt.Sprintf("rule %s could not be evaluated: %s", r.Code, err.Error()))
				break
			}
			if !hit {
				continue
			}

			name, _ := f["name"].(string)
			if r.Severity == schema.SeverityError {
				result.AddError(name, r.Code, r.Message)
			} else {
				result.AddWarning(name, r.Code, r.Message)
			}
		}
	}
	return result
}
