package expressions

import "context"

// Engine evaluates expressions over analysis data.
// Three implementations: CEL (trace filters), Expr (lint rules), GoJQ (definition queries).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
