package validation

import (
	"context"
	"errors"

	"github.com/rendis/flowlens/internal/engine"
	"github.com/rendis/flowlens/pkg/schema"
)

// FlowValidator orchestrates the two-stage check of an analyzed flow:
// 1. Structural (JSON Schema)
// 2. Lint (expr rules over element facts)
type FlowValidator struct {
	jsonSchema *JSONSchemaValidator
	linter     *Linter
}

// NewFlowValidator creates a FlowValidator with the built-in lint rules plus extra.
func NewFlowValidator(extra ...Rule) (*FlowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	linter, err := NewLinter(extra...)
	if err != nil {
		return nil, err
	}
	return &FlowValidator{
		jsonSchema: jsv,
		linter:     linter,
	}, nil
}

// Validate runs both stages against a linearized graph and returns an
// aggregated result. Structural errors short-circuit: lint is skipped.
func (fv *FlowValidator) Validate(ctx context.Context, g *engine.Graph) *schema.ValidationResult {
	if g == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "flow graph is nil")
		return r
	}

	result := validateStructural(fv.jsonSchema, g.Flow)
	if !result.Valid() {
		return result
	}

	result.Merge(fv.linter.Lint(ctx, g))
	return result
}

// Linter returns the lint stage.
func (fv *FlowValidator) Linter() *Linter {
	return fv.linter
}

// ValidateDocument delegates to the underlying JSONSchemaValidator.
func (fv *FlowValidator) ValidateDocument(data []byte) error {
	return fv.jsonSchema.ValidateDocument(data)
}

// ValidateDefinition delegates to the underlying JSONSchemaValidator.
func (fv *FlowValidator) ValidateDefinition(def *schema.FlowDefinition) error {
	return fv.jsonSchema.ValidateDefinition(def)
}

// validateStructural wraps JSONSchemaValidator.ValidateDefinition, converting
// its error output into ValidationResult.
func validateStructural(v *JSONSchemaValidator, def *schema.FlowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDefinition(def)
	if err == nil {
		return result
	}

	var fe *schema.FlowError
	if !errors.As(err, &fe) {
		result.AddError("/", schema.ErrCodeMalformedDefinition, err.Error())
		return result
	}

	if fe.Details != nil {
		if violations, ok := fe.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", fe.Code, v)
			}
			return result
		}
	}
	result.AddError("/", fe.Code, fe.Message)
	return result
}

var _ Validator = (*FlowValidator)(nil)
