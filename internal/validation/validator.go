package validation

import "github.com/rendis/flowlens/pkg/schema"

// Validator checks flow metadata for structural correctness before analysis.
// Uses JSON Schema Draft 2020-12.
type Validator interface {
	ValidateDocument(data []byte) error
	ValidateDefinition(def *schema.FlowDefinition) error
}

var _ Validator = (*JSONSchemaValidator)(nil)
