package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/flowlens/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const flowSchemaURL = "https://flowlens.dev/schemas/flow.json"

// flowSchemaJSON is the JSON Schema for the Flow metadata object after its
// collection keys were canonicalized. Tooling API payloads carry explicit
// nulls for absent fields, so optional members accept null.
// Embedded as a constant to avoid filesystem dependencies.
const flowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowlens.dev/schemas/flow.json",
  "type": "object",
  "anyOf": [
    { "required": ["start"], "properties": { "start": { "type": "object" } } },
    { "required": ["startElementReference"], "properties": { "startElementReference": { "type": "string", "minLength": 1 } } }
  ],
  "properties": {
    "label": { "$ref": "#/$defs/text" },
    "description": { "$ref": "#/$defs/text" },
    "processType": { "$ref": "#/$defs/text" },
    "status": { "$ref": "#/$defs/text" },
    "apiVersion": { "type": ["number", "null"] },
    "startElementReference": { "$ref": "#/$defs/text" },
    "start": { "$ref": "#/$defs/start" },
    "recordLookups": { "$ref": "#/$defs/elements" },
    "recordCreates": { "$ref": "#/$defs/elements" },
    "recordUpdates": { "$ref": "#/$defs/elements" },
    "recordDeletes": { "$ref": "#/$defs/elements" },
    "recordRollbacks": { "$ref": "#/$defs/elements" },
    "assignments": { "$ref": "#/$defs/elements" },
    "decisions": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/decision" }
    },
    "screens": { "$ref": "#/$defs/elements" },
    "loops": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/loop" }
    },
    "subflows": { "$ref": "#/$defs/elements" },
    "actionCalls": { "$ref": "#/$defs/elements" },
    "apexPluginCalls": { "$ref": "#/$defs/elements" },
    "collectionProcessors": { "$ref": "#/$defs/elements" },
    "transforms": { "$ref": "#/$defs/elements" },
    "waits": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/wait" }
    },
    "dynamicChoiceSets": { "$ref": "#/$defs/elements" },
    "variables": { "$ref": "#/$defs/elements" },
    "textTemplates": { "$ref": "#/$defs/elements" },
    "formulas": { "$ref": "#/$defs/elements" },
    "constants": { "$ref": "#/$defs/elements" },
    "choices": { "$ref": "#/$defs/elements" }
  },
  "$defs": {
    "text": { "type": ["string", "null"] },
    "name": { "type": "string", "minLength": 1 },
    "connector": {
      "type": ["object", "null"],
      "properties": {
        "targetReference": { "type": ["string", "null"] },
        "isGoTo": { "type": ["boolean", "null"] }
      }
    },
    "element": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": { "$ref": "#/$defs/name" },
        "label": { "$ref": "#/$defs/text" },
        "description": { "$ref": "#/$defs/text" },
        "connector": { "$ref": "#/$defs/connector" },
        "defaultConnector": { "$ref": "#/$defs/connector" },
        "faultConnector": { "$ref": "#/$defs/connector" }
      }
    },
    "elements": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/element" }
    },
    "decision": {
      "$ref": "#/$defs/element",
      "properties": {
        "rules": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "required": ["name"],
            "properties": {
              "name": { "$ref": "#/$defs/name" },
              "label": { "$ref": "#/$defs/text" },
              "connector": { "$ref": "#/$defs/connector" },
              "conditions": { "type": ["array", "null"] }
            }
          }
        },
        "defaultConnectorLabel": { "$ref": "#/$defs/text" }
      }
    },
    "loop": {
      "$ref": "#/$defs/element",
      "properties": {
        "collectionReference": { "$ref": "#/$defs/text" },
        "iterationOrder": { "$ref": "#/$defs/text" },
        "nextValueConnector": { "$ref": "#/$defs/connector" },
        "noMoreValuesConnector": { "$ref": "#/$defs/connector" }
      }
    },
    "wait": {
      "$ref": "#/$defs/element",
      "properties": {
        "waitEvents": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "required": ["name"],
            "properties": {
              "name": { "$ref": "#/$defs/name" },
              "label": { "$ref": "#/$defs/text" },
              "eventType": { "$ref": "#/$defs/text" },
              "connector": { "$ref": "#/$defs/connector" },
              "conditions": { "type": ["array", "null"] }
            }
          }
        }
      }
    },
    "start": {
      "type": ["object", "null"],
      "properties": {
        "connector": { "$ref": "#/$defs/connector" },
        "object": { "$ref": "#/$defs/text" },
        "triggerType": { "$ref": "#/$defs/text" },
        "recordTriggerType": { "$ref": "#/$defs/text" },
        "scheduledPaths": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "properties": {
              "name": { "$ref": "#/$defs/text" },
              "label": { "$ref": "#/$defs/text" },
              "connector": { "$ref": "#/$defs/connector" },
              "offsetNumber": { "type": ["integer", "null"] },
              "offsetUnit": { "$ref": "#/$defs/text" }
            }
          }
        },
        "schedule": {
          "type": ["object", "null"],
          "properties": {
            "frequency": {
              "enum": ["Once", "Daily", "Weekly", null]
            },
            "startDate": { "$ref": "#/$defs/text" },
            "startTime": { "$ref": "#/$defs/text" }
          }
        }
      }
    }
  }
}`

// JSONSchemaValidator checks flow metadata against the flow JSON Schema
// (Draft 2020-12). It is safe for concurrent use.
type JSONSchemaValidator struct {
	flowSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a new JSONSchemaValidator with the flow schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(flowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal flow schema: %w", err)
	}
	if err := c.AddResource(flowSchemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("add flow schema resource: %w", err)
	}

	flowSchema, err := c.Compile(flowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile flow schema: %w", err)
	}

	return &JSONSchemaValidator{flowSchema: flowSchema}, nil
}

// ValidateDocument validates raw flow metadata JSON whose collection keys are
// already canonical. Violations are reported as MALFORMED_DEFINITION.
func (v *JSONSchemaValidator) ValidateDocument(data []byte) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return schema.NewError(schema.ErrCodeMalformedDefinition, "flow metadata is not valid JSON").WithCause(err)
	}
	if err := v.flowSchema.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// ValidateDefinition validates a decoded FlowDefinition against the flow schema.
func (v *JSONSchemaValidator) ValidateDefinition(def *schema.FlowDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeMalformedDefinition, "flow definition is nil")
	}

	b, err := json.Marshal(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeMalformedDefinition, "failed to serialize flow definition").WithCause(err)
	}
	return v.ValidateDocument(b)
}

// toFlowError converts a jsonschema.ValidationError into a FlowError
// listing every leaf violation with its instance location.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeMalformedDefinition, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeMalformedDefinition, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeMalformedDefinition, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("flow metadata has %d schema violations", len(violations))
	return schema.NewError(schema.ErrCodeMalformedDefinition, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
