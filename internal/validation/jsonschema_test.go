package validation

import (
	"testing"

	"github.com/rendis/flowlens/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONSchemaValidator(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.NotNil(t, v.flowSchema)
}

func TestValidateDocument_Valid(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	tests := []struct {
		name string
		doc  string
	}{
		{"start object", `{"label": "Router", "start": {"connector": {"targetReference": "A"}}}`},
		{"legacy entry reference", `{"start": null, "startElementReference": "A", "assignments": [{"name": "A"}]}`},
		{"tooling nulls", `{
			"label": null,
			"apiVersion": 58.0,
			"start": {"connector": null, "scheduledPaths": [], "schedule": null},
			"recordCreates": [{"name": "C", "label": null, "connector": null, "faultConnector": null}],
			"decisions": [{"name": "D", "rules": [{"name": "r1", "connector": {"targetReference": "C", "isGoTo": null}}], "defaultConnectorLabel": null}],
			"loops": null
		}`},
		{"schedule", `{"start": {"schedule": {"frequency": "Weekly", "startDate": "2024-01-15", "startTime": "09:30:00.000Z"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, v.ValidateDocument([]byte(tt.doc)))
		})
	}
}

func TestValidateDocument_Violations(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	tests := []struct {
		name     string
		doc      string
		contains string
	}{
		{"no entry", `{"label": "Router"}`, ""},
		{"element without name", `{"start": {}, "recordCreates": [{"label": "Nameless"}]}`, "/recordCreates/0"},
		{"empty name", `{"start": {}, "assignments": [{"name": ""}]}`, "/assignments/0/name"},
		{"connector wrong type", `{"start": {"connector": "A"}}`, "/start/connector"},
		{"rule without name", `{"start": {}, "decisions": [{"name": "D", "rules": [{"label": "x"}]}]}`, "/decisions/0/rules/0"},
		{"unknown frequency", `{"start": {"schedule": {"frequency": "Hourly"}}}`, "/start/schedule/frequency"},
		{"collection not array", `{"start": {}, "loops": {"name": "L"}}`, "/loops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateDocument([]byte(tt.doc))
			require.Error(t, err)

			var fe *schema.FlowError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, schema.ErrCodeMalformedDefinition, fe.Code)
			violations, ok := fe.Details["violations"].([]string)
			require.True(t, ok)
			require.NotEmpty(t, violations)
			if tt.contains != "" {
				assert.Contains(t, violations[0], tt.contains)
			}
		})
	}
}

func TestValidateDocument_NotJSON(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	err = v.ValidateDocument([]byte(`{"start":`))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeMalformedDefinition))
}

func TestValidateDefinition(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	err = v.ValidateDefinition(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil")

	assert.NoError(t, v.ValidateDefinition(&schema.FlowDefinition{
		Start:         &schema.Start{Connector: &schema.Connector{TargetReference: "C"}},
		RecordCreates: []schema.RecordCreate{{Base: schema.Base{Name: "C"}, Object: "Account"}},
	}))

	err = v.ValidateDefinition(&schema.FlowDefinition{Label: "No entry"})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeMalformedDefinition))

	err = v.ValidateDefinition(&schema.FlowDefinition{
		StartElementReference: "A",
		Assignments:           []schema.Assignment{{Base: schema.Base{Name: ""}}},
	})
	require.Error(t, err)
}
