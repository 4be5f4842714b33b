package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rendis/flowlens/internal/analysis"
	"github.com/rendis/flowlens/internal/trace"
	"github.com/rendis/flowlens/pkg/schema"
)

func sampleReport() *analysis.Report {
	return &analysis.Report{
		ID:        "rep-1",
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Flow: analysis.FlowInfo{
			Label:       "Router",
			Description: "Routes deals",
			ProcessType: "AutoLaunchedFlow",
		},
		Rows: []trace.Row{
			{Element: "Start", ElementDescription: "Start", Kind: schema.KindStart, ParameterSummary: "Object = Opportunity", BranchCondition: "Runs immediately", NextElementName: "Check"},
			{Element: "Check", ElementDescription: "Check (Check Amount)", Kind: schema.KindDecision, BranchCondition: "Big (Big Deal) / Amount GreaterThan 100", NextElementName: "Create"},
			{Element: "Check", BranchCondition: "success", Continuation: true},
			{Element: "Create", ElementDescription: "Create (Create Task) / Adds a | task", Kind: schema.KindRecordCreate, ParameterSummary: "Object = Task / Input assignments: / Subject = Hi", BranchCondition: "success", NextElementName: "Gone"},
		},
		Narrative: []string{
			"inserts Task after checking Check Amount is Big Deal",
			"queries Account at the start",
		},
		Resources: []trace.Row{
			{Element: "Items", ElementDescription: "Items", Kind: schema.KindVariable, ParameterSummary: "Type = String / Input = false"},
		},
		Issues: []schema.ValidationIssue{
			{Path: "Create", Code: "MISSING_FAULT_PATH", Message: "no fault connector", Severity: schema.SeverityWarning},
		},
		Unreachable: []string{"Orphan"},
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"":         FormatMarkdown,
		"md":       FormatMarkdown,
		"Markdown": FormatMarkdown,
		"html":     FormatHTML,
		"json":     FormatJSON,
		"yml":      FormatYAML,
		"yaml":     FormatYAML,
		"text":     FormatText,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("pdf")
	require.Error(t, err)
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleReport())

	assert.True(t, strings.HasPrefix(md,
		"Flow:  Router\nDescription: Routes deals\nType: AutoLaunchedFlow\n\n"+TableHeader))
	assert.Contains(t, md, "|Start|start|Object = Opportunity|Runs immediately|Check|\n")
	assert.Contains(t, md, "|Check (Check Amount)|decision||Big (Big Deal) / Amount GreaterThan 100|Create|\n")
	assert.Contains(t, md, "\n||||success||\n")
	assert.Contains(t, md, `|Create (Create Task) / Adds a \| task|recordCreate|`)
	assert.Contains(t, md, "\n|Resource name|Type|Parameters|\n|-|-|-|\n|Items|variable|Type = String / Input = false|\n")
}

func TestMarkdown_NoResources(t *testing.T) {
	r := sampleReport()
	r.Resources = nil
	assert.NotContains(t, Markdown(r), "Resource name")
}

func TestTable(t *testing.T) {
	out := Table(sampleReport().Rows[:1])
	assert.Equal(t, TableHeader+"|Start|start|Object = Opportunity|Runs immediately|Check|\n", out)
}

func TestNarrativeTextAndDownloadName(t *testing.T) {
	assert.Equal(t,
		"inserts Task after checking Check Amount is Big Deal\nqueries Account at the start",
		NarrativeText(sampleReport()))
	assert.Equal(t, "Router - flowDefinition.md", DownloadName("Router"))
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, sampleReport()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "rep-1", decoded["id"])
	assert.NotContains(t, decoded, "Graph")
	rows := decoded["rows"].([]any)
	assert.Len(t, rows, 4)
	assert.Equal(t, true, rows[2].(map[string]any)["continuation"])
}

func TestYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, YAML(&buf, sampleReport()))

	var decoded struct {
		ID        string   `yaml:"id"`
		Narrative []string `yaml:"narrative"`
		Flow      struct {
			Label string `yaml:"label"`
		} `yaml:"flow"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "rep-1", decoded.ID)
	assert.Equal(t, "Router", decoded.Flow.Label)
	assert.Len(t, decoded.Narrative, 2)
}

func TestRender(t *testing.T) {
	r := sampleReport()
	for _, f := range Formats {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Render(&buf, r, f))
			assert.NotEmpty(t, buf.String())
		})
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, FormatText))
	assert.Equal(t, NarrativeText(r)+"\n", buf.String())

	require.Error(t, Render(&buf, r, "pdf"))
}
