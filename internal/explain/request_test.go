package explain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/flowlens/internal/analysis"
	"github.com/rendis/flowlens/internal/trace"
	"github.com/rendis/flowlens/pkg/schema"
)

func smallReport() *analysis.Report {
	return &analysis.Report{
		Flow: analysis.FlowInfo{Label: "Router", Description: "Routes 'big' deals", ProcessType: "AutoLaunchedFlow"},
		Rows: []trace.Row{
			{Element: "Start", ElementDescription: "Start", Kind: schema.KindStart, BranchCondition: "Runs immediately", NextElementName: "Create"},
			{Element: "Create", ElementDescription: "Create", Kind: schema.KindRecordCreate, ParameterSummary: `Object = Task / Subject = "Hi"`, BranchCondition: "success"},
		},
		Narrative: []string{"inserts Task at the start", "calls action logError after Create fails"},
	}
}

func TestBuildRequest_Default(t *testing.T) {
	req := BuildRequest(smallReport(), Options{})

	assert.Equal(t, DefaultModel, req.Model)
	assert.False(t, req.Upgraded)
	assert.False(t, req.Truncated)
	assert.Equal(t, SystemPrompt, req.System)
	assert.Equal(t, "This flow: inserts Task at the start\ncalls action logError after Create fails "+DefaultPrompt, req.Prompt)
	assert.True(t, strings.HasSuffix(req.Prompt, "\nFLOW: \n"))

	assert.True(t, strings.HasPrefix(req.Data, "Flow:  Router\n Description: Routes big deals\n Type: AutoLaunchedFlow"))
	assert.Contains(t, req.Data, "Subject = Hi")
	assert.NotContains(t, req.Data, `"`)

	assert.True(t, req.Recent)
	assert.Equal(t, 5000, req.MaxTokens)
	assert.Equal(t, float32(1), req.Temperature)
	assert.Zero(t, req.TopP)
	assert.Equal(t, req.Prompt+" "+req.Data, req.UserMessage())
}

func TestBuildRequest_Question(t *testing.T) {
	req := BuildRequest(smallReport(), Options{Question: "Which objects are updated?", Model: "gpt-4o"})

	assert.Equal(t, "Which objects are updated?\nFLOW: \n", req.Prompt)
	assert.Equal(t, "gpt-4o", req.Model)
	assert.False(t, req.Recent)
	assert.Equal(t, 2000, req.MaxTokens)
	assert.Equal(t, float32(0.3), req.Temperature)
	assert.Equal(t, float32(0.2), req.TopP)
}

func bigReport(rows int) *analysis.Report {
	r := smallReport()
	for range rows {
		r.Rows = append(r.Rows, trace.Row{
			Element:            "Assign",
			ElementDescription: "Assign_" + strings.Repeat("x", 40),
			Kind:               schema.KindAssignment,
			ParameterSummary:   strings.Repeat("a", 50),
			BranchCondition:    "success",
		})
	}
	return r
}

func TestBuildRequest_UpgradesLargePayloads(t *testing.T) {
	req := BuildRequest(bigReport(200), Options{})
	assert.Greater(t, len(req.Data), UpgradeThreshold)
	assert.LessOrEqual(t, len(req.Data), TruncateThreshold)
	assert.Equal(t, UpgradeModel, req.Model)
	assert.True(t, req.Upgraded)
	assert.False(t, req.Truncated)
	assert.False(t, req.Recent)
	assert.Equal(t, 2000, req.MaxTokens)

	// Only the default model is upgraded.
	req = BuildRequest(bigReport(200), Options{Model: "gpt-5-mini"})
	assert.Equal(t, "gpt-5-mini", req.Model)
	assert.False(t, req.Upgraded)
}

func TestBuildRequest_TruncatesHugePayloads(t *testing.T) {
	req := BuildRequest(bigReport(2000), Options{})
	assert.True(t, req.Truncated)
	assert.Len(t, req.Data, TruncateThreshold)
}

func TestBuildRequest_TruncatesOnCharacterBoundary(t *testing.T) {
	r := bigReport(2000)
	for i := range r.Rows {
		r.Rows[i].ParameterSummary = strings.Repeat("é", 50)
	}
	req := BuildRequest(r, Options{})
	assert.True(t, req.Truncated)
	assert.True(t, utf8.ValidString(req.Data))
	assert.Equal(t, TruncateThreshold, utf8.RuneCountInString(req.Data))
}

func TestBuildRequest_ThresholdsCountCharacters(t *testing.T) {
	// Under the upgrade threshold in characters, over it in bytes.
	r := smallReport()
	r.Rows[1].ParameterSummary = strings.Repeat("ñ", UpgradeThreshold/2)
	req := BuildRequest(r, Options{})
	assert.Greater(t, len(req.Data), UpgradeThreshold)
	assert.LessOrEqual(t, utf8.RuneCountInString(req.Data), UpgradeThreshold)
	assert.False(t, req.Upgraded)
	assert.Equal(t, DefaultModel, req.Model)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "añ", truncateRunes("añb", 2))
	assert.Equal(t, "añb", truncateRunes("añb", 5))
	assert.Equal(t, "", truncateRunes("añb", 0))
}

func TestIsRecentModel(t *testing.T) {
	assert.True(t, IsRecentModel("gpt-5-nano"))
	assert.True(t, IsRecentModel("GPT-5"))
	assert.True(t, IsRecentModel("o4-mini-2025"))
	assert.False(t, IsRecentModel("gpt-4o"))
	assert.False(t, IsRecentModel("gpt-4.1"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a\n b", Sanitize("a\nb"))
	assert.Equal(t, "say hi", Sanitize(`say "hi"`))
	assert.Equal(t, "its x", Sanitize("it's\tx"))
	assert.Equal(t, "a b", Sanitize("a   b"))
}
