// Package explain builds language-model requests that ask for a prose
// explanation of an analyzed flow, and sends them to an OpenAI-compatible API.
package explain

import (
	"strings"
	"unicode/utf8"

	"github.com/rendis/flowlens/internal/analysis"
	"github.com/rendis/flowlens/internal/narrative"
	"github.com/rendis/flowlens/internal/report"
)

const (
	DefaultModel = "gpt-5-nano"

	// UpgradeModel replaces DefaultModel when the payload exceeds UpgradeThreshold.
	UpgradeModel     = "gpt-4o"
	UpgradeThreshold = 16200

	// TruncateThreshold caps the payload for every model.
	TruncateThreshold = 130872

	SystemPrompt = "You are an expert at troubleshooting and explaining Salesforce flows."

	DefaultPrompt = "Your purpose is to help everyone quickly understand what this Salesforce flow does and how. " +
		"Let us think step-by-step and briefly summarize the flow in the format: \n" +
		"purpose of the flow, the main objects queried/inserted/updated, dependencies (labels, hard-coded ids, values, emails, names, etc) from outside the flow, " +
		"the main conditions it evaluates, and any potential or evident issues.\nFLOW: \n"

	TruncatedSuffix = " (RESPONSE TRUNCATED DUE TO LIMIT)"

	recentMaxTokens   = 5000
	recentTemperature = 1
	maxTokens         = 2000
	temperature       = 0.3
	topP              = 0.2
)

// Options selects the model and the question asked.
type Options struct {
	Model    string // empty uses DefaultModel
	Question string // empty uses the default summary prompt
}

// Request is a fully parameterized completion request.
type Request struct {
	Model       string  `json:"model"`
	Upgraded    bool    `json:"upgraded,omitempty"`  // DefaultModel was replaced by UpgradeModel
	Truncated   bool    `json:"truncated,omitempty"` // Data was cut at TruncateThreshold
	System      string  `json:"system"`
	Prompt      string  `json:"prompt"`
	Data        string  `json:"data"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"topP,omitempty"`
	Recent      bool    `json:"recent,omitempty"` // uses max completion tokens
}

// UserMessage is the prompt followed by the flow data.
func (r Request) UserMessage() string {
	return r.Prompt + " " + r.Data
}

// BuildRequest prepares the request for r. The data is the sanitized
// markdown report; the prompt embeds the narrative unless a question is set.
func BuildRequest(r *analysis.Report, opts Options) Request {
	var prompt string
	if opts.Question != "" {
		prompt = opts.Question + "\nFLOW: \n"
	} else {
		prompt = "This flow: " + narrative.Join(r.Narrative) + " " + DefaultPrompt
	}

	req := Request{
		Model:  opts.Model,
		System: SystemPrompt,
		Prompt: prompt,
		Data:   Sanitize(report.Markdown(r)),
	}
	if req.Model == "" {
		req.Model = DefaultModel
	}

	if n := utf8.RuneCountInString(req.Data); n > UpgradeThreshold {
		if req.Model == DefaultModel {
			req.Model = UpgradeModel
			req.Upgraded = true
		}
		if n > TruncateThreshold {
			req.Data = truncateRunes(req.Data, TruncateThreshold)
			req.Truncated = true
		}
	}

	req.Recent = IsRecentModel(req.Model)
	if req.Recent {
		req.MaxTokens = recentMaxTokens
		req.Temperature = recentTemperature
	} else {
		req.MaxTokens = maxTokens
		req.Temperature = temperature
		req.TopP = topP
	}
	return req
}

// truncateRunes returns the first n characters of s.
func truncateRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}

// IsRecentModel reports whether model takes max completion tokens and a
// fixed temperature.
func IsRecentModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "gpt-5") || strings.Contains(m, "o4-mini")
}

var sanitizer = strings.NewReplacer(
	"\n", "\n ",
	`"`, "",
	"'", "",
	"\t", " ",
)

// Sanitize strips quotes, turns tabs into spaces, indents continuation lines
// by one space and collapses triple spaces.
func Sanitize(s string) string {
	return strings.ReplaceAll(sanitizer.Replace(s), "   ", " ")
}
