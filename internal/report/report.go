// Package report renders analysis reports as markdown, HTML, JSON, YAML or
// plain narrative text.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/flowlens/internal/analysis"
	"github.com/rendis/flowlens/internal/narrative"
	"github.com/rendis/flowlens/internal/trace"
)

// Format names an output rendering.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatText     Format = "text"
)

// Formats lists the supported formats.
var Formats = []Format{FormatMarkdown, FormatHTML, FormatJSON, FormatYAML, FormatText}

// ParseFormat maps a format name (md and yml accepted) to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "text", "txt":
		return FormatText, nil
	}
	return "", fmt.Errorf("report: unknown format %q", s)
}

// TableHeader is the markdown header of the trace table.
const TableHeader = "|Element name|Type|Parameters|Condition|Condition next element|\n|-|-|-|-|-|\n"

const resourceHeader = "|Resource name|Type|Parameters|\n|-|-|-|\n"

// Header renders the flow preamble that precedes the table.
func Header(info analysis.FlowInfo) string {
	return fmt.Sprintf("Flow:  %s\nDescription: %s\nType: %s\n\n", info.Label, info.Description, info.ProcessType)
}

// Markdown renders the header, the trace table and, when present, the
// resources table.
func Markdown(r *analysis.Report) string {
	var b strings.Builder
	b.WriteString(Header(r.Flow))
	b.WriteString(TableHeader)
	writeRows(&b, r.Rows)

	if len(r.Resources) > 0 {
		b.WriteString("\n")
		b.WriteString(resourceHeader)
		for _, row := range r.Resources {
			fmt.Fprintf(&b, "|%s|%s|%s|\n", cell(row.ElementDescription), cell(string(row.Kind)), cell(row.ParameterSummary))
		}
	}
	return b.String()
}

// Table renders rows alone as a markdown table.
func Table(rows []trace.Row) string {
	var b strings.Builder
	b.WriteString(TableHeader)
	writeRows(&b, rows)
	return b.String()
}

func writeRows(b *strings.Builder, rows []trace.Row) {
	for _, row := range rows {
		fmt.Fprintf(b, "|%s|%s|%s|%s|%s|\n",
			cell(row.ElementDescription),
			cell(string(row.Kind)),
			cell(row.ParameterSummary),
			cell(row.BranchCondition),
			cell(row.NextElementName))
	}
}

// cell keeps a value on one table line and escapes column separators.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// NarrativeText renders the narrative as one prose block.
func NarrativeText(r *analysis.Report) string {
	return narrative.Join(r.Narrative)
}

// DownloadName is the file name offered for the markdown report.
func DownloadName(label string) string {
	return label + " - flowDefinition.md"
}

// JSON writes the report as indented JSON.
func JSON(w io.Writer, r *analysis.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

// YAML writes the report as YAML.
func YAML(w io.Writer, r *analysis.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("report: encode yaml: %w", err)
	}
	return enc.Close()
}

// Render writes r in the given format.
func Render(w io.Writer, r *analysis.Report, format Format) error {
	switch format {
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(r))
		return err
	case FormatHTML:
		return HTML(w, r)
	case FormatJSON:
		return JSON(w, r)
	case FormatYAML:
		return YAML(w, r)
	case FormatText:
		_, err := io.WriteString(w, NarrativeText(r)+"\n")
		return err
	}
	return fmt.Errorf("report: unknown format %q", format)
}
