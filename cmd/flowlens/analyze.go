package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/flowlens/internal/analysis"
	"github.com/rendis/flowlens/internal/expressions"
	"github.com/rendis/flowlens/internal/narrative"
	"github.com/rendis/flowlens/internal/report"
	"github.com/rendis/flowlens/internal/store"
	"github.com/rendis/flowlens/pkg/schema"
)

const noSideEffects = "This flow has no record operations, action calls or subflows."

var extensions = map[report.Format]string{
	report.FormatMarkdown: ".md",
	report.FormatHTML:     ".html",
	report.FormatJSON:     ".json",
	report.FormatYAML:     ".yaml",
	report.FormatText:     ".txt",
}

type analyzeOptions struct {
	format    string
	out       string
	save      bool
	source    string
	rulesFile string
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Analyze flow definitions and render the full report",
		Long: `Analyze one or more flow definitions. The report holds the flow header,
the execution-ordered trace table, the narrative and lint findings.

With several files, analyses run concurrently and --out names a directory
that receives one report per input file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, a, opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "markdown", "output format (markdown, html, json, yaml, text)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output file (directory with several inputs; default stdout)")
	cmd.Flags().BoolVar(&opts.save, "save", false, "archive the report")
	cmd.Flags().StringVar(&opts.source, "source", "", "source recorded with archived reports (default the file path)")
	cmd.Flags().StringVar(&opts.rulesFile, "rules", "", "extra lint rules file (JSON or YAML)")
	return cmd
}

func runAnalyze(cmd *cobra.Command, a *app, opts analyzeOptions, args []string) error {
	ctx := cmd.Context()
	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	extra, err := loadRules(opts.rulesFile)
	if err != nil {
		return err
	}
	an, err := a.analyzer(extra...)
	if err != nil {
		return err
	}

	var st store.Store
	if opts.save {
		ls, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer ls.Close()
		st = ls
	}

	if len(args) == 1 {
		raw, r, err := a.analyzeInput(ctx, an, args[0])
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := report.Render(&buf, r, format); err != nil {
			return err
		}
		if err := writeOutput(cmd.OutOrStdout(), opts.out, buf.Bytes()); err != nil {
			return err
		}
		return saveReport(ctx, cmd.ErrOrStderr(), st, r, sourceOf(opts.source, args[0]), raw)
	}

	if slices.Contains(args, "-") {
		return errors.New("stdin can only be analyzed alone")
	}
	if opts.out != "" {
		if err := os.MkdirAll(opts.out, 0o755); err != nil {
			return err
		}
	}

	var failed int
	for _, res := range an.AnalyzeFiles(ctx, args, a.cfg.Concurrency) {
		if res.Err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", res.Path, errorMessage(wrapFatal(res.Err)))
			continue
		}
		if err := emitBatchReport(cmd.OutOrStdout(), opts.out, res, format); err != nil {
			return err
		}
		if err := saveReport(ctx, cmd.ErrOrStderr(), st, res.Report, sourceOf(opts.source, res.Path), res.Raw); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d flows failed", failed, len(args))
	}
	return nil
}

func emitBatchReport(w io.Writer, dir string, res analysis.BatchResult, format report.Format) error {
	var buf bytes.Buffer
	if err := report.Render(&buf, res.Report, format); err != nil {
		return err
	}
	if dir == "" {
		fmt.Fprintf(w, "==> %s <==\n", res.Path)
		buf.WriteString("\n")
		_, err := w.Write(buf.Bytes())
		return err
	}
	name := strings.TrimSuffix(filepath.Base(res.Path), filepath.Ext(res.Path)) + extensions[format]
	return os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644)
}

func saveReport(ctx context.Context, w io.Writer, st store.Store, r *analysis.Report, source string, raw []byte) error {
	if st == nil {
		return nil
	}
	if err := st.SaveReport(ctx, store.NewRecord(r, source, raw)); err != nil {
		return err
	}
	fmt.Fprintf(w, "saved report %s\n", r.ID)
	return nil
}

func sourceOf(flag, path string) string {
	if flag != "" {
		return flag
	}
	if path == "-" {
		return "stdin"
	}
	return path
}

func newTraceCmd(a *app) *cobra.Command {
	var where, format string
	cmd := &cobra.Command{
		Use:   "trace FILE",
		Short: "Print the execution-ordered trace table",
		Long: `Print one row per branch of every reachable element, in visit order.

--where keeps the element groups matching a CEL expression over the
element variable (name, kind, description, parameters, visit_index,
conditions, targets) and the flow variable (label, process_type, status):

  flowlens trace flow.json --where 'element.kind == "decision"'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			an, err := a.analyzer()
			if err != nil {
				return err
			}
			_, r, err := a.analyzeInput(ctx, an, args[0])
			if err != nil {
				return err
			}

			cel, err := expressions.NewCELEngine()
			if err != nil {
				return err
			}
			rows, err := analysis.FilterRows(ctx, cel, where, r.Flow, r.Rows)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"flow": r.Flow, "rows": rows})
			case "markdown", "md":
				_, err := io.WriteString(out, report.Header(r.Flow)+report.Table(rows))
				return err
			}
			return fmt.Errorf("unknown trace format %q", format)
		},
	}
	cmd.Flags().StringVar(&where, "where", "", "CEL filter over element groups")
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "output format (markdown, json)")
	return cmd
}

func newNarrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "narrate FILE",
		Short: "Summarize the side effects of a flow in prose",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			an, err := a.analyzer()
			if err != nil {
				return err
			}
			_, r, err := a.analyzeInput(cmd.Context(), an, args[0])
			if err != nil {
				return err
			}
			if len(r.Narrative) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), noSideEffects)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "This flow:\n%s\n", narrative.Join(r.Narrative))
			return nil
		},
	}
}

func newLintCmd(a *app) *cobra.Command {
	var rulesFile string
	var strict bool
	cmd := &cobra.Command{
		Use:   "lint FILE",
		Short: "Report lint findings and unreachable elements",
		Long: `Run the built-in lint rules plus the configured and --rules rules.
Findings are warnings unless a rule sets severity error. With --strict
any finding makes the command fail.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := loadRules(rulesFile)
			if err != nil {
				return err
			}
			an, err := a.analyzer(extra...)
			if err != nil {
				return err
			}
			_, r, err := a.analyzeInput(cmd.Context(), an, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(r.Issues) == 0 {
				fmt.Fprintln(out, "no findings")
			}
			var errs int
			for _, is := range r.Issues {
				if is.Severity == schema.SeverityError {
					errs++
				}
				fmt.Fprintf(out, "%-7s %-20s %s: %s\n", is.Severity, is.Code, is.Path, is.Message)
			}
			if len(r.Unreachable) > 0 {
				fmt.Fprintf(out, "unreachable: %s\n", strings.Join(r.Unreachable, ", "))
			}

			if errs > 0 || (strict && len(r.Issues) > 0) {
				return fmt.Errorf("%d findings (%d errors)", len(r.Issues), errs)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rulesFile, "rules", "", "extra lint rules file (JSON or YAML)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on any finding")
	return cmd
}
