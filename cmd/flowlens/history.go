package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/flowlens/internal/report"
	"github.com/rendis/flowlens/internal/store"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse archived reports",
		Long:  `List, show, delete and prune reports archived with --save.`,
	}
	cmd.AddCommand(
		newHistoryListCmd(a),
		newHistoryShowCmd(a),
		newHistoryDeleteCmd(a),
		newHistoryPruneCmd(a),
	)
	return cmd
}

func newHistoryListCmd(a *app) *cobra.Command {
	var filter store.ReportFilter
	var since string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if since != "" {
				t, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				filter.Since = &t
			}

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			sums, err := st.ListReports(ctx, filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if sums == nil {
					sums = []*store.Summary{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sums)
			}
			if len(sums) == 0 {
				fmt.Fprintln(out, "No archived reports")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFLOW\tTYPE\tROWS\tERRORS\tWARNINGS\tCREATED")
			for _, s := range sums {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					s.ID, s.FlowLabel, s.ProcessType, s.RowCount, s.ErrorCount, s.WarningCount,
					s.CreatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&filter.FlowLabel, "flow", "", "filter by flow label (substring, case-insensitive)")
	cmd.Flags().StringVar(&filter.ProcessType, "type", "", "filter by process type")
	cmd.Flags().StringVar(&filter.Fingerprint, "fingerprint", "", "filter by definition fingerprint")
	cmd.Flags().StringVar(&since, "since", "", "only reports newer than a duration (72h) or RFC3339 time")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "maximum reports")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "reports to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newHistoryShowCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show REPORT_ID",
		Short: "Render an archived report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			rec, err := st.GetReport(ctx, args[0])
			if err != nil {
				return err
			}
			return report.Render(cmd.OutOrStdout(), rec.Report, f)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "output format (markdown, html, json, yaml, text)")
	return cmd
}

func newHistoryDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete REPORT_ID...",
		Short: "Delete archived reports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			for _, id := range args {
				if err := st.DeleteReport(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}
}

func newHistoryPruneCmd(a *app) *cobra.Command {
	var before string
	var vacuum bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete reports older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cutoff, err := parseSince(before, time.Now())
			if err != nil {
				return err
			}
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.Prune(ctx, cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d reports created before %s\n", n, cutoff.Format(time.RFC3339))
			if vacuum {
				return st.Vacuum(ctx)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&before, "before", "720h", "cutoff as a duration ago (720h) or RFC3339 time")
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "compact the database afterwards")
	return cmd
}

// parseSince reads a cutoff either as a duration before now or as an
// RFC3339 timestamp.
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want a duration like 72h or an RFC3339 time", s)
	}
	return t, nil
}
