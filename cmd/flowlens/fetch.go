package main

import (
	"bytes"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/flowlens/internal/report"
	"github.com/rendis/flowlens/internal/tooling"
)

func newFetchCmd(a *app) *cobra.Command {
	var instance, apiVersion, out, format string
	var save bool
	cmd := &cobra.Command{
		Use:   "fetch FLOW_URL|FLOW_ID",
		Short: "Download a flow definition from the Tooling API",
		Long: `Download a Flow record from the Salesforce Tooling API. The argument is a
Flow Builder URL (its flowId parameter is used) or a bare Flow id.

The session id is read from FLOWLENS_SESSION_ID. The org host comes from
--instance, the "instance" setting, or the host of the Flow Builder URL.

Without --format the raw record is written; with --format it is analyzed
and the report is rendered instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := tooling.ParseFlowID(args[0])
			if err != nil {
				return err
			}
			if instance == "" {
				instance = a.cfg.Instance
			}
			if instance == "" {
				instance = instanceFromURL(args[0])
			}
			if instance == "" {
				return errors.New("no instance: pass --instance or set FLOWLENS_INSTANCE")
			}
			if apiVersion == "" {
				apiVersion = a.cfg.APIVersion
			}

			client, err := tooling.New(tooling.Config{
				Instance:   instance,
				SessionID:  a.cfg.SessionID,
				APIVersion: apiVersion,
				Timeout:    time.Duration(a.cfg.Timeout),
			})
			if err != nil {
				return err
			}
			a.logger.DebugContext(ctx, "fetching flow", "flow_id", id, "endpoint", client.Endpoint(id))
			raw, err := client.FetchFlow(ctx, id)
			if err != nil {
				return err
			}

			if format == "" && !save {
				return writeOutput(cmd.OutOrStdout(), out, raw)
			}

			an, err := a.analyzer()
			if err != nil {
				return err
			}
			r, err := an.AnalyzeJSON(ctx, raw)
			if err != nil {
				return wrapFatal(err)
			}
			if save {
				st, err := a.openStore(ctx)
				if err != nil {
					return err
				}
				defer st.Close()
				if err := saveReport(ctx, cmd.ErrOrStderr(), st, r, client.Endpoint(id), raw); err != nil {
					return err
				}
			}
			if format == "" {
				return writeOutput(cmd.OutOrStdout(), out, raw)
			}
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := report.Render(&buf, r, f); err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), out, buf.Bytes())
		},
	}
	cmd.Flags().StringVar(&instance, "instance", "", "org host, e.g. acme.my.salesforce.com")
	cmd.Flags().StringVar(&apiVersion, "api-version", "", "Tooling API version (default v42.0)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "render a report instead of the raw record (markdown, html, json, yaml, text)")
	cmd.Flags().BoolVar(&save, "save", false, "archive the report")
	return cmd
}

// instanceFromURL derives the API host from a Lightning Flow Builder URL.
func instanceFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	host := u.Host
	if org, ok := strings.CutSuffix(host, ".lightning.force.com"); ok {
		return org + ".my.salesforce.com"
	}
	return host
}
