package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/flowlens/internal/explain"
)

func newExplainCmd(a *app) *cobra.Command {
	var model, question string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "explain FILE",
		Short: "Ask a language model to explain a flow",
		Long: `Send the flow report to an OpenAI-compatible chat completions API and print
the explanation. The API key is read from OPENAI_API_KEY.

Without --question the model summarizes the flow's purpose, objects,
external dependencies, conditions and issues. --dry-run prints the request
instead of sending it.`,
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

			if model == "" {
				model = a.cfg.Model
			}
			req := explain.BuildRequest(r, explain.Options{Model: model, Question: question})
			if req.Upgraded {
				a.logger.InfoContext(ctx, "flow too large for the default model", "model", req.Model)
			}
			if req.Truncated {
				a.logger.WarnContext(ctx, "flow data truncated", "chars", explain.TruncateThreshold)
			}

			out := cmd.OutOrStdout()
			if dryRun {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(req)
			}

			client, err := explain.NewOpenAIClient(a.cfg.OpenAIAPIKey, a.cfg.OpenAIBaseURL)
			if err != nil {
				return err
			}
			resp, err := client.Complete(ctx, req)
			if err != nil {
				return err
			}
			a.logger.DebugContext(ctx, "explanation received",
				"model", resp.Model,
				"prompt_tokens", resp.PromptTokens,
				"completion_tokens", resp.CompletionTokens)
			fmt.Fprintln(out, resp.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model name (default "+explain.DefaultModel+")")
	cmd.Flags().StringVarP(&question, "question", "q", "", "question to ask instead of the default summary")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the request without sending it")
	return cmd
}
