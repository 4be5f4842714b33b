package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/flowlens/internal/expressions"
	"github.com/rendis/flowlens/internal/loader"
)

func newQueryCmd(a *app) *cobra.Command {
	var definition, raw bool
	cmd := &cobra.Command{
		Use:   "query EXPR FILE",
		Short: "Run a jq expression over the report or the definition",
		Long: `Run a jq expression over the JSON report of a flow:

  flowlens query '.rows[] | select(.kind == "recordUpdate") | .element' flow.json

With --definition the expression runs over the canonical flow metadata
instead, after the Tooling API envelope has been unwrapped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			an, err := a.analyzer()
			if err != nil {
				return err
			}

			var input any
			if definition {
				data, err := a.readInput(args[1])
				if err != nil {
					return err
				}
				doc, err := an.Loader().Unwrap(ctx, data)
				if err != nil {
					return wrapFatal(err)
				}
				input = loader.Canonicalize(doc)
			} else {
				_, r, err := a.analyzeInput(ctx, an, args[1])
				if err != nil {
					return err
				}
				if input, err = toJSONValue(r); err != nil {
					return err
				}
			}

			results, err := expressions.NewGoJQEngine().Query(ctx, args[0], input)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, v := range results {
				if s, ok := v.(string); ok && raw {
					fmt.Fprintln(out, s)
					continue
				}
				b, err := json.MarshalIndent(v, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(b))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&definition, "definition", false, "query the flow metadata instead of the report")
	cmd.Flags().BoolVarP(&raw, "raw-output", "r", false, "print strings without quotes")
	return cmd
}

// toJSONValue converts v into the generic shape jq expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
