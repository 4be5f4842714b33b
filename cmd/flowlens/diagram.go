package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/flowlens/internal/diagram"
)

func newDiagramCmd(a *app) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "diagram FILE",
		Short: "Draw the linearized flow graph",
		Long: `Draw the flow graph as ASCII art, Mermaid source, or a PNG/SVG image.

ASCII rendering uses the mermaid-ascii binary under ~/.flowlens/bin when
"flowlens install" has fetched it, and a built-in renderer otherwise.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if format != "ascii" && format != "mermaid" && format != "png" && format != "svg" {
				return fmt.Errorf("unknown diagram format %q (ascii, mermaid, png, svg)", format)
			}

			an, err := a.analyzer()
			if err != nil {
				return err
			}
			_, r, err := a.analyzeInput(ctx, an, args[0])
			if err != nil {
				return err
			}
			model, err := diagram.Build(r.Graph, r.Issues)
			if err != nil {
				return err
			}

			var data []byte
			switch format {
			case "ascii":
				data = []byte(diagram.RenderASCIIAuto(model, binDir()))
			case "mermaid":
				data = []byte(diagram.RenderMermaid(model))
			default:
				data, err = diagram.RenderImage(ctx, model, diagram.ImageFormat(format))
				if err != nil {
					return err
				}
			}
			return writeOutput(cmd.OutOrStdout(), out, data)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "ascii", "diagram format (ascii, mermaid, png, svg)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}
