// gen-diagrams renders the bundled sample flow into documentation assets.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rendis/flowlens/internal/analysis"
	"github.com/rendis/flowlens/internal/diagram"
	"github.com/rendis/flowlens/internal/report"
)

const sample = "examples/flows/opportunity_router.json"

func main() {
	if err := run(context.Background(), sample, filepath.Join("docs", "assets")); err != nil {
		fmt.Fprintf(os.Stderr, "gen-diagrams: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, input, outDir string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	an, err := analysis.New(analysis.Config{})
	if err != nil {
		return err
	}
	r, err := an.AnalyzeJSON(ctx, data)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", input, err)
	}
	model, err := diagram.Build(r.Graph, r.Issues)
	if err != nil {
		return fmt.Errorf("build diagram: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	write := func(name string, data []byte) error {
		return os.WriteFile(filepath.Join(outDir, name), data, 0o644)
	}

	// ASCII (mermaid-ascii with hand-rolled fallback)
	home, _ := os.UserHomeDir()
	ascii := diagram.RenderASCIIAuto(model, filepath.Join(home, ".flowlens", "bin"))
	if err := write("diagram-ascii.txt", []byte(ascii)); err != nil {
		return err
	}
	fmt.Println("=== ASCII ===")
	fmt.Println(ascii)

	mermaid := diagram.RenderMermaid(model)
	if err := write("diagram-mermaid.md", []byte("```mermaid\n"+mermaid+"\n```\n")); err != nil {
		return err
	}
	fmt.Println("=== Mermaid ===")
	fmt.Println(mermaid)

	if err := write("report.md", []byte(report.Markdown(r))); err != nil {
		return err
	}

	png, err := diagram.RenderImage(ctx, model, diagram.ImagePNG)
	if err != nil {
		fmt.Fprintf(os.Stderr, "image render skipped: %v\n", err)
		return nil
	}
	if err := write("diagram.png", png); err != nil {
		return err
	}
	fmt.Printf("=== PNG written (%d bytes) ===\n", len(png))
	return nil
}
