package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
)

const (
	mermaidASCIIVersion = "1.1.0"
	mermaidASCIIRelease = "https://github.com/AlexanderGrooff/mermaid-ascii/releases/download/" + mermaidASCIIVersion
)

// SHA-256 checksums for mermaid-ascii v1.1.0 release assets.
var mermaidASCIIChecksums = map[string]string{
	"mermaid-ascii_Darwin_arm64.tar.gz":  "068d2ff869d4921655cab471500fffd8c3ed28155b100518ed3cf3835d53d3d0",
	"mermaid-ascii_Darwin_x86_64.tar.gz": "0cd4c9c01a03284fe866f39a1ce1aaee1e6a2fbd91deedc4ec254cb87622eec8",
	"mermaid-ascii_Linux_arm64.tar.gz":   "3b7d0a95141bfbca838e445ea802ffb7fba8873b3c4af498482c84f83526f2db",
	"mermaid-ascii_Linux_x86_64.tar.gz":  "838ea93d561b3bc83aa15531c6ed7d2d261a8edc521d5484f7e91fe831cc4c65",
}

type installOptions struct {
	listenAddr string
	instance   string
	model      string
	skipTools  bool
}

func newInstallCmd(a *app) *cobra.Command {
	var opts installOptions
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Write settings and install helper tools",
		Long: `Write ~/.flowlens/settings.json (keeping values already there, plus the
--log-level, --log-format and --db given here), download
the mermaid-ascii renderer to ~/.flowlens/bin, and ask a running panel
to reload its settings.

Secrets are never written: set FLOWLENS_SESSION_ID and OPENAI_API_KEY in
the environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, a, opts)
		},
	}
	cmd.Flags().StringVar(&opts.listenAddr, "listen-addr", "", "panel listen address")
	cmd.Flags().StringVar(&opts.instance, "instance", "", "default org host for fetch")
	cmd.Flags().StringVar(&opts.model, "model", "", "default explain model")
	cmd.Flags().BoolVar(&opts.skipTools, "skip-tools", false, "do not download mermaid-ascii")
	return cmd
}

func runInstall(cmd *cobra.Command, a *app, opts installOptions) error {
	out := cmd.OutOrStdout()

	// Start from the file alone so environment overrides are not persisted.
	cfg, err := loadConfig(a.settings, func(string) string { return "" })
	if err != nil {
		return fmt.Errorf("load %s: %w", a.settings, err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if opts.listenAddr != "" {
		cfg.ListenAddr = opts.listenAddr
	}
	if opts.instance != "" {
		cfg.Instance = opts.instance
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}

	if err := writeSettings(a.settings, cfg); err != nil {
		return fmt.Errorf("cannot write %s: %w", a.settings, err)
	}
	fmt.Fprintf(out, "Settings written to %s\n", a.settings)

	if !opts.skipTools {
		client := &http.Client{Timeout: 60 * time.Second}
		if err := installMermaidASCII(cmd.Context(), client, binDir(), out); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v; ASCII diagrams will use the built-in renderer\n", err)
		}
	}

	if pid, ok := signalRunningServer(); ok {
		fmt.Fprintf(out, "Signaled running panel (PID %d) to reload settings\n", pid)
	}
	return nil
}

// installMermaidASCII downloads the mermaid-ascii binary to dir and verifies
// it against the pinned checksums, or the release checksums file for
// platforms not pinned here.
func installMermaidASCII(ctx context.Context, client httpDoer, dir string, out io.Writer) error {
	destPath := filepath.Join(dir, "mermaid-ascii")
	if _, err := os.Stat(destPath); err == nil {
		fmt.Fprintf(out, "mermaid-ascii already installed at %s\n", destPath)
		return nil
	}

	assetName, err := mermaidASCIIAssetName(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}

	expected, ok := mermaidASCIIChecksums[assetName]
	if !ok {
		sums, err := fetchChecksums(ctx, client, mermaidASCIIRelease+"/checksums.txt")
		if err != nil {
			return fmt.Errorf("no checksum for %s: %w", assetName, err)
		}
		if expected, ok = sums[assetName]; !ok {
			return fmt.Errorf("no checksum for %s", assetName)
		}
	}

	fmt.Fprintf(out, "Downloading mermaid-ascii %s...\n", mermaidASCIIVersion)
	tmpPath, err := downloadToTempFile(ctx, client, mermaidASCIIRelease+"/"+assetName, dir)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer os.Remove(tmpPath)

	actual, err := sha256File(tmpPath)
	if err != nil {
		return fmt.Errorf("cannot compute checksum: %w", err)
	}
	if actual != expected {
		return fmt.Errorf("checksum mismatch for %s (expected %s, got %s)", assetName, expected, actual)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := extractTarGz(f, dir, "mermaid-ascii"); err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("extraction failed: %w", err)
	}

	fmt.Fprintf(out, "mermaid-ascii installed to %s\n", destPath)
	return nil
}

// mermaidASCIIAssetName returns the release asset name for a platform.
func mermaidASCIIAssetName(goos, goarch string) (string, error) {
	var osName string
	switch goos {
	case "darwin":
		osName = "Darwin"
	case "linux":
		osName = "Linux"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported OS %q", goos)
	}

	var archName string
	switch goarch {
	case "amd64":
		archName = "x86_64"
	case "arm64":
		archName = "arm64"
	case "386":
		archName = "i386"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported architecture %q", goarch)
	}
	return fmt.Sprintf("mermaid-ascii_%s_%s.tar.gz", osName, archName), nil
}

// extractTarGz extracts the regular file named targetName from a tar.gz
// archive into destDir.
func extractTarGz(r io.Reader, destDir, targetName string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("file %q not found in archive", targetName)
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}
		// The archive may nest the binary under a directory.
		if filepath.Base(hdr.Name) != targetName || hdr.Typeflag != tar.TypeReg {
			continue
		}

		destPath := filepath.Join(destDir, targetName)
		f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return fmt.Errorf("create %s: %w", destPath, err)
		}
		if _, err := io.Copy(f, tr); err != nil { //nolint:gosec // bounded by tar header size
			f.Close()
			return fmt.Errorf("write %s: %w", destPath, err)
		}
		return f.Close()
	}
}

