package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rendis/flowlens/internal/analysis"
	"github.com/rendis/flowlens/internal/logging"
	"github.com/rendis/flowlens/internal/store"
	"github.com/rendis/flowlens/internal/validation"
	"github.com/rendis/flowlens/pkg/schema"
)

// parseFailure prefixes fatal analysis errors for the user.
const parseFailure = "flow definition could not be parsed"

// app carries the resolved configuration shared by every command.
type app struct {
	getenv   func(string) string
	stdin    io.Reader
	settings string

	cfg    Config
	logger *slog.Logger

	// persistent flag values
	logLevel  string
	logFormat string
	dbPath    string
}

func newApp(getenv func(string) string) *app {
	return &app{getenv: getenv, stdin: os.Stdin}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "flowlens",
		Short: "flowlens - Salesforce Flow analyzer",
		Long: `flowlens reads a Salesforce Flow definition (metadata JSON or a Tooling API
record) and explains it: an execution-ordered trace table, a prose narrative
of its side effects, diagrams and lint findings.

Flow files may be given as paths or as "-" for stdin.`,
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	root.PersistentFlags().StringVar(&a.settings, "config", "", "settings file (default ~/.flowlens/settings.json)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text, json")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "report archive path (default ~/.flowlens/flowlens.db)")

	root.AddCommand(
		newAnalyzeCmd(a),
		newTraceCmd(a),
		newNarrateCmd(a),
		newLintCmd(a),
		newDiagramCmd(a),
		newQueryCmd(a),
		newFetchCmd(a),
		newExplainCmd(a),
		newHistoryCmd(a),
		newMCPCmd(a),
		newServeCmd(a),
		newInstallCmd(a),
		newVersionCmd(),
	)
	return root
}

// execute runs root with args until it returns or SIGINT/SIGTERM arrives.
func execute(ctx context.Context, root *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// setup resolves configuration and the logger before any command runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}
	if a.settings == "" {
		a.settings = settingsPath()
	}
	cfg, err := loadConfig(a.settings, a.getenv)
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
	a.cfg = cfg

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// analyzer builds an Analyzer with the configured rules plus extra.
func (a *app) analyzer(extra ...validation.Rule) (*analysis.Analyzer, error) {
	rules := append(append([]validation.Rule(nil), a.cfg.Rules...), extra...)
	return analysis.New(analysis.Config{Logger: a.logger, Rules: rules})
}

// openStore opens and migrates the report archive.
func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	path := a.cfg.DBPath
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	st, err := store.NewLibSQLStore("file:" + path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// readInput reads a flow payload from path, or stdin for "-".
func (a *app) readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(a.stdin)
	}
	return os.ReadFile(path)
}

// analyzeInput reads and analyzes one flow payload.
func (a *app) analyzeInput(ctx context.Context, an *analysis.Analyzer, path string) ([]byte, *analysis.Report, error) {
	raw, err := a.readInput(path)
	if err != nil {
		return nil, nil, err
	}
	r, err := an.AnalyzeJSON(ctx, raw)
	if err != nil {
		return raw, nil, wrapFatal(err)
	}
	return raw, r, nil
}

// wrapFatal marks errors that abort an analysis so main prints them verbatim.
func wrapFatal(err error) error {
	if schema.IsFatal(err) {
		return &fatalError{err: err}
	}
	return err
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return parseFailure + ": " + e.err.Error() }

func (e *fatalError) Unwrap() error { return e.err }

// errorMessage renders err for stderr.
func errorMessage(err error) string {
	var fe *fatalError
	if errors.As(err, &fe) {
		return fe.Error()
	}
	return "Error: " + err.Error()
}

// loadRules reads extra lint rules from a JSON or YAML file.
func loadRules(path string) ([]validation.Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules []validation.Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	for i, r := range rules {
		if strings.TrimSpace(r.Code) == "" || strings.TrimSpace(r.When) == "" {
			return nil, fmt.Errorf("parse rules %s: rule %d needs code and when", path, i)
		}
	}
	return rules, nil
}

// writeOutput writes data to path, or to w when path is empty.
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := w.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
