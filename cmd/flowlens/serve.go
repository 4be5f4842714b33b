package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/flowlens/internal/logging"
	"github.com/rendis/flowlens/internal/panel"
	"github.com/rendis/flowlens/internal/store"
	"github.com/rendis/flowlens/pkg/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	var noArchive bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve flowlens tools over MCP stdio",
		Long: `Run an MCP server on stdin/stdout exposing flow.analyze, flow.trace,
flow.narrate, flow.diagram, flow.lint and flow.history. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			an, err := a.analyzer()
			if err != nil {
				return err
			}

			var st store.Store
			if !noArchive {
				ls, err := a.openStore(ctx)
				if err != nil {
					return err
				}
				defer ls.Close()
				st = ls
			}

			srv, err := mcp.NewFlowServer(mcp.FlowServerDeps{
				Analyzer: an,
				Store:    st,
				Rules:    a.cfg.Rules,
				Logger:   a.logger,
				Version:  version,
			})
			if err != nil {
				return err
			}
			a.logger.InfoContext(ctx, "mcp server listening on stdio", "archive", !noArchive)
			return srv.Serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "disable saving and flow.history")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the report browser",
		Long: `Serve the web panel over archived reports and the JSON API
(POST /api/analyze, GET/DELETE /api/reports). SIGHUP reloads the
settings file: lint rules and log level apply without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.ListenAddr = listen
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default :4200)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	handler, err := a.panelHandler(st)
	if err != nil {
		return err
	}
	swapper := newHandlerSwapper(handler)

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           swapper,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log, db := a.logger, a.cfg.DBPath
	if err := os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		log.WarnContext(ctx, "cannot write pid file", "path", pidPath(), "error", err)
	} else {
		defer os.Remove(pidPath())
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				a.reload(ctx, st, swapper)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "panel listening", "addr", srv.Addr, "db", db)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info("shutting down panel")
	return srv.Shutdown(shutdownCtx)
}

func (a *app) panelHandler(st store.Store) (http.Handler, error) {
	an, err := a.analyzer()
	if err != nil {
		return nil, err
	}
	return panel.NewPanelServer(panel.PanelDeps{Store: st, Analyzer: an, Logger: a.logger}).Handler(), nil
}

// reload re-reads the settings file and applies what can change live.
func (a *app) reload(ctx context.Context, st store.Store, swapper *handlerSwapper) {
	next, err := loadConfig(a.settings, a.getenv)
	if err != nil {
		a.logger.ErrorContext(ctx, "reload failed", "error", err)
		return
	}
	// Flags given on the command line keep precedence.
	next.ListenAddr, next.DBPath = a.cfg.ListenAddr, a.cfg.DBPath

	d := diffConfigs(a.cfg, next)
	if len(d.RestartNeeded) > 0 {
		a.logger.WarnContext(ctx, "settings changed that need a restart", "fields", d.RestartNeeded)
	}
	if d.LogLevelChanged {
		logger, err := logging.NewLogger(next.LogLevel, next.LogFormat, os.Stderr)
		if err != nil {
			a.logger.ErrorContext(ctx, "reload failed", "error", err)
			return
		}
		a.logger = logger
	}
	a.cfg = next

	if d.RulesChanged || d.LogLevelChanged {
		handler, err := a.panelHandler(st)
		if err != nil {
			a.logger.ErrorContext(ctx, "reload failed", "error", err)
			return
		}
		swapper.Swap(handler)
	}
	a.logger.InfoContext(ctx, "settings reloaded", "rules", len(next.Rules), "path", a.settings)
}

// signalRunningServer sends SIGHUP to a running panel (via pidfile).
// It returns the panel PID when one was signaled.
func signalRunningServer() (int, bool) {
	data, err := os.ReadFile(pidPath())
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return 0, false
	}
	return pid, true
}
