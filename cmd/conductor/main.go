// Command conductor runs the coding-agent session orchestrator daemon: it
// serves the action surface over HTTP and exposes Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"conductor/pkg/actions"
	"conductor/pkg/adapter"
	"conductor/pkg/config"
	"conductor/pkg/execx"
	"conductor/pkg/gitx"
	"conductor/pkg/logx"
	"conductor/pkg/metrics"
	"conductor/pkg/selection"
	"conductor/pkg/session"
	"conductor/pkg/version"
	"conductor/pkg/workspace"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "conductor: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logx.NewLogger("conductor")
	exec := execx.NewLocal()

	// Metrics: optional SQLite persistence, always mirrored into Prometheus.
	var base metrics.Store
	var sqliteStore *metrics.SQLite
	if cfg.Metrics.SQLitePath != "" {
		sqliteStore, err = metrics.OpenSQLite(cfg.Metrics.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open metrics store: %w", err)
		}
		base = sqliteStore
	} else {
		base = metrics.NewMemory()
	}
	store := metrics.NewPromMirror(base, prometheus.DefaultRegisterer)

	preflight := adapter.NewPreflight(exec)
	selector := selection.NewSelector(cfg.Selection, store)
	git := gitx.NewRunner(exec)
	workspaces := workspace.NewService(cfg.Workspace.Root, git, workspace.DefaultPRClientFactory(exec))
	sessions := session.NewManager(cfg.Session, selector, preflight, workspaces, store, session.NewPtyLauncher())
	dispatcher := actions.NewDispatcher(sessions, workspaces)

	if term.IsTerminal(int(os.Stdout.Fd())) {
		printBanner(cfg, preflight)
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newActionServer(dispatcher).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving actions on http://%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("Received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown: %v", err)
	}

	if stopped := sessions.StopAll(); len(stopped) > 0 {
		logger.Info("Stopped %d live sessions", len(stopped))
	}
	if sqliteStore != nil {
		if err := sqliteStore.Close(); err != nil {
			logger.Warn("Metrics store close: %v", err)
		}
	}
	return nil
}

// printBanner shows adapter availability when stdout is a terminal, so an
// operator sees at a glance what the host can run.
func printBanner(cfg config.Config, preflight *adapter.Preflight) {
	ctx, cancel := context.WithTimeout(context.Background(), adapter.DefaultProbeTimeout)
	defer cancel()

	fmt.Printf("conductor %s (%s)\n", version.Version, version.Commit)
	fmt.Printf("  actions:    http://%s/actions/<NAME>\n", cfg.Server.Addr)
	fmt.Printf("  metrics:    http://%s/metrics\n", cfg.Server.Addr)
	fmt.Printf("  workspaces: %s\n", cfg.Workspace.Root)
	fmt.Printf("  adapters:\n")
	for _, r := range preflight.ListInstalled(ctx) {
		mark := "✗"
		detail := r.InstallCommand
		if r.Installed {
			mark = "✓"
			detail = r.Version
		}
		fmt.Printf("    %s %-8s %s\n", mark, r.Type, detail)
	}
}
