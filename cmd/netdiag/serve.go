package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/netdiag/internal/httpapi"
	apimw "github.com/hamed0406/netdiag/internal/httpapi/middleware"
	"github.com/hamed0406/netdiag/internal/probe"
	"github.com/hamed0406/netdiag/internal/repo/memory"
)

const shutdownTimeout = 10 * time.Second

var serveKeys = map[string]string{
	"addr":        "serve.addr",
	"concurrency": "concurrency",
	"deadline":    "deadline",
	"resolver":    "resolver",
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start an HTTP API that runs probe batches on demand.

  GET  /healthz         liveness
  GET  /api/kinds       supported probe kinds
  POST /api/runs        run a batch (admin key)
  GET  /api/runs        recent runs, newest first
  GET  /api/runs/{id}   one run

Keys go in "Authorization: Bearer <key>" or "X-API-Key". Only the last
serve.keep_runs runs are kept, in memory. The server runs until
interrupted (Ctrl+C) or it receives SIGTERM.

Example:
  netdiag serve -c netdiag.toml --addr :8080`,
		Args: cobra.NoArgs,
		RunE: a.serve,
	}

	f := cmd.Flags()
	f.String("addr", "127.0.0.1:8080", "listen address")
	f.IntP("concurrency", "n", 8, "probes in flight at once, per run")
	f.Duration("deadline", 30*time.Second, "default and maximum deadline per run")
	f.String("resolver", "", "DNS server (host:port) for dns_resolve")
	return cmd
}

func (a *app) serve(cmd *cobra.Command, _ []string) error {
	cfg, err := a.load(cmd, serveKeys)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// A server with no log sink configured still logs to the console.
	if cfg.Log.Dir == "" {
		cfg.Log.Console = true
	}
	logger, err := a.logger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range warnings(cfg) {
		logger.Warn("config_warning", zap.String("warning", w))
	}

	api := httpapi.NewServer(logger, memory.New(cfg.Serve.KeepRuns), probe.NewRegistry(probe.Config{Resolver: cfg.Resolver}), cfg)
	api.Notifier = newRunNotifier(cfg.Notify)
	keys := apimw.Keys{Public: cfg.Serve.APIKeys, Admin: cfg.Serve.AdminKeys}

	srv := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           api.Router(keys, cfg.Serve.AllowedOrigins, cfg.Serve.RPM, cfg.Serve.Burst),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Serve.Addr))
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown_timeout", zap.Duration("timeout", shutdownTimeout), zap.Error(err))
		return nil
	}
	logger.Info("shutdown_complete")
	return nil
}
