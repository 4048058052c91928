package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/list-builder/internal/api"
	"github.com/ignite/list-builder/internal/cache"
	"github.com/ignite/list-builder/internal/config"
	"github.com/ignite/list-builder/internal/llm"
	"github.com/ignite/list-builder/internal/mailinglist"
	"github.com/ignite/list-builder/internal/metabase"
	"github.com/ignite/list-builder/internal/metrics"
	"github.com/ignite/list-builder/internal/pkg/distlock"
	"github.com/ignite/list-builder/internal/pkg/logger"
)

// checkPortAvailable fails fast when a stale process still holds the port.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s is already in use: %w", addr, err)
	}
	return ln.Close()
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Redact())

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	if err := checkPortAvailable(addr); err != nil {
		logger.Error("Pre-flight check failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	metrics.SetGlobal(m)

	client := metabase.NewClient(cfg.Metabase, nil)
	if !cfg.Metabase.IsConfigured() {
		logger.Warn("Metabase credentials missing, data endpoints will answer 503")
	}

	deps := api.Deps{Catalog: client, Metrics: m}
	rdb := cache.Connect(ctx, cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
		deps.Cache = cache.NewMetadataCache(rdb, cfg.Redis.MetadataTTL())
		client.WithCache(deps.Cache)
	}

	completer, err := llm.New(ctx, cfg.LLM)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		logger.Warn("No LLM provider configured, AI segment suggestions disabled", "provider", cfg.LLM.Provider)
	case err != nil:
		logger.Warn("LLM provider init failed, AI segment suggestions disabled", "provider", cfg.LLM.Provider, "error", err)
	default:
		deps.Suggester = llm.NewSuggester(completer)
		logger.Info("LLM provider ready", "provider", completer.Provider())
	}

	// Without Redis the campaign lock only covers this process.
	deps.Lists = mailinglist.NewService(client, cfg.Export, cfg.Suppression).
		WithLocks(distlock.NewFactory(rdb, 30*time.Minute))
	server := api.NewServer(cfg, deps)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Starting server",
			"addr", addr,
			"history_table_id", cfg.Suppression.HistoryTableID,
			"lookback_days", cfg.Suppression.LookbackDays)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
