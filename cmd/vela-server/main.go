package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vela/internal/api"
	"vela/internal/backtest"
	"vela/internal/config"
	"vela/internal/progress"
	"vela/internal/store"
	"vela/internal/strategy"
	"vela/internal/strategy/builtins"
	"vela/internal/util"
)

func main() {
	cfgPath := "config/vela.yaml"
	if p := os.Getenv("VELA_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	// Stores.
	ttl := 5 * time.Minute
	if cfg.Storage.CacheTTLSec > 0 {
		ttl = time.Duration(cfg.Storage.CacheTTLSec) * time.Second
	}
	bars := store.NewCachedBarStore(store.NewParquetStore(cfg.Storage.DataDir), ttl)

	results, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening result store: %v", err)
	}
	defer results.Close()

	// Strategies, runner, tracker.
	registry := strategy.NewRegistry()
	builtins.RegisterAll(registry)

	tracker := progress.NewTracker()
	runner := backtest.NewRunner(bars, registry, results, tracker)

	server := api.NewServer(runner, tracker, results, bars, registry, api.Defaults{
		SlippagePct:    cfg.Backtest.SlippagePct,
		CommissionFlat: cfg.Backtest.CommissionFlat,
		CommissionPct:  cfg.Backtest.CommissionPct,
		BarsPerYear:    cfg.Backtest.BarsPerYear,
		MaxGapDays:     cfg.Backtest.MaxGapDays,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		slog.Info("vela-server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
}
