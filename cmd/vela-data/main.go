package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vela/internal/config"
	"vela/internal/gather"
	"vela/internal/store"
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

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/vela-data-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	util.SetDefault(util.NewLoggerTo(w, cfg.Logging.Level, "text"))

	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	gatherer := gather.NewDailyBarGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		cfg.Alpaca.BaseURL,
		pstore,
		cfg.Gather.Symbols,
		200,
		cfg.Gather.MaxWorkers,
		cfg.Gather.RateLimitPerMin,
		cfg.Gather.StartDate,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting vela-data", "logFile", logFileName, "symbols", len(cfg.Gather.Symbols))
	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("gatherer error: %v", err)
	}
}
