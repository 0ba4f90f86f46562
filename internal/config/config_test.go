package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Create a temporary YAML config file.
	yamlContent := []byte(`
storage:
  data_dir: "/tmp/vela/data"
  sqlite_path: "/tmp/vela/vela.db"
  cache_ttl_sec: 300
server:
  host: "0.0.0.0"
  port: 8080
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  base_url: "https://paper-api.alpaca.markets"
  data_url: "https://data.alpaca.markets"
logging:
  level: "info"
  format: "json"
gather:
  symbols: ["AAPL", "MSFT", "SPY"]
  start_date: "2020-01-01"
  max_workers: 4
  rate_limit_per_min: 200
backtest:
  slippage_pct: 0.0005
  commission_flat: 1.0
  commission_pct: 0.0001
  bars_per_year: 252
  max_gap_days: 30
`)

	tmpFile, err := os.CreateTemp("", "vela-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}

	// Clear any environment overrides that might interfere.
	os.Unsetenv("ALPACA_API_KEY")
	os.Unsetenv("ALPACA_API_SECRET")
	os.Unsetenv("APCA_API_KEY_ID")
	os.Unsetenv("APCA_API_SECRET_KEY")
	os.Unsetenv("DATA_DIR")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/vela/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/vela/data")
	}
	if cfg.Storage.SQLitePath != "/tmp/vela/vela.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/vela/vela.db")
	}
	if cfg.Storage.CacheTTLSec != 300 {
		t.Errorf("Storage.CacheTTLSec = %d, want %d", cfg.Storage.CacheTTLSec, 300)
	}

	// -- Server --
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Alpaca.APISecret != "test-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q", cfg.Alpaca.APISecret, "test-secret")
	}
	if cfg.Alpaca.DataURL != "https://data.alpaca.markets" {
		t.Errorf("Alpaca.DataURL = %q, want %q", cfg.Alpaca.DataURL, "https://data.alpaca.markets")
	}

	// -- Logging --
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}

	// -- Gather --
	if len(cfg.Gather.Symbols) != 3 || cfg.Gather.Symbols[2] != "SPY" {
		t.Errorf("Gather.Symbols = %v, want [AAPL MSFT SPY]", cfg.Gather.Symbols)
	}
	if cfg.Gather.StartDate != "2020-01-01" {
		t.Errorf("Gather.StartDate = %q, want %q", cfg.Gather.StartDate, "2020-01-01")
	}
	if cfg.Gather.MaxWorkers != 4 {
		t.Errorf("Gather.MaxWorkers = %d, want %d", cfg.Gather.MaxWorkers, 4)
	}
	if cfg.Gather.RateLimitPerMin != 200 {
		t.Errorf("Gather.RateLimitPerMin = %d, want %d", cfg.Gather.RateLimitPerMin, 200)
	}

	// -- Backtest --
	if cfg.Backtest.SlippagePct != 0.0005 {
		t.Errorf("Backtest.SlippagePct = %f, want %f", cfg.Backtest.SlippagePct, 0.0005)
	}
	if cfg.Backtest.CommissionFlat != 1.0 {
		t.Errorf("Backtest.CommissionFlat = %f, want %f", cfg.Backtest.CommissionFlat, 1.0)
	}
	if cfg.Backtest.BarsPerYear != 252 {
		t.Errorf("Backtest.BarsPerYear = %d, want %d", cfg.Backtest.BarsPerYear, 252)
	}
	if cfg.Backtest.MaxGapDays != 30 {
		t.Errorf("Backtest.MaxGapDays = %d, want %d", cfg.Backtest.MaxGapDays, 30)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	yamlContent := []byte(`
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	tmpFile, err := os.CreateTemp("", "vela-config-env-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	tmpFile.Close()

	// Set environment overrides.
	os.Setenv("ALPACA_API_KEY", "env-key")
	os.Setenv("DATA_DIR", "/env/data")
	os.Unsetenv("APCA_API_KEY_ID")
	os.Unsetenv("APCA_API_SECRET_KEY")
	defer os.Unsetenv("ALPACA_API_KEY")
	defer os.Unsetenv("DATA_DIR")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/vela.yaml"); err == nil {
		t.Error("Load() on missing file returned nil error")
	}
}
