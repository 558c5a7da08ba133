package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
dry_run: true
store:
  path: ./data/engine.db
market_data:
  universe_path: ./configs/universe.json
  feeds:
    - exchange: 0
      url: ws://localhost:9001/feed
execution:
  mode: mock
risk:
  max_notional_per_instrument: "5000"
  max_notional_global: "20000"
  max_daily_loss: "1000"
  kill_switch_drop_pct: 0.1
  kill_switch_window_sec: 60
  cooldown_after_kill: 5m
broker:
  path: ./configs/brokers.json
audit:
  db_path: ./data/audit.db
  flush_schedule: "@every 30s"
`

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, sampleYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.DryRun {
		t.Fatal("DryRun = false, want true")
	}
	if len(cfg.MarketData.Feeds) != 1 || cfg.MarketData.Feeds[0].URL != "ws://localhost:9001/feed" {
		t.Fatalf("MarketData.Feeds = %+v", cfg.MarketData.Feeds)
	}
	if cfg.Risk.MaxNotionalPerInstrument != "5000" {
		t.Fatalf("Risk.MaxNotionalPerInstrument = %q, want 5000", cfg.Risk.MaxNotionalPerInstrument)
	}
}

func TestLoadDryRunEnvOverride(t *testing.T) {
	path := writeConfig(t, `
dry_run: false
store:
  path: ./data/engine.db
market_data:
  universe_path: ./configs/universe.json
  feeds:
    - exchange: 0
      url: ws://localhost:9001/feed
risk:
  max_notional_per_instrument: "5000"
  max_notional_global: "20000"
broker:
  path: ./configs/brokers.json
audit:
  db_path: ./data/audit.db
`)
	t.Setenv("ENGINE_DRY_RUN", "1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.DryRun {
		t.Fatal("DryRun = false, want env override to force true")
	}
}

func TestValidateRequiresStorePath(t *testing.T) {
	t.Parallel()
	cfg := &Config{DryRun: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate: want error for missing store.path")
	}
}

func TestValidateRequiresExecutionCredentialsWhenNotDryRun(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		DryRun:     false,
		Store:      StoreConfig{Path: "./data/engine.db"},
		MarketData: MarketDataConfig{UniversePath: "./configs/universe.json", Feeds: []ExchangeFeedConfig{{Exchange: 0, URL: "ws://x"}}},
		Risk:       RiskConfig{MaxNotionalPerInstrument: "1", MaxNotionalGlobal: "1"},
		Broker:     BrokerConfig{Path: "./brokers.json"},
		Audit:      AuditConfig{DBPath: "./audit.db", FlushSchedule: "@every 30s"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate: want error for missing execution.base_url/api_key/api_secret")
	}
}

func TestValidatePassesForDryRunConfig(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		DryRun:     true,
		Store:      StoreConfig{Path: "./data/engine.db"},
		MarketData: MarketDataConfig{UniversePath: "./configs/universe.json", Feeds: []ExchangeFeedConfig{{Exchange: 0, URL: "ws://x"}}},
		Risk:       RiskConfig{MaxNotionalPerInstrument: "1", MaxNotionalGlobal: "1"},
		Broker:     BrokerConfig{Path: "./brokers.json"},
		Audit:      AuditConfig{DBPath: "./audit.db", FlushSchedule: "@every 30s"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRequiresS3BucketWhenS3Enabled(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		DryRun:     true,
		Store:      StoreConfig{Path: "./data/engine.db"},
		MarketData: MarketDataConfig{UniversePath: "./configs/universe.json", Feeds: []ExchangeFeedConfig{{Exchange: 0, URL: "ws://x"}}},
		Risk:       RiskConfig{MaxNotionalPerInstrument: "1", MaxNotionalGlobal: "1"},
		Broker:     BrokerConfig{Path: "./brokers.json"},
		Audit:      AuditConfig{DBPath: "./audit.db", FlushSchedule: "@every 30s", S3: S3Config{Enabled: true}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate: want error for s3.enabled with no bucket")
	}
}
