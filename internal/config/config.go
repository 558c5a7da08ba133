// Package config defines all configuration for the trading engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via ENGINE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	DryRun     bool             `mapstructure:"dry_run"`
	Store      StoreConfig      `mapstructure:"store"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// StoreConfig sets where positions and orders are persisted.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// ExchangeFeedConfig names one exchange's market-data connection.
type ExchangeFeedConfig struct {
	Exchange int    `mapstructure:"exchange"`
	URL      string `mapstructure:"url"`
}

// MarketDataConfig lists every exchange feed the engine subscribes to and
// points at the instrument universe document index.Build indexes at
// startup.
type MarketDataConfig struct {
	UniversePath string                `mapstructure:"universe_path"`
	Feeds        []ExchangeFeedConfig `mapstructure:"feeds"`
}

// ExecutionConfig selects and configures the execution backend. Mode
// "mock" runs the in-process matching engine (internal/execution.MockBackend);
// any other mode dials the HTTP fields below (internal/execution.HTTPBackend).
type ExecutionConfig struct {
	Mode string `mapstructure:"mode"`

	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	APISecret     string `mapstructure:"api_secret"`
	OrderPath     string `mapstructure:"order_path"`
	CancelPath    string `mapstructure:"cancel_path"`
	BalancesPath  string `mapstructure:"balances_path"`
	OpenOrderPath string `mapstructure:"open_order_path"`
	TradesPath    string `mapstructure:"trades_path"`

	OrderBucketCapacity float64 `mapstructure:"order_bucket_capacity"`
	OrderBucketRate     float64 `mapstructure:"order_bucket_rate"`
}

// RiskConfig sets hard limits that trigger order rejection/kill-switch,
// generalizing the teacher's per-market/global USD exposure caps to the
// per-instrument notional figures risk.Limits expects.
//
//   - MaxNotionalPerInstrument: max notional exposure in any single instrument.
//   - MaxNotionalGlobal: max notional exposure across all instruments combined.
//   - KillSwitchDropPct: fractional price move (0.05 = 5%), in either direction, within the window that fires the kill switch.
//   - KillSwitchWindowSec: time window for measuring rapid price movement.
//   - MaxDailyLoss: max combined (realized + unrealized) loss before kill switch.
//   - CooldownAfterKill: how long the kill switch stays engaged after firing.
type RiskConfig struct {
	MaxNotionalPerInstrument string        `mapstructure:"max_notional_per_instrument"`
	MaxNotionalGlobal        string        `mapstructure:"max_notional_global"`
	KillSwitchDropPct        float64       `mapstructure:"kill_switch_drop_pct"`
	KillSwitchWindowSec      int64         `mapstructure:"kill_switch_window_sec"`
	MaxDailyLoss             string        `mapstructure:"max_daily_loss"`
	CooldownAfterKill        time.Duration `mapstructure:"cooldown_after_kill"`
}

// BrokerConfig points at the broker registry document: either a local file
// or a URL, loaded once at startup via internal/broker.Registry. DefaultId
// names the broker whose CostModel.Default is wired into the mock
// execution backend's single fee schedule (see internal/execution.MockBackend.SetCostFormula).
type BrokerConfig struct {
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	DefaultId string `mapstructure:"default_id"`
}

// AuditConfig controls the audit tick broadcast/archive (internal/audit).
type AuditConfig struct {
	DBPath        string        `mapstructure:"db_path"`
	FlushSchedule string        `mapstructure:"flush_schedule"`
	Dashboard     DashboardConfig `mapstructure:"dashboard"`
	S3            S3Config      `mapstructure:"s3"`
}

// S3Config enables mirroring flushed audit segments to an S3 bucket.
type S3Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Bucket  string `mapstructure:"bucket"`
	Region  string `mapstructure:"region"`
}

// DashboardConfig controls the audit WebSocket server (cmd/engine mounts
// the audit Hub at /ws). AllowedOrigins is not read by any package.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: ENGINE_EXECUTION_API_KEY,
// ENGINE_EXECUTION_API_SECRET, ENGINE_DRY_RUN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("ENGINE_EXECUTION_API_KEY"); key != "" {
		cfg.Execution.APIKey = key
	}
	if secret := os.Getenv("ENGINE_EXECUTION_API_SECRET"); secret != "" {
		cfg.Execution.APISecret = secret
	}
	if os.Getenv("ENGINE_DRY_RUN") == "true" || os.Getenv("ENGINE_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.MarketData.UniversePath == "" {
		return fmt.Errorf("market_data.universe_path is required")
	}
	if len(c.MarketData.Feeds) == 0 {
		return fmt.Errorf("market_data.feeds must list at least one exchange")
	}
	if !c.DryRun {
		if c.Execution.BaseURL == "" {
			return fmt.Errorf("execution.base_url is required unless dry_run")
		}
		if c.Execution.APIKey == "" || c.Execution.APISecret == "" {
			return fmt.Errorf("execution.api_key/api_secret are required unless dry_run (set ENGINE_EXECUTION_API_KEY/ENGINE_EXECUTION_API_SECRET)")
		}
	}
	if c.Risk.MaxNotionalPerInstrument == "" {
		return fmt.Errorf("risk.max_notional_per_instrument is required")
	}
	if c.Risk.MaxNotionalGlobal == "" {
		return fmt.Errorf("risk.max_notional_global is required")
	}
	if c.Broker.Path == "" && c.Broker.URL == "" {
		return fmt.Errorf("broker.path or broker.url is required")
	}
	if c.Audit.DBPath == "" {
		return fmt.Errorf("audit.db_path is required")
	}
	if c.Audit.FlushSchedule == "" {
		return fmt.Errorf("audit.flush_schedule is required")
	}
	if c.Audit.S3.Enabled && c.Audit.S3.Bucket == "" {
		return fmt.Errorf("audit.s3.bucket is required when audit.s3.enabled")
	}
	return nil
}
