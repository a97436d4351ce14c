package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/grigta/adpulse/services/monitoring-service/internal/service"
)

const envPrefix = "MONITORING"

const (
	AlertStoreMongo    = "mongo"
	AlertStorePostgres = "postgres"
	AlertStoreMemory   = "memory"
)

// Config is the monitoring service tuning. Infrastructure endpoints come
// from pkg/config.
type Config struct {
	Schedule     ScheduleConfig        `yaml:"schedule" envconfig:"SCHEDULE"`
	Orchestrator OrchestratorConfig    `yaml:"orchestrator" envconfig:"ORCHESTRATOR"`
	Fatigue      service.FatigueConfig `yaml:"fatigue" envconfig:"FATIGUE"`
	Alerts       AlertsConfig          `yaml:"alerts" envconfig:"ALERTS"`
	Sync         SyncConfig            `yaml:"sync" envconfig:"SYNC"`
	Probe        ProbeConfig           `yaml:"probe" envconfig:"PROBE"`
	Telegram     TelegramConfig        `yaml:"telegram" envconfig:"TELEGRAM"`
	Store        StoreConfig           `yaml:"store" envconfig:"STORE"`
}

type ScheduleConfig struct {
	Enabled  bool          `yaml:"enabled" envconfig:"ENABLED"`
	Interval time.Duration `yaml:"interval" envconfig:"INTERVAL"`
}

type OrchestratorConfig struct {
	Concurrency   int           `yaml:"concurrency" envconfig:"CONCURRENCY"`
	ClientTimeout time.Duration `yaml:"client_timeout" envconfig:"CLIENT_TIMEOUT"`
	LockTTL       time.Duration `yaml:"lock_ttl" envconfig:"LOCK_TTL"`
}

type AlertsConfig struct {
	PreviewLimit int           `yaml:"preview_limit" envconfig:"PREVIEW_LIMIT"`
	SummaryTTL   time.Duration `yaml:"summary_ttl" envconfig:"SUMMARY_TTL"`
}

// SyncConfig points at the platform sync service. An empty BaseURL disables
// refreshing and checks read whatever rows are already stored.
type SyncConfig struct {
	BaseURL      string        `yaml:"base_url" envconfig:"BASE_URL"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	Timeout      time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	MaxRetries   uint64        `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	LookbackDays int           `yaml:"lookback_days" envconfig:"LOOKBACK_DAYS"`
}

type ProbeConfig struct {
	Enabled     bool          `yaml:"enabled" envconfig:"ENABLED"`
	Headless    bool          `yaml:"headless" envconfig:"HEADLESS"`
	MaxPages    int           `yaml:"max_pages" envconfig:"MAX_PAGES"`
	PageTimeout time.Duration `yaml:"page_timeout" envconfig:"PAGE_TIMEOUT"`
	UserAgent   string        `yaml:"user_agent" envconfig:"USER_AGENT"`
}

// TelegramConfig enables critical alert notifications. The bot token is
// shared infrastructure and read from pkg/config.
type TelegramConfig struct {
	Enabled       bool  `yaml:"enabled" envconfig:"ENABLED"`
	DefaultChatID int64 `yaml:"default_chat_id" envconfig:"DEFAULT_CHAT_ID"`
}

type StoreConfig struct {
	Alerts string `yaml:"alerts" envconfig:"ALERTS"`
}

func Default() *Config {
	return &Config{
		Schedule: ScheduleConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
		Orchestrator: OrchestratorConfig{
			Concurrency:   4,
			ClientTimeout: 2 * time.Minute,
		},
		Fatigue: service.DefaultFatigueConfig(),
		Alerts: AlertsConfig{
			PreviewLimit: 5,
			SummaryTTL:   time.Minute,
		},
		Sync: SyncConfig{
			Timeout:      30 * time.Second,
			MaxRetries:   3,
			LookbackDays: 30,
		},
		Probe: ProbeConfig{
			Headless:    true,
			MaxPages:    2,
			PageTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Alerts: AlertStoreMongo,
		},
	}
}

// Load applies defaults, then the YAML file at path, then MONITORING_*
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config: %w", err)
			}
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Schedule.Enabled && c.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be positive")
	}
	if c.Orchestrator.Concurrency <= 0 {
		return fmt.Errorf("orchestrator.concurrency must be positive")
	}
	if c.Orchestrator.ClientTimeout <= 0 {
		return fmt.Errorf("orchestrator.client_timeout must be positive")
	}
	f := c.Fatigue
	if f.RecentDays <= 0 || f.BaselineDays <= 0 {
		return fmt.Errorf("fatigue windows must be positive")
	}
	if f.MinBaselinePoints > f.BaselineDays {
		return fmt.Errorf("fatigue.min_baseline_points %d exceeds baseline_days %d", f.MinBaselinePoints, f.BaselineDays)
	}
	for name, t := range map[string]service.SignalThresholds{
		"frequency":    f.Frequency,
		"ctr_decline":  f.CTRDecline,
		"cpc_increase": f.CPCIncrease,
	} {
		if t.Moderate <= 0 || t.Strong < t.Moderate {
			return fmt.Errorf("fatigue.%s thresholds must satisfy 0 < moderate <= strong", name)
		}
	}
	for _, et := range f.EntityTypes {
		if !et.Valid() {
			return fmt.Errorf("fatigue.entity_types: unknown entity type %q", et)
		}
	}
	switch c.Store.Alerts {
	case AlertStoreMongo, AlertStorePostgres, AlertStoreMemory:
	default:
		return fmt.Errorf("store.alerts must be one of mongo, postgres, memory; got %q", c.Store.Alerts)
	}
	return nil
}
