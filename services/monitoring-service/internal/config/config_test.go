package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monitoring.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 3, cfg.Fatigue.RecentDays)
	assert.Equal(t, 14, cfg.Fatigue.BaselineDays)
	assert.Equal(t, 4, cfg.Orchestrator.Concurrency)
	assert.Equal(t, AlertStoreMongo, cfg.Store.Alerts)
}

func TestLoad_FileOverridesOnlyPresentKeys(t *testing.T) {
	path := writeConfig(t, `
orchestrator:
  concurrency: 8
fatigue:
  baseline_days: 21
  entity_types: [ad]
  frequency:
    moderate: 25
    strong: 60
store:
  alerts: postgres
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Orchestrator.Concurrency)
	assert.Equal(t, 2*time.Minute, cfg.Orchestrator.ClientTimeout)
	assert.Equal(t, 21, cfg.Fatigue.BaselineDays)
	assert.Equal(t, 3, cfg.Fatigue.RecentDays)
	assert.Equal(t, []models.EntityType{models.EntityTypeAd}, cfg.Fatigue.EntityTypes)
	assert.Equal(t, 60.0, cfg.Fatigue.Frequency.Strong)
	assert.Equal(t, 15.0, cfg.Fatigue.CTRDecline.Moderate)
	assert.Equal(t, AlertStorePostgres, cfg.Store.Alerts)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "orchestrator:\n  concurrency: 8\n")
	t.Setenv("MONITORING_ORCHESTRATOR_CONCURRENCY", "2")
	t.Setenv("MONITORING_SCHEDULE_INTERVAL", "15m")
	t.Setenv("MONITORING_SYNC_BASE_URL", "http://sync.internal")
	t.Setenv("MONITORING_TELEGRAM_DEFAULT_CHAT_ID", "-100200")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Orchestrator.Concurrency)
	assert.Equal(t, 15*time.Minute, cfg.Schedule.Interval)
	assert.Equal(t, "http://sync.internal", cfg.Sync.BaseURL)
	assert.Equal(t, int64(-100200), cfg.Telegram.DefaultChatID)
}

func TestLoad_ShippedConfigIsValid(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "monitoring.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, cfg.Orchestrator.LockTTL)
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"bad yaml":          "orchestrator: [",
		"zero concurrency":  "orchestrator:\n  concurrency: 0\n",
		"baseline too thin": "fatigue:\n  baseline_days: 5\n  min_baseline_points: 7\n",
		"inverted thresholds": `
fatigue:
  ctr_decline:
    moderate: 40
    strong: 30
`,
		"unknown entity": "fatigue:\n  entity_types: [keyword]\n",
		"unknown store":  "store:\n  alerts: sqlite\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
