package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlertDetails_Validate(t *testing.T) {
	tests := []struct {
		name    string
		details AlertDetails
		wantErr bool
	}{
		{"empty", AlertDetails{}, false},
		{"custom with extra", AlertDetails{Kind: DetailKindCustom, Extra: map[string]interface{}{"note": "x"}}, false},
		{"matching payload", AlertDetails{Kind: DetailKindBudgetPacing, BudgetPacing: &BudgetPacingDetails{}}, false},
		{"missing payload", AlertDetails{Kind: DetailKindBudgetPacing}, true},
		{"wrong payload", AlertDetails{Kind: DetailKindBudgetPacing, AudienceGaps: &AudienceGapsDetails{}}, true},
		{"two payloads", AlertDetails{Kind: DetailKindFatigue, Fatigue: &FatigueDetails{}, SpendAnomaly: &SpendAnomalyDetails{}}, true},
		{"custom with payload", AlertDetails{Kind: DetailKindCustom, Fatigue: &FatigueDetails{}}, true},
		{"unknown kind", AlertDetails{Kind: "mystery"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.details.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClientMonitoringConfig_ValidationErrors(t *testing.T) {
	cfg := ClientMonitoringConfig{
		ClientID: "c1",
		Timezone: "Mars/Olympus",
		Accounts: []PlatformAccount{
			{Channel: ChannelMetaAds, AccountID: "act_1", CredentialsRef: "ref", Enabled: true},
			{Channel: ChannelGoogleAds, Enabled: true},
			{Channel: ChannelGoogleAds, Enabled: false},
		},
		Website: &WebsiteConfig{},
	}

	problems := cfg.ValidationErrors()

	assert.Len(t, problems, 4)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Len(t, cfg.EnabledAccounts(), 2)
}

func TestClientMonitoringConfig_Threshold(t *testing.T) {
	cfg := ClientMonitoringConfig{Thresholds: map[string]float64{"budget_pacing.overspend_warning": 1.1}}

	assert.Equal(t, 1.1, cfg.Threshold("budget_pacing.overspend_warning", 1.2))
	assert.Equal(t, 1.5, cfg.Threshold("budget_pacing.overspend_critical", 1.5))
}

func TestLastDaysAndDayKey(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 02:00 UTC is still the previous evening in New York.
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)

	r := LastDays(now, loc, 3)

	assert.Equal(t, "2026-03-06", DayKey(r.From, loc))
	assert.Equal(t, "2026-03-08", DayKey(r.To, loc))
	assert.Equal(t, 3, r.Days())
	assert.True(t, r.Contains(r.To.Add(13*time.Hour)))
	assert.False(t, r.Contains(r.End()))
	assert.Equal(t, "2026-03-09", DayKey(now, loc))
}

func TestSeverityAndStatus(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.True(t, AlertStatusAcknowledged.Active())
	assert.False(t, AlertStatusResolved.Active())
	assert.True(t, FatigueSignal{Severity: SeverityHigh}.Promotable())
	assert.False(t, FatigueSignal{Severity: SeverityMedium}.Promotable())
}
