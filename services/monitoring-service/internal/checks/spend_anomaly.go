package checks

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

const IDSpendAnomaly = "spend_anomaly"

// SpendAnomaly scores yesterday's account spend against the trailing days.
type SpendAnomaly struct{}

func NewSpendAnomaly() *SpendAnomaly {
	return &SpendAnomaly{}
}

func (c *SpendAnomaly) ID() string   { return IDSpendAnomaly }
func (c *SpendAnomaly) Name() string { return "Spend anomaly" }
func (c *SpendAnomaly) Description() string {
	return "Daily account spend far outside its recent range"
}
func (c *SpendAnomaly) Channels() []models.Channel {
	return []models.Channel{models.ChannelMetaAds, models.ChannelGoogleAds}
}

func (c *SpendAnomaly) Run(ctx context.Context, src Sources, target Target) (*models.CheckResult, error) {
	window := int(threshold(target, c.ID(), "window_days", 28))
	minPoints := int(threshold(target, c.ID(), "min_points", 7))
	warnZ := threshold(target, c.ID(), "z_warning", 3)
	critZ := threshold(target, c.ID(), "z_critical", 5)

	loc := target.Location()
	yesterday := models.LastDays(target.Now, loc, 1)
	rows, err := src.Metrics.GetMetrics(ctx, target.Ref(), models.EntityTypeCampaign,
		models.LastDays(target.Now, loc, window+1))
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign metrics: %w", err)
	}

	byDay := dailySpend(rows, loc)
	dayKey := models.DayKey(yesterday.From, loc)
	spend, ok := byDay[dayKey]
	if !ok {
		return models.NoData(), nil
	}
	delete(byDay, dayKey)
	if len(byDay) < minPoints {
		return models.NoData(), nil
	}

	history := make([]float64, 0, len(byDay))
	for _, v := range byDay {
		history = append(history, v)
	}
	mean, std := stat.MeanStdDev(history, nil)

	// Flat history would make every change infinite; floor the deviation at 5% of the mean.
	effective := math.Max(std, mean*0.05)
	z := 0.0
	if effective > 0 {
		z = (spend - mean) / effective
	}

	direction := "spike"
	if z < 0 {
		direction = "drop"
	}
	details := &models.SpendAnomalyDetails{
		AccountID: target.AccountID(),
		Date:      dayKey,
		Spend:     spend,
		Mean:      mean,
		StdDev:    std,
		ZScore:    z,
		Points:    len(history),
		Direction: direction,
	}
	wrapped := models.AlertDetails{Kind: models.DetailKindSpendAnomaly, SpendAnomaly: details}

	abs := math.Abs(z)
	if abs < warnZ {
		return models.OK(wrapped), nil
	}

	status := models.CheckStatusWarning
	severity := models.SeverityMedium
	if abs >= critZ {
		status = models.CheckStatusCritical
		severity = models.SeverityHigh
	}

	return problem(status, 1, models.AlertData{
		Title:            fmt.Sprintf("Unusual spend %s", direction),
		ShortDescription: fmt.Sprintf("Spend on %s was %.2f against a %d-day average of %.2f (z=%.1f).", dayKey, spend, len(history), mean, z),
		Impact:           "Unexpected spend changes point at budget edits, bidding problems or delivery outages.",
		SuggestedActions: []string{
			"Review the account change history for the day",
			"Compare campaign level spend to find the source",
		},
		Severity: severity,
		Type:     models.AlertTypePerformance,
	}, wrapped), nil
}
