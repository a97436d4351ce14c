package checks

import (
	"context"
	"fmt"

	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

const IDConversionTracking = "conversion_tracking"

// ConversionTracking detects conversions collapsing while clicks keep coming,
// which usually means the tracking broke rather than the traffic.
type ConversionTracking struct{}

func NewConversionTracking() *ConversionTracking {
	return &ConversionTracking{}
}

func (c *ConversionTracking) ID() string   { return IDConversionTracking }
func (c *ConversionTracking) Name() string { return "Conversion tracking" }
func (c *ConversionTracking) Description() string {
	return "Conversions stopped or dropped sharply while clicks continued"
}
func (c *ConversionTracking) Channels() []models.Channel {
	return []models.Channel{models.ChannelMetaAds, models.ChannelGoogleAds}
}

func (c *ConversionTracking) Run(ctx context.Context, src Sources, target Target) (*models.CheckResult, error) {
	recentDays := int(threshold(target, c.ID(), "recent_days", 3))
	baselineDays := int(threshold(target, c.ID(), "baseline_days", 14))
	minClicks := int64(threshold(target, c.ID(), "min_clicks", 100))
	dropWarning := threshold(target, c.ID(), "drop_pct", 70)

	loc := target.Location()
	all := models.LastDays(target.Now, loc, recentDays+baselineDays)
	recent := models.LastDays(target.Now, loc, recentDays)

	rows, err := src.Metrics.GetMetrics(ctx, target.Ref(), models.EntityTypeCampaign, all)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign metrics: %w", err)
	}

	recentRows, baselineRows := splitByRange(rows, recent)
	recentClicks, recentConv := sumClicksConversions(recentRows)
	baseClicks, baseConv := sumClicksConversions(baselineRows)

	// Without clicks now or conversions before there is nothing to compare.
	if recentClicks < minClicks || baseClicks == 0 || baseConv == 0 {
		return models.NoData(), nil
	}

	details := &models.ConversionTrackingDetails{
		AccountID:              target.AccountID(),
		RecentDays:             recentDays,
		BaselineDays:           baselineDays,
		RecentClicks:           recentClicks,
		RecentConversions:      recentConv,
		RecentConversionRate:   recentConv / float64(recentClicks),
		BaselineConversionRate: baseConv / float64(baseClicks),
	}
	details.DropPct = (details.BaselineConversionRate - details.RecentConversionRate) / details.BaselineConversionRate * 100

	wrapped := models.AlertDetails{Kind: models.DetailKindConversionTracking, ConversionTracking: details}

	switch {
	case recentConv == 0:
		return problem(models.CheckStatusCritical, 1, models.AlertData{
			Title:            "Conversions stopped",
			ShortDescription: fmt.Sprintf("No conversions recorded in the last %d days despite %d clicks.", recentDays, recentClicks),
			Impact:           "Bidding algorithms optimise blind and reported ROAS is wrong.",
			SuggestedActions: []string{
				"Verify the conversion pixel or tag fires on the thank-you page",
				"Check recent site releases for removed tracking code",
				"Confirm the conversion action is still enabled in the ad account",
			},
			Severity: models.SeverityCritical,
			Type:     models.AlertTypeFundamentalCheck,
		}, wrapped), nil
	case details.DropPct >= dropWarning:
		return problem(models.CheckStatusWarning, 1, models.AlertData{
			Title:            "Conversion rate collapsed",
			ShortDescription: fmt.Sprintf("Conversion rate fell %.0f%% against the previous %d days.", details.DropPct, baselineDays),
			Impact:           "Either tracking is partially broken or the funnel stopped converting.",
			SuggestedActions: []string{
				"Compare platform conversions with analytics for the same period",
				"Test the checkout or lead form end to end",
			},
			Severity: models.SeverityHigh,
			Type:     models.AlertTypeFundamentalCheck,
		}, wrapped), nil
	}

	return models.OK(wrapped), nil
}
