package checks

import (
	"context"
	"fmt"

	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

const IDDisapprovedAds = "disapproved_ads"

// DisapprovedAds finds ads whose most recent status is disapproved.
// Disapproved ads that still spent in the lookback window are critical.
type DisapprovedAds struct{}

func NewDisapprovedAds() *DisapprovedAds {
	return &DisapprovedAds{}
}

func (c *DisapprovedAds) ID() string   { return IDDisapprovedAds }
func (c *DisapprovedAds) Name() string { return "Disapproved ads" }
func (c *DisapprovedAds) Description() string {
	return "Ads rejected by the platform review, weighted by whether they were still spending"
}
func (c *DisapprovedAds) Channels() []models.Channel {
	return []models.Channel{models.ChannelMetaAds, models.ChannelGoogleAds}
}

func (c *DisapprovedAds) Run(ctx context.Context, src Sources, target Target) (*models.CheckResult, error) {
	lookback := int(threshold(target, c.ID(), "lookback_days", 7))
	spendFloor := threshold(target, c.ID(), "spend_floor", 0)

	rows, err := src.Metrics.GetMetrics(ctx, target.Ref(), models.EntityTypeAd,
		models.LastDays(target.Now, target.Location(), lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to load ad metrics: %w", err)
	}
	if len(rows) == 0 {
		return models.NoData(), nil
	}

	details := &models.DisapprovedAdsDetails{
		AccountID:    target.AccountID(),
		LookbackDays: lookback,
		Ads:          []models.DisapprovedAd{},
	}
	for _, ad := range totalsByEntity(rows) {
		if ad.LatestStatus != models.EntityStatusDisapproved {
			continue
		}
		details.Ads = append(details.Ads, models.DisapprovedAd{EntityRef: ad.ref(), RecentSpend: ad.Spend})
		if ad.Spend > spendFloor {
			details.SpendingAds++
		}
	}

	wrapped := models.AlertDetails{Kind: models.DetailKindDisapprovedAds, DisapprovedAds: details}
	if len(details.Ads) == 0 {
		return models.OK(wrapped), nil
	}

	status := models.CheckStatusWarning
	severity := models.SeverityMedium
	impact := "Disapproved ads are not delivering. Campaign reach may be lower than planned."
	if details.SpendingAds > 0 {
		status = models.CheckStatusCritical
		severity = models.SeverityCritical
		impact = fmt.Sprintf("%d disapproved ads spent budget in the last %d days.", details.SpendingAds, lookback)
	}

	return problem(status, len(details.Ads), models.AlertData{
		Title:            fmt.Sprintf("%d disapproved ads", len(details.Ads)),
		ShortDescription: fmt.Sprintf("Account %s has %d ads rejected by platform review.", target.AccountID(), len(details.Ads)),
		Impact:           impact,
		SuggestedActions: []string{
			"Review the rejection reasons in the ads manager",
			"Fix the creative or landing page and request a new review",
			"Pause replaced ads so they do not block the ad set",
		},
		Severity: severity,
		Type:     models.AlertTypeFundamentalCheck,
	}, wrapped), nil
}
