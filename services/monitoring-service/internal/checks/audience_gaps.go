package checks

import (
	"context"
	"fmt"

	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

const IDAudienceGaps = "audience_gaps"

// AudienceGaps flags campaigns spending without any audience signal attached.
type AudienceGaps struct{}

func NewAudienceGaps() *AudienceGaps {
	return &AudienceGaps{}
}

func (c *AudienceGaps) ID() string   { return IDAudienceGaps }
func (c *AudienceGaps) Name() string { return "Audience gaps" }
func (c *AudienceGaps) Description() string {
	return "Campaigns spending without audience lists, interests or remarketing signals"
}
func (c *AudienceGaps) Channels() []models.Channel {
	return []models.Channel{models.ChannelMetaAds, models.ChannelGoogleAds}
}

func (c *AudienceGaps) Run(ctx context.Context, src Sources, target Target) (*models.CheckResult, error) {
	lookback := int(threshold(target, c.ID(), "lookback_days", 7))
	floor := threshold(target, c.ID(), "spend_floor", 50)
	criticalShare := threshold(target, c.ID(), "critical_share", 0.5)

	rows, err := src.Metrics.GetMetrics(ctx, target.Ref(), models.EntityTypeCampaign,
		models.LastDays(target.Now, target.Location(), lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign metrics: %w", err)
	}
	if len(rows) == 0 {
		return models.NoData(), nil
	}

	details := &models.AudienceGapsDetails{
		AccountID:    target.AccountID(),
		LookbackDays: lookback,
		SpendFloor:   floor,
		Campaigns:    []models.CampaignSpend{},
	}

	var total, affected float64
	for _, campaign := range totalsByEntity(rows) {
		total += campaign.Spend
		if campaign.Spend > floor && campaign.AudienceSignals == 0 {
			affected += campaign.Spend
			details.Campaigns = append(details.Campaigns, models.CampaignSpend{EntityRef: campaign.ref(), Spend: campaign.Spend})
		}
	}
	if total == 0 {
		return models.NoData(), nil
	}
	details.AffectedShare = affected / total

	wrapped := models.AlertDetails{Kind: models.DetailKindAudienceGaps, AudienceGaps: details}
	if len(details.Campaigns) == 0 {
		return models.OK(wrapped), nil
	}

	status := models.CheckStatusWarning
	severity := models.SeverityMedium
	if details.AffectedShare >= criticalShare {
		status = models.CheckStatusCritical
		severity = models.SeverityHigh
	}

	return problem(status, len(details.Campaigns), models.AlertData{
		Title:            fmt.Sprintf("%d campaigns without audience signals", len(details.Campaigns)),
		ShortDescription: fmt.Sprintf("%.0f%% of spend in the last %d days went to campaigns without audience targeting.", details.AffectedShare*100, lookback),
		Impact:           "Untargeted spend usually converts worse and inflates acquisition cost.",
		SuggestedActions: []string{
			"Attach customer lists or remarketing audiences to the flagged campaigns",
			"Add interest or in-market signals where lists are not available",
		},
		Severity: severity,
		Type:     models.AlertTypeFundamentalCheck,
	}, wrapped), nil
}
