package checks

import (
	"context"
	"fmt"

	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

const IDBudgetPacing = "budget_pacing"

const (
	BudgetIssueOverspend     = "overspend"
	BudgetIssueNotDelivering = "not_delivering"
)

// BudgetPacing compares yesterday's campaign spend with the daily budget.
type BudgetPacing struct{}

func NewBudgetPacing() *BudgetPacing {
	return &BudgetPacing{}
}

func (c *BudgetPacing) ID() string   { return IDBudgetPacing }
func (c *BudgetPacing) Name() string { return "Budget pacing" }
func (c *BudgetPacing) Description() string {
	return "Campaigns overspending their daily budget or not delivering at all"
}
func (c *BudgetPacing) Channels() []models.Channel {
	return []models.Channel{models.ChannelMetaAds, models.ChannelGoogleAds}
}

func (c *BudgetPacing) Run(ctx context.Context, src Sources, target Target) (*models.CheckResult, error) {
	warnRatio := threshold(target, c.ID(), "overspend_warning", 1.2)
	critRatio := threshold(target, c.ID(), "overspend_critical", 1.5)

	day := models.LastDays(target.Now, target.Location(), 1)
	rows, err := src.Metrics.GetMetrics(ctx, target.Ref(), models.EntityTypeCampaign, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign metrics: %w", err)
	}
	if len(rows) == 0 {
		return models.NoData(), nil
	}

	details := &models.BudgetPacingDetails{
		AccountID: target.AccountID(),
		Date:      models.DayKey(day.From, target.Location()),
		Issues:    []models.BudgetIssue{},
	}
	status := models.CheckStatusOK
	budgeted := 0

	for _, campaign := range totalsByEntity(rows) {
		if campaign.LatestStatus != models.EntityStatusActive || campaign.LatestBudget <= 0 {
			continue
		}
		budgeted++

		ratio := campaign.Spend / campaign.LatestBudget
		issue := models.BudgetIssue{
			EntityRef:   campaign.ref(),
			DailyBudget: campaign.LatestBudget,
			Spend:       campaign.Spend,
			PacingRatio: ratio,
		}

		switch {
		case ratio >= critRatio:
			issue.Issue = BudgetIssueOverspend
			status = models.CheckStatusCritical
		case ratio >= warnRatio:
			issue.Issue = BudgetIssueOverspend
			status = worse(status, models.CheckStatusWarning)
		case campaign.Spend == 0 && campaign.Impressions == 0:
			issue.Issue = BudgetIssueNotDelivering
			status = worse(status, models.CheckStatusWarning)
		default:
			continue
		}
		details.Issues = append(details.Issues, issue)
	}

	if budgeted == 0 {
		return models.NoData(), nil
	}

	wrapped := models.AlertDetails{Kind: models.DetailKindBudgetPacing, BudgetPacing: details}
	if status == models.CheckStatusOK {
		return models.OK(wrapped), nil
	}

	severity := models.SeverityMedium
	if status == models.CheckStatusCritical {
		severity = models.SeverityHigh
	}

	return problem(status, len(details.Issues), models.AlertData{
		Title:            fmt.Sprintf("Budget pacing issues on %d campaigns", len(details.Issues)),
		ShortDescription: fmt.Sprintf("Campaign spend on %s deviated from the daily budget.", details.Date),
		Impact:           "Overspend burns the monthly budget early, a stalled campaign loses its delivery window.",
		SuggestedActions: []string{
			"Check bid strategy and budget caps of the flagged campaigns",
			"Confirm stalled campaigns have approved ads and a valid schedule",
		},
		Severity: severity,
		Type:     models.AlertTypeFundamentalCheck,
	}, wrapped), nil
}

func worse(a, b models.CheckStatus) models.CheckStatus {
	rank := map[models.CheckStatus]int{
		models.CheckStatusOK:       0,
		models.CheckStatusWarning:  1,
		models.CheckStatusCritical: 2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
