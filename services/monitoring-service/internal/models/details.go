package models

import "fmt"

// DetailKind tags which payload an AlertDetails or CheckResult carries.
type DetailKind string

const (
	DetailKindNone                DetailKind = ""
	DetailKindDisapprovedAds      DetailKind = "disapproved_ads"
	DetailKindBudgetPacing        DetailKind = "budget_pacing"
	DetailKindAudienceGaps        DetailKind = "audience_gaps"
	DetailKindConversionTracking  DetailKind = "conversion_tracking"
	DetailKindSpendAnomaly        DetailKind = "spend_anomaly"
	DetailKindWebsiteAvailability DetailKind = "website_availability"
	DetailKindTrackingTags        DetailKind = "tracking_tags"
	DetailKindFatigue             DetailKind = "creative_fatigue"
	// DetailKindCustom carries only Extra, for detectors without a typed payload yet.
	DetailKindCustom DetailKind = "custom"
)

// AlertDetails is a tagged variant: Kind names the one populated payload.
// Extra holds forward compatible fields that have no typed home.
type AlertDetails struct {
	Kind                DetailKind                  `bson:"kind" json:"kind"`
	DisapprovedAds      *DisapprovedAdsDetails      `bson:"disapproved_ads,omitempty" json:"disapproved_ads,omitempty"`
	BudgetPacing        *BudgetPacingDetails        `bson:"budget_pacing,omitempty" json:"budget_pacing,omitempty"`
	AudienceGaps        *AudienceGapsDetails        `bson:"audience_gaps,omitempty" json:"audience_gaps,omitempty"`
	ConversionTracking  *ConversionTrackingDetails  `bson:"conversion_tracking,omitempty" json:"conversion_tracking,omitempty"`
	SpendAnomaly        *SpendAnomalyDetails        `bson:"spend_anomaly,omitempty" json:"spend_anomaly,omitempty"`
	WebsiteAvailability *WebsiteAvailabilityDetails `bson:"website_availability,omitempty" json:"website_availability,omitempty"`
	TrackingTags        *TrackingTagsDetails        `bson:"tracking_tags,omitempty" json:"tracking_tags,omitempty"`
	Fatigue             *FatigueDetails             `bson:"fatigue,omitempty" json:"fatigue,omitempty"`
	Extra               map[string]interface{}      `bson:"extra,omitempty" json:"extra,omitempty"`
}

// Validate checks that exactly the payload named by Kind is set.
func (d AlertDetails) Validate() error {
	set := map[DetailKind]bool{
		DetailKindDisapprovedAds:      d.DisapprovedAds != nil,
		DetailKindBudgetPacing:        d.BudgetPacing != nil,
		DetailKindAudienceGaps:        d.AudienceGaps != nil,
		DetailKindConversionTracking:  d.ConversionTracking != nil,
		DetailKindSpendAnomaly:        d.SpendAnomaly != nil,
		DetailKindWebsiteAvailability: d.WebsiteAvailability != nil,
		DetailKindTrackingTags:        d.TrackingTags != nil,
		DetailKindFatigue:             d.Fatigue != nil,
	}

	populated := 0
	for _, ok := range set {
		if ok {
			populated++
		}
	}

	switch d.Kind {
	case DetailKindNone, DetailKindCustom:
		if populated != 0 {
			return fmt.Errorf("details kind %q must not carry a typed payload", d.Kind)
		}
		return nil
	}

	has, known := set[d.Kind]
	if !known {
		return fmt.Errorf("unknown details kind %q", d.Kind)
	}
	if !has || populated != 1 {
		return fmt.Errorf("details kind %q does not match its payload", d.Kind)
	}
	return nil
}

type EntityRef struct {
	ID         string `bson:"id" json:"id"`
	Name       string `bson:"name,omitempty" json:"name,omitempty"`
	CampaignID string `bson:"campaign_id,omitempty" json:"campaign_id,omitempty"`
}

type DisapprovedAd struct {
	EntityRef   `bson:",inline"`
	RecentSpend float64 `bson:"recent_spend" json:"recent_spend"`
}

type DisapprovedAdsDetails struct {
	AccountID    string          `bson:"account_id" json:"account_id"`
	LookbackDays int             `bson:"lookback_days" json:"lookback_days"`
	Ads          []DisapprovedAd `bson:"ads" json:"ads"`
	SpendingAds  int             `bson:"spending_ads" json:"spending_ads"`
}

type BudgetIssue struct {
	EntityRef   `bson:",inline"`
	Issue       string  `bson:"issue" json:"issue"`
	DailyBudget float64 `bson:"daily_budget" json:"daily_budget"`
	Spend       float64 `bson:"spend" json:"spend"`
	PacingRatio float64 `bson:"pacing_ratio" json:"pacing_ratio"`
}

type BudgetPacingDetails struct {
	AccountID string        `bson:"account_id" json:"account_id"`
	Date      string        `bson:"date" json:"date"`
	Issues    []BudgetIssue `bson:"issues" json:"issues"`
}

type CampaignSpend struct {
	EntityRef `bson:",inline"`
	Spend     float64 `bson:"spend" json:"spend"`
}

type AudienceGapsDetails struct {
	AccountID     string          `bson:"account_id" json:"account_id"`
	LookbackDays  int             `bson:"lookback_days" json:"lookback_days"`
	SpendFloor    float64         `bson:"spend_floor" json:"spend_floor"`
	Campaigns     []CampaignSpend `bson:"campaigns" json:"campaigns"`
	AffectedShare float64         `bson:"affected_share" json:"affected_share"`
}

type ConversionTrackingDetails struct {
	AccountID              string  `bson:"account_id" json:"account_id"`
	RecentDays             int     `bson:"recent_days" json:"recent_days"`
	BaselineDays           int     `bson:"baseline_days" json:"baseline_days"`
	RecentClicks           int64   `bson:"recent_clicks" json:"recent_clicks"`
	RecentConversions      float64 `bson:"recent_conversions" json:"recent_conversions"`
	RecentConversionRate   float64 `bson:"recent_conversion_rate" json:"recent_conversion_rate"`
	BaselineConversionRate float64 `bson:"baseline_conversion_rate" json:"baseline_conversion_rate"`
	DropPct                float64 `bson:"drop_pct" json:"drop_pct"`
}

type SpendAnomalyDetails struct {
	AccountID string  `bson:"account_id" json:"account_id"`
	Date      string  `bson:"date" json:"date"`
	Spend     float64 `bson:"spend" json:"spend"`
	Mean      float64 `bson:"mean" json:"mean"`
	StdDev    float64 `bson:"std_dev" json:"std_dev"`
	ZScore    float64 `bson:"z_score" json:"z_score"`
	Points    int     `bson:"points" json:"points"`
	Direction string  `bson:"direction" json:"direction"`
}

type WebsiteAvailabilityDetails struct {
	URL        string `bson:"url" json:"url"`
	StatusCode int    `bson:"status_code,omitempty" json:"status_code,omitempty"`
	LoadTimeMs int64  `bson:"load_time_ms" json:"load_time_ms"`
	Error      string `bson:"error,omitempty" json:"error,omitempty"`
}

type TrackingTagsDetails struct {
	URL     string   `bson:"url" json:"url"`
	Found   []string `bson:"found" json:"found"`
	Missing []string `bson:"missing" json:"missing"`
}

// FatigueDetails is the alert payload promoted from a FatigueSignal.
type FatigueDetails struct {
	SignalID   string         `bson:"signal_id,omitempty" json:"signal_id,omitempty"`
	EntityType EntityType     `bson:"entity_type" json:"entity_type"`
	EntityID   string         `bson:"entity_id" json:"entity_id"`
	EntityName string         `bson:"entity_name,omitempty" json:"entity_name,omitempty"`
	Current    FatigueMetrics `bson:"current" json:"current"`
	Baseline   FatigueMetrics `bson:"baseline" json:"baseline"`
	Deltas     FatigueDeltas  `bson:"deltas" json:"deltas"`
	Reasons    []string       `bson:"reasons" json:"reasons"`
}
