package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EntityType string

const (
	EntityTypeAd       EntityType = "ad"
	EntityTypeAdSet    EntityType = "ad_set"
	EntityTypeCampaign EntityType = "campaign"
)

func (t EntityType) Valid() bool {
	return t == EntityTypeAd || t == EntityTypeAdSet || t == EntityTypeCampaign
}

type FatigueMetrics struct {
	CTR         float64 `bson:"ctr" json:"ctr"`
	CPC         float64 `bson:"cpc" json:"cpc"`
	Frequency   float64 `bson:"frequency" json:"frequency"`
	Impressions int64   `bson:"impressions" json:"impressions"`
	Clicks      int64   `bson:"clicks" json:"clicks"`
	Spend       float64 `bson:"spend" json:"spend"`
}

// FatigueDeltas are percentage changes of current against baseline.
// CTRChange is negative when CTR declines.
type FatigueDeltas struct {
	FrequencyChange float64 `bson:"frequency_change" json:"frequency_change"`
	CTRChange       float64 `bson:"ctr_change" json:"ctr_change"`
	CPCChange       float64 `bson:"cpc_change" json:"cpc_change"`
	CTRZScore       float64 `bson:"ctr_z_score" json:"ctr_z_score"`
}

// FatigueSignal is one entity's fatigue assessment for a day.
// It is stored so it can be acknowledged independently of any alert.
type FatigueSignal struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ClientID       string             `bson:"client_id" json:"client_id"`
	Channel        Channel            `bson:"channel" json:"channel"`
	AccountID      string             `bson:"account_id" json:"account_id"`
	EntityType     EntityType         `bson:"entity_type" json:"entity_type"`
	EntityID       string             `bson:"entity_id" json:"entity_id"`
	EntityName     string             `bson:"entity_name,omitempty" json:"entity_name,omitempty"`
	ParentID       string             `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	Day            string             `bson:"day" json:"day"`
	Current        FatigueMetrics     `bson:"current" json:"current"`
	Baseline       FatigueMetrics     `bson:"baseline" json:"baseline"`
	Deltas         FatigueDeltas      `bson:"deltas" json:"deltas"`
	BaselinePoints int                `bson:"baseline_points" json:"baseline_points"`
	Severity       Severity           `bson:"severity" json:"severity"`
	Reasons        []string           `bson:"reasons" json:"reasons"`
	Actions        []string           `bson:"suggested_actions" json:"suggested_actions"`
	Acknowledged   bool               `bson:"acknowledged" json:"acknowledged"`
	AcknowledgedBy string             `bson:"acknowledged_by,omitempty" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time         `bson:"acknowledged_at,omitempty" json:"acknowledged_at,omitempty"`
	DetectedAt     time.Time          `bson:"detected_at" json:"detected_at"`
}

// Promotable reports whether the signal is severe enough to become an alert.
func (s FatigueSignal) Promotable() bool {
	return s.Severity.Rank() >= SeverityHigh.Rank()
}

type SignalFilter struct {
	Channel      Channel
	MinSeverity  Severity
	Day          string
	IncludeAcked bool
	Limit        int
	Offset       int
}
