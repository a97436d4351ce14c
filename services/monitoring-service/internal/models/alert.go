package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Channel string

const (
	ChannelMetaAds   Channel = "meta_ads"
	ChannelGoogleAds Channel = "google_ads"
	ChannelWebsite   Channel = "website"
	ChannelTracking  Channel = "tracking"
	ChannelSEO       Channel = "seo"
	ChannelCommerce  Channel = "commerce"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelMetaAds, ChannelGoogleAds, ChannelWebsite, ChannelTracking, ChannelSEO, ChannelCommerce:
		return true
	}
	return false
}

// IsAdPlatform reports whether metrics for the channel come from an ad account.
func (c Channel) IsAdPlatform() bool {
	return c == ChannelMetaAds || c == ChannelGoogleAds
}

type AlertType string

const (
	AlertTypeFundamentalCheck AlertType = "fundamental_check"
	AlertTypeFatigue          AlertType = "fatigue"
	AlertTypePerformance      AlertType = "performance"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeFundamentalCheck, AlertTypeFatigue, AlertTypePerformance:
		return true
	}
	return false
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities, higher is worse. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

type AlertStatus string

const (
	AlertStatusOpen         AlertStatus = "open"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusOpen, AlertStatusAcknowledged, AlertStatusResolved:
		return true
	}
	return false
}

// Active reports whether an alert in this status still needs attention.
func (s AlertStatus) Active() bool {
	return s == AlertStatusOpen || s == AlertStatusAcknowledged
}

// Alert is the durable record of a detected issue. Rows are never deleted.
type Alert struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ClientID         string             `bson:"client_id" json:"client_id"`
	Channel          Channel            `bson:"channel" json:"channel"`
	CheckID          string             `bson:"check_id" json:"check_id"`
	Type             AlertType          `bson:"type" json:"type"`
	Severity         Severity           `bson:"severity" json:"severity"`
	Status           AlertStatus        `bson:"status" json:"status"`
	Title            string             `bson:"title" json:"title"`
	ShortDescription string             `bson:"short_description" json:"short_description"`
	Impact           string             `bson:"impact,omitempty" json:"impact,omitempty"`
	SuggestedActions []string           `bson:"suggested_actions" json:"suggested_actions"`
	Details          AlertDetails       `bson:"details" json:"details"`
	Fingerprint      string             `bson:"fingerprint" json:"fingerprint"`
	DetectedAt       time.Time          `bson:"detected_at" json:"detected_at"`
	AcknowledgedAt   *time.Time         `bson:"acknowledged_at,omitempty" json:"acknowledged_at,omitempty"`
	AcknowledgedBy   string             `bson:"acknowledged_by,omitempty" json:"acknowledged_by,omitempty"`
	ResolvedAt       *time.Time         `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`
	ResolvedBy       string             `bson:"resolved_by,omitempty" json:"resolved_by,omitempty"`
	ResolutionReason string             `bson:"resolution_reason,omitempty" json:"resolution_reason,omitempty"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}

// AlertFilter narrows list queries. Zero values mean "any".
type AlertFilter struct {
	Channel  Channel
	Severity Severity
	Type     AlertType
	CheckID  string
	Statuses []AlertStatus
	Limit    int
	Offset   int
}

// StatusTransition describes a conditional status update on one alert.
type StatusTransition struct {
	From   []AlertStatus
	To     AlertStatus
	At     time.Time
	Actor  string
	Reason string
}

// ResolveScope selects the open alerts an auto-resolve pass closes.
type ResolveScope struct {
	ClientID string
	Channel  Channel
	CheckID  string
}

// ChannelSummary is the dashboard view of one channel.
type ChannelSummary struct {
	Channel    Channel            `json:"channel"`
	OpenCount  int64              `json:"open_count"`
	BySeverity map[Severity]int64 `json:"by_severity"`
	Preview    []Alert            `json:"preview"`
}

// AlertSummary groups open alerts for dashboard consumption.
type AlertSummary struct {
	ClientID    string             `json:"client_id,omitempty"`
	TotalOpen   int64              `json:"total_open"`
	BySeverity  map[Severity]int64 `json:"by_severity"`
	ByChannel   []ChannelSummary   `json:"by_channel"`
	GeneratedAt time.Time          `json:"generated_at"`
}
