package models

import (
	"math"
	"time"
)

// Entity statuses as reported by the platform sync clients.
const (
	EntityStatusActive      = "active"
	EntityStatusPaused      = "paused"
	EntityStatusDisapproved = "disapproved"
)

// MetricRow is one entity's performance on one day.
type MetricRow struct {
	Date            time.Time  `bson:"date" json:"date"`
	ClientID        string     `bson:"client_id" json:"client_id"`
	Channel         Channel    `bson:"channel" json:"channel"`
	AccountID       string     `bson:"account_id" json:"account_id"`
	EntityType      EntityType `bson:"entity_type" json:"entity_type"`
	EntityID        string     `bson:"entity_id" json:"entity_id"`
	EntityName      string     `bson:"entity_name,omitempty" json:"entity_name,omitempty"`
	ParentID        string     `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	Status          string     `bson:"status,omitempty" json:"status,omitempty"`
	Impressions     int64      `bson:"impressions" json:"impressions"`
	Clicks          int64      `bson:"clicks" json:"clicks"`
	Spend           float64    `bson:"spend" json:"spend"`
	Conversions     float64    `bson:"conversions" json:"conversions"`
	Frequency       float64    `bson:"frequency" json:"frequency"`
	DailyBudget     float64    `bson:"daily_budget,omitempty" json:"daily_budget,omitempty"`
	AudienceSignals int        `bson:"audience_signals" json:"audience_signals"`
	SyncedAt        time.Time  `bson:"synced_at" json:"synced_at"`
}

// AccountRef addresses the metric source for one client account.
type AccountRef struct {
	ClientID  string
	Channel   Channel
	AccountID string
}

// DateRange is inclusive on both ends, at day granularity.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Days returns the number of calendar days covered by the range.
func (r DateRange) Days() int {
	return int(math.Round(r.To.Sub(r.From).Hours()/24)) + 1
}

// Contains reports whether t falls on a day inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.End())
}

// End is the exclusive upper bound, midnight after To.
func (r DateRange) End() time.Time {
	return r.To.AddDate(0, 0, 1)
}

// DayStart truncates t to midnight in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// LastDays returns the n full days that end the day before now.
func LastDays(now time.Time, loc *time.Location, n int) DateRange {
	today := DayStart(now, loc)
	return DateRange{From: today.AddDate(0, 0, -n), To: today.AddDate(0, 0, -1)}
}

// DayKey formats a day bucket as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
