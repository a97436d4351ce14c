// Package checks holds the side-effect free health checks run against a
// client's fresh metrics. Checks report findings and never write alerts.
package checks

import (
	"context"
	"time"

	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

// MetricSource supplies per entity performance rows. Missing days are not an error.
type MetricSource interface {
	GetMetrics(ctx context.Context, ref models.AccountRef, entityType models.EntityType, dateRange models.DateRange) ([]models.MetricRow, error)
}

// SiteProbe loads a page in a browser and reports what it observed.
type SiteProbe interface {
	Probe(ctx context.Context, url string) (*ProbeResult, error)
}

type ProbeResult struct {
	URL         string
	StatusCode  int
	LoadTime    time.Duration
	RequestURLs []string
	// Err is set when the page could not be loaded at all.
	Err string
}

// Sources groups the read-only collaborators a check may consult.
type Sources struct {
	Metrics MetricSource
	Site    SiteProbe
}

// Target is what a single check execution evaluates.
type Target struct {
	Client  models.ClientMonitoringConfig
	Account *models.PlatformAccount
	Channel models.Channel
	Now     time.Time
}

func (t Target) Ref() models.AccountRef {
	ref := models.AccountRef{ClientID: t.Client.ClientID, Channel: t.Channel}
	if t.Account != nil {
		ref.AccountID = t.Account.AccountID
	}
	return ref
}

func (t Target) AccountID() string {
	if t.Account == nil {
		return ""
	}
	return t.Account.AccountID
}

func (t Target) Location() *time.Location {
	return t.Client.Location()
}

// Check evaluates one operational concern.
type Check interface {
	ID() string
	Name() string
	Description() string
	// Channels lists the channels the check applies to. The first one is primary.
	Channels() []models.Channel
	Run(ctx context.Context, src Sources, target Target) (*models.CheckResult, error)
}

// Info is the serializable description of a check.
type Info struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Channels    []models.Channel `json:"channels"`
}

func Describe(c Check) Info {
	return Info{ID: c.ID(), Name: c.Name(), Description: c.Description(), Channels: c.Channels()}
}

// threshold reads "<checkID>.<name>" from the client overrides.
func threshold(t Target, checkID, name string, def float64) float64 {
	return t.Client.Threshold(checkID+"."+name, def)
}

func problem(status models.CheckStatus, count int, data models.AlertData, details models.AlertDetails) *models.CheckResult {
	return &models.CheckResult{
		Status:    status,
		Count:     count,
		AlertData: &data,
		Details:   details,
	}
}
