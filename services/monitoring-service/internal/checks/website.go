package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

const (
	IDWebsiteAvailability = "website_availability"
	IDTrackingTags        = "tracking_tags"
)

// WebsiteAvailability loads the client's landing page in a headless browser.
type WebsiteAvailability struct{}

func NewWebsiteAvailability() *WebsiteAvailability {
	return &WebsiteAvailability{}
}

func (c *WebsiteAvailability) ID() string   { return IDWebsiteAvailability }
func (c *WebsiteAvailability) Name() string { return "Website availability" }
func (c *WebsiteAvailability) Description() string {
	return "Landing page fails to load, returns an error status or loads slowly"
}
func (c *WebsiteAvailability) Channels() []models.Channel {
	return []models.Channel{models.ChannelWebsite}
}

func (c *WebsiteAvailability) Run(ctx context.Context, src Sources, target Target) (*models.CheckResult, error) {
	site := target.Client.Website
	if site == nil || site.URL == "" || src.Site == nil {
		return models.NoData(), nil
	}
	slowMs := threshold(target, c.ID(), "slow_ms", 5000)

	res, err := src.Site.Probe(ctx, site.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", site.URL, err)
	}

	details := &models.WebsiteAvailabilityDetails{
		URL:        site.URL,
		StatusCode: res.StatusCode,
		LoadTimeMs: res.LoadTime.Milliseconds(),
		Error:      res.Err,
	}
	wrapped := models.AlertDetails{Kind: models.DetailKindWebsiteAvailability, WebsiteAvailability: details}

	switch {
	case res.Err != "" || res.StatusCode >= 400:
		reason := res.Err
		if reason == "" {
			reason = fmt.Sprintf("HTTP %d", res.StatusCode)
		}
		return problem(models.CheckStatusCritical, 1, models.AlertData{
			Title:            "Website is down",
			ShortDescription: fmt.Sprintf("%s could not be loaded: %s.", site.URL, reason),
			Impact:           "Paid traffic lands on a broken page and the spend is wasted.",
			SuggestedActions: []string{
				"Open the site manually and check hosting status",
				"Pause traffic driving campaigns until the site is back",
			},
			Severity: models.SeverityCritical,
			Type:     models.AlertTypeFundamentalCheck,
		}, wrapped), nil
	case float64(details.LoadTimeMs) >= slowMs:
		return problem(models.CheckStatusWarning, 1, models.AlertData{
			Title:            "Website loads slowly",
			ShortDescription: fmt.Sprintf("%s took %s to load.", site.URL, res.LoadTime.Round(time.Millisecond)),
			Impact:           "Slow landing pages raise bounce rate and cost per conversion.",
			SuggestedActions: []string{
				"Run a page speed audit on the landing page",
				"Check recent changes to heavy scripts or images",
			},
			Severity: models.SeverityMedium,
			Type:     models.AlertTypeFundamentalCheck,
		}, wrapped), nil
	}

	return models.OK(wrapped), nil
}

// knownTags maps tag names to the request URL fragment that proves they fired.
var knownTags = map[string]string{
	"meta_pixel":       "connect.facebook.net",
	"gtag":             "googletagmanager.com/gtag/js",
	"gtm":              "googletagmanager.com/gtm.js",
	"google_analytics": "google-analytics.com",
	"google_ads":       "googleadservices.com",
}

// TrackingTags verifies that the expected tracking tags load on the site.
type TrackingTags struct{}

func NewTrackingTags() *TrackingTags {
	return &TrackingTags{}
}

func (c *TrackingTags) ID() string   { return IDTrackingTags }
func (c *TrackingTags) Name() string { return "Tracking tags" }
func (c *TrackingTags) Description() string {
	return "Expected pixels and analytics tags are requested by the landing page"
}
func (c *TrackingTags) Channels() []models.Channel {
	return []models.Channel{models.ChannelTracking}
}

func (c *TrackingTags) Run(ctx context.Context, src Sources, target Target) (*models.CheckResult, error) {
	site := target.Client.Website
	if site == nil || site.URL == "" || len(site.ExpectedTags) == 0 || src.Site == nil {
		return models.NoData(), nil
	}

	res, err := src.Site.Probe(ctx, site.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", site.URL, err)
	}
	// A page that does not load is reported by the availability check.
	if res.Err != "" || res.StatusCode >= 400 {
		return models.NoData(), nil
	}

	details := &models.TrackingTagsDetails{URL: site.URL, Found: []string{}, Missing: []string{}}
	for _, tag := range site.ExpectedTags {
		if tagObserved(tag, res.RequestURLs) {
			details.Found = append(details.Found, tag)
		} else {
			details.Missing = append(details.Missing, tag)
		}
	}
	sort.Strings(details.Found)
	sort.Strings(details.Missing)

	wrapped := models.AlertDetails{Kind: models.DetailKindTrackingTags, TrackingTags: details}
	if len(details.Missing) == 0 {
		return models.OK(wrapped), nil
	}

	status := models.CheckStatusWarning
	severity := models.SeverityHigh
	if len(details.Found) == 0 {
		status = models.CheckStatusCritical
		severity = models.SeverityCritical
	}

	return problem(status, len(details.Missing), models.AlertData{
		Title:            fmt.Sprintf("%d tracking tags missing", len(details.Missing)),
		ShortDescription: fmt.Sprintf("%s did not load: %s.", site.URL, strings.Join(details.Missing, ", ")),
		Impact:           "Missing tags lose conversion data and shrink remarketing audiences.",
		SuggestedActions: []string{
			"Check the tag manager container is published",
			"Verify consent settings are not blocking the tags",
		},
		Severity: severity,
		Type:     models.AlertTypeFundamentalCheck,
	}, wrapped), nil
}

func tagObserved(tag string, requests []string) bool {
	needle, ok := knownTags[tag]
	if !ok {
		needle = tag
	}
	for _, u := range requests {
		if strings.Contains(u, needle) {
			return true
		}
	}
	return false
}
