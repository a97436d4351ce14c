package checks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grigta/adpulse/services/monitoring-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// fakeMetrics serves rows filtered by entity type and date range.
type fakeMetrics struct {
	rows []models.MetricRow
	err  error
}

func (f *fakeMetrics) GetMetrics(ctx context.Context, ref models.AccountRef, entityType models.EntityType, dr models.DateRange) ([]models.MetricRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.MetricRow
	for _, row := range f.rows {
		if row.EntityType == entityType && dr.Contains(row.Date) {
			out = append(out, row)
		}
	}
	return out, nil
}

type fakeProbe struct {
	result *ProbeResult
	err    error
	calls  int32
}

func (f *fakeProbe) Probe(ctx context.Context, url string) (*ProbeResult, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.result, f.err
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return models.DayStart(testNow, time.UTC).AddDate(0, 0, -n)
}

type ChecksTestSuite struct {
	suite.Suite
	ctx     context.Context
	cancel  context.CancelFunc
	metrics *fakeMetrics
	target  Target
}

func (s *ChecksTestSuite) SetupTest() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.metrics = &fakeMetrics{}
	account := models.PlatformAccount{Channel: models.ChannelMetaAds, AccountID: "act_1", CredentialsRef: "vault:meta", Enabled: true}
	s.target = Target{
		Client: models.ClientMonitoringConfig{
			ClientID: "client-1",
			Enabled:  true,
			Accounts: []models.PlatformAccount{account},
		},
		Account: &account,
		Channel: models.ChannelMetaAds,
		Now:     testNow,
	}
}

func (s *ChecksTestSuite) TearDownTest() {
	s.cancel()
}

func TestChecksTestSuite(t *testing.T) {
	suite.Run(t, new(ChecksTestSuite))
}

func (s *ChecksTestSuite) sources() Sources {
	return Sources{Metrics: s.metrics}
}

func (s *ChecksTestSuite) TestDisapprovedAds_SpendingIsCritical() {
	s.metrics.rows = []models.MetricRow{
		{Date: daysAgo(3), EntityType: models.EntityTypeAd, EntityID: "ad-1", Status: models.EntityStatusActive, Spend: 40},
		{Date: daysAgo(1), EntityType: models.EntityTypeAd, EntityID: "ad-1", Status: models.EntityStatusDisapproved, Spend: 10},
		{Date: daysAgo(1), EntityType: models.EntityTypeAd, EntityID: "ad-2", Status: models.EntityStatusDisapproved},
		{Date: daysAgo(1), EntityType: models.EntityTypeAd, EntityID: "ad-3", Status: models.EntityStatusActive, Spend: 5},
		{Date: daysAgo(1), EntityType: models.EntityTypeAd, EntityID: "ad-4", Status: models.EntityStatusDisapproved},
	}

	res, err := NewDisapprovedAds().Run(s.ctx, s.sources(), s.target)

	s.Require().NoError(err)
	s.Equal(models.CheckStatusCritical, res.Status)
	s.Equal(3, res.Count)
	s.Require().NotNil(res.AlertData)
	s.Equal(models.SeverityCritical, res.AlertData.Severity)
	s.NoError(res.Details.Validate())
	s.Equal(1, res.Details.DisapprovedAds.SpendingAds)
	s.Equal(50.0, res.Details.DisapprovedAds.Ads[0].RecentSpend)
}

func (s *ChecksTestSuite) TestDisapprovedAds_ReapprovedAdIsHealthy() {
	s.metrics.rows = []models.MetricRow{
		{Date: daysAgo(2), EntityType: models.EntityTypeAd, EntityID: "ad-1", Status: models.EntityStatusDisapproved},
		{Date: daysAgo(1), EntityType: models.EntityTypeAd, EntityID: "ad-1", Status: models.EntityStatusActive, Spend: 12},
	}

	res, err := NewDisapprovedAds().Run(s.ctx, s.sources(), s.target)

	s.Require().NoError(err)
	s.True(res.IsHealthy())
	s.Nil(res.AlertData)
}

func (s *ChecksTestSuite) TestDisapprovedAds_NoRowsIsNoData() {
	res, err := NewDisapprovedAds().Run(s.ctx, s.sources(), s.target)

	s.Require().NoError(err)
	s.True(res.NoData)
	s.Equal(models.CheckStatusOK, res.Status)
	s.False(res.IsHealthy())
}

func (s *ChecksTestSuite) TestDisapprovedAds_SourceError() {
	s.metrics.err = errors.New("sync down")

	_, err := NewDisapprovedAds().Run(s.ctx, s.sources(), s.target)

	s.Error(err)
}

func (s *ChecksTestSuite) TestBudgetPacing() {
	s.metrics.rows = []models.MetricRow{
		{Date: daysAgo(1), EntityType: models.EntityTypeCampaign, EntityID: "c-over", Status: models.EntityStatusActive, DailyBudget: 100, Spend: 130, Impressions: 900},
		{Date: daysAgo(1), EntityType: models.EntityTypeCampaign, EntityID: "c-fine", Status: models.EntityStatusActive, DailyBudget: 100, Spend: 95, Impressions: 800},
		{Date: daysAgo(1), EntityType: models.EntityTypeCampaign, EntityID: "c-stuck", Status: models.EntityStatusActive, DailyBudget: 50},
		{Date: daysAgo(1), EntityType: models.EntityTypeCampaign, EntityID: "c-paused", Status: models.EntityStatusPaused, DailyBudget: 50},
	}

	res, err := NewBudgetPacing().Run(s.ctx, s.sources(), s.target)

	s.Require().NoError(err)
	s.Equal(models.CheckStatusWarning, res.Status)
	s.Equal(2, res.Count)
	issues := res.Details.BudgetPacing.Issues
	s.Equal("c-over", issues[0].ID)
	s.Equal(BudgetIssueOverspend, issues[0].Issue)
	s.Equal("c-stuck", issues[1].ID)
	s.Equal(BudgetIssueNotDelivering, issues[1].Issue)
	s.Equal("2026-03-09", res.Details.BudgetPacing.Date)
}

func (s *ChecksTestSuite) TestBudgetPacing_ClientThresholdOverride() {
	s.target.Client.Thresholds = map[string]float64{"budget_pacing.overspend_critical": 1.25}
	s.metrics.rows = []models.MetricRow{
		{Date: daysAgo(1), EntityType: models.EntityTypeCampaign, EntityID: "c-over", Status: models.EntityStatusActive, DailyBudget: 100, Spend: 130, Impressions: 900},
	}

	res, err := NewBudgetPacing().Run(s.ctx, s.sources(), s.target)

	s.Require().NoError(err)
	s.Equal(models.CheckStatusCritical, res.Status)
	s.Equal(models.SeverityHigh, res.AlertData.Severity)
}

func (s *ChecksTestSuite) TestAudienceGaps_MajorityOfSpendIsCritical() {
	for d := 1; d <= 7; d++ {
		s.metrics.rows = append(s.metrics.rows,
			models.MetricRow{Date: daysAgo(d), EntityType: models.EntityTypeCampaign, EntityID: "broad", Spend: 30},
			models.MetricRow{Date: daysAgo(d), EntityType: models.EntityTypeCampaign, EntityID: "remarketing", Spend: 10, AudienceSignals: 2},
		)
	}

	res, err := NewAudienceGaps().Run(s.ctx, s.sources(), s.target)

	s.Require().NoError(err)
	s.Equal(models.CheckStatusCritical, res.Status)
	s.Equal(1, res.Count)
	s.InDelta(0.75, res.Details.AudienceGaps.AffectedShare, 1e-9)
}

func (s *ChecksTestSuite) TestAudienceGaps_BelowFloorIsHealthy() {
	s.metrics.rows = []models.MetricRow{
		{Date: daysAgo(1), EntityType: models.EntityTypeCampaign, EntityID: "tiny", Spend: 20},
		{Date: daysAgo(1), EntityType: models.EntityTypeCampaign, EntityID: "big", Spend: 500, AudienceSignals: 1},
	}

	res, err := NewAudienceGaps().Run(s.ctx, s.sources(), s.target)

	s.Require().NoError(err)
	s.True(res.IsHealthy())
}

func (s *ChecksTestSuite) conversionRows(recentConversions float64) {
	for d := 1; d <= 17; d++ {
		row := models.MetricRow{Date: daysAgo(d), EntityType: models.EntityTypeCampaign, EntityID: "c1", Clicks: 100, Conversions: 5}
		if d <= 3 {
			row.Conversions = recentConversions
		}
		s.metrics.rows = append(s.metrics.rows, row)
	}
}

func (s *ChecksTestSuite) TestConversionTracking_StoppedIsCritical() {
	s.conversionRows(0)

	res, err := NewConversionTracking().Run(s.ctx, s.sources(), s.target)

	s.Require().NoError(err)
	s.Equal(models.CheckStatusCritical, res.Status)
	s.Equal(int64(300), res.Details.ConversionTracking.RecentClicks)
	s.InDelta(100.0, res.Details.ConversionTracking.DropPct, 1e-9)
}

func (s *ChecksTestSuite) TestConversionTracking_LargeDropIsWarning() {
	s.conversionRows(1)

	res, err := NewConversionTracking().Run(s.ctx, s.sources(), s.target)

	s.Require().NoError(err)
	s.Equal(models.CheckStatusWarning, res.Status)
	s.InDelta(80.0, res.Details.ConversionTracking.DropPct, 1e-9)
}

func (s *ChecksTestSuite) TestConversionTracking_StableIsHealthy() {
	s.conversionRows(5)

	res, err := NewConversionTracking().Run(s.ctx, s.sources(), s.target)

	s.Require().NoError(err)
	s.True(res.IsHealthy())
}

func (s *ChecksTestSuite) TestConversionTracking_LowTrafficIsNoData() {
	s.metrics.rows = []models.MetricRow{
		{Date: daysAgo(1), EntityType: models.EntityTypeCampaign, EntityID: "c1", Clicks: 20},
		{Date: daysAgo(10), EntityType: models.EntityTypeCampaign, EntityID: "c1", Clicks: 100, Conversions: 4},
	}

	res, err := NewConversionTracking().Run(s.ctx, s.sources(), s.target)

	s.Require().NoError(err)
	s.True(res.NoData)
}

func (s *ChecksTestSuite) TestSpendAnomaly_Spike() {
	spends := []float64{100, 110, 90, 105, 95, 100, 100, 110, 90, 100}
	for i, v := range spends {
		s.metrics.rows = append(s.metrics.rows, models.MetricRow{Date: daysAgo(i + 2), EntityType: models.EntityTypeCampaign, EntityID: "c1", Spend: v})
	}
	s.metrics.rows = append(s.metrics.rows, models.MetricRow{Date: daysAgo(1), EntityType: models.EntityTypeCampaign, EntityID: "c1", Spend: 400})

	res, err := NewSpendAnomaly().Run(s.ctx, s.sources(), s.target)

	s.Require().NoError(err)
	s.Equal(models.CheckStatusCritical, res.Status)
	s.Equal(models.AlertTypePerformance, res.AlertData.Type)
	s.Equal("spike", res.Details.SpendAnomaly.Direction)
	s.Equal(10, res.Details.SpendAnomaly.Points)
	s.InDelta(100.0, res.Details.SpendAnomaly.Mean, 1e-9)
}

func (s *ChecksTestSuite) TestSpendAnomaly_NotEnoughHistory() {
	for d := 1; d <= 4; d++ {
		s.metrics.rows = append(s.metrics.rows, models.MetricRow{Date: daysAgo(d), EntityType: models.EntityTypeCampaign, EntityID: "c1", Spend: 100})
	}

	res, err := NewSpendAnomaly().Run(s.ctx, s.sources(), s.target)

	s.Require().NoError(err)
	s.True(res.NoData)
}

func (s *ChecksTestSuite) TestSpendAnomaly_NormalDay() {
	for d := 1; d <= 10; d++ {
		s.metrics.rows = append(s.metrics.rows, models.MetricRow{Date: daysAgo(d), EntityType: models.EntityTypeCampaign, EntityID: "c1", Spend: 100 + float64(d%3)})
	}

	res, err := NewSpendAnomaly().Run(s.ctx, s.sources(), s.target)

	s.Require().NoError(err)
	s.True(res.IsHealthy())
}

func (s *ChecksTestSuite) siteTarget(tags ...string) Target {
	t := s.target
	t.Account = nil
	t.Channel = models.ChannelWebsite
	t.Client.Website = &models.WebsiteConfig{URL: "https://shop.example", ExpectedTags: tags}
	return t
}

func (s *ChecksTestSuite) TestWebsiteAvailability() {
	tests := []struct {
		name   string
		result *ProbeResult
		status models.CheckStatus
	}{
		{"ok", &ProbeResult{StatusCode: 200, LoadTime: 800 * time.Millisecond}, models.CheckStatusOK},
		{"server error", &ProbeResult{StatusCode: 502, LoadTime: 100 * time.Millisecond}, models.CheckStatusCritical},
		{"navigation failed", &ProbeResult{Err: "net::ERR_NAME_NOT_RESOLVED"}, models.CheckStatusCritical},
		{"slow", &ProbeResult{StatusCode: 200, LoadTime: 7 * time.Second}, models.CheckStatusWarning},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			src := Sources{Site: &fakeProbe{result: tt.result}}
			res, err := NewWebsiteAvailability().Run(s.ctx, src, s.siteTarget())
			s.Require().NoError(err)
			s.Equal(tt.status, res.Status)
			s.NoError(res.Details.Validate())
		})
	}
}

func (s *ChecksTestSuite) TestWebsiteAvailability_NoWebsiteIsNoData() {
	res, err := NewWebsiteAvailability().Run(s.ctx, Sources{Site: &fakeProbe{}}, s.target)

	s.Require().NoError(err)
	s.True(res.NoData)
}

func (s *ChecksTestSuite) TestTrackingTags() {
	probe := &fakeProbe{result: &ProbeResult{StatusCode: 200, RequestURLs: []string{
		"https://shop.example/app.js",
		"https://connect.facebook.net/en_US/fbevents.js",
	}}}

	t := s.siteTarget("meta_pixel", "gtag")
	t.Channel = models.ChannelTracking
	res, err := NewTrackingTags().Run(s.ctx, Sources{Site: probe}, t)

	s.Require().NoError(err)
	s.Equal(models.CheckStatusWarning, res.Status)
	s.Equal([]string{"meta_pixel"}, res.Details.TrackingTags.Found)
	s.Equal([]string{"gtag"}, res.Details.TrackingTags.Missing)
}

func (s *ChecksTestSuite) TestTrackingTags_BrokenPageIsNoData() {
	probe := &fakeProbe{result: &ProbeResult{StatusCode: 503}}

	res, err := NewTrackingTags().Run(s.ctx, Sources{Site: probe}, s.siteTarget("gtag"))

	s.Require().NoError(err)
	s.True(res.NoData)
}

func TestMemoProbe_LoadsOnce(t *testing.T) {
	inner := &fakeProbe{result: &ProbeResult{StatusCode: 200}}
	memo := NewMemoProbe(inner)

	for i := 0; i < 3; i++ {
		res, err := memo.Probe(context.Background(), "https://shop.example")
		require.NoError(t, err)
		assert.Equal(t, 200, res.StatusCode)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.Len(t, r.All(), 7)
	assert.Equal(t, IDDisapprovedAds, r.All()[0].ID())

	err := r.Register(NewBudgetPacing())
	assert.Error(t, err)

	c, ok := r.Get(IDTrackingTags)
	require.True(t, ok)
	assert.Equal(t, models.ChannelTracking, PrimaryChannel(c))

	assert.Len(t, r.ForChannel(models.ChannelGoogleAds), 5)
	assert.Len(t, r.ForChannel(models.ChannelWebsite), 1)
	assert.Empty(t, r.ForChannel(models.ChannelSEO))
}
