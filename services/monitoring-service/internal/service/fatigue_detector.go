package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/grigta/adpulse/pkg/logger"
	"github.com/grigta/adpulse/services/monitoring-service/internal/checks"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

// FatigueCheckID is the check id promoted fatigue alerts carry.
const FatigueCheckID = "creative_fatigue"

// SignalThresholds are percentage changes; Strong must be >= Moderate.
type SignalThresholds struct {
	Moderate float64 `yaml:"moderate"`
	Strong   float64 `yaml:"strong"`
}

func (t SignalThresholds) level(change float64) int {
	switch {
	case change >= t.Strong:
		return 2
	case change >= t.Moderate:
		return 1
	}
	return 0
}

type FatigueConfig struct {
	RecentDays           int                 `yaml:"recent_days"`
	BaselineDays         int                 `yaml:"baseline_days"`
	MinBaselinePoints    int                 `yaml:"min_baseline_points"`
	MinRecentImpressions int64               `yaml:"min_recent_impressions"`
	EntityTypes          []models.EntityType `yaml:"entity_types"`
	Frequency            SignalThresholds    `yaml:"frequency"`
	CTRDecline           SignalThresholds    `yaml:"ctr_decline"`
	CPCIncrease          SignalThresholds    `yaml:"cpc_increase"`
}

func DefaultFatigueConfig() FatigueConfig {
	return FatigueConfig{
		RecentDays:           3,
		BaselineDays:         14,
		MinBaselinePoints:    7,
		MinRecentImpressions: 1000,
		EntityTypes:          []models.EntityType{models.EntityTypeAd, models.EntityTypeAdSet, models.EntityTypeCampaign},
		Frequency:            SignalThresholds{Moderate: 20, Strong: 50},
		CTRDecline:           SignalThresholds{Moderate: 15, Strong: 30},
		CPCIncrease:          SignalThresholds{Moderate: 15, Strong: 30},
	}
}

// FatigueDetector compares each entity's recent window with the baseline
// window right before it.
type FatigueDetector struct {
	source checks.MetricSource
	store  SignalStore
	cfg    FatigueConfig
	logger logger.Logger
	now    Clock
}

func NewFatigueDetector(source checks.MetricSource, store SignalStore, cfg FatigueConfig, log logger.Logger) *FatigueDetector {
	def := DefaultFatigueConfig()
	if cfg.RecentDays <= 0 {
		cfg.RecentDays = def.RecentDays
	}
	if cfg.BaselineDays <= 0 {
		cfg.BaselineDays = def.BaselineDays
	}
	if cfg.MinBaselinePoints <= 0 {
		cfg.MinBaselinePoints = def.MinBaselinePoints
	}
	if len(cfg.EntityTypes) == 0 {
		cfg.EntityTypes = def.EntityTypes
	}
	if cfg.Frequency == (SignalThresholds{}) {
		cfg.Frequency = def.Frequency
	}
	if cfg.CTRDecline == (SignalThresholds{}) {
		cfg.CTRDecline = def.CTRDecline
	}
	if cfg.CPCIncrease == (SignalThresholds{}) {
		cfg.CPCIncrease = def.CPCIncrease
	}
	return &FatigueDetector{source: source, store: store, cfg: cfg, logger: log, now: time.Now}
}

// Detect returns every signal for the account, low severity included.
// Signals are persisted when a store is configured.
func (d *FatigueDetector) Detect(ctx context.Context, client models.ClientMonitoringConfig, account models.PlatformAccount) ([]models.FatigueSignal, error) {
	now := d.now()
	loc := client.Location()
	window := models.LastDays(now, loc, d.cfg.RecentDays+d.cfg.BaselineDays)
	recent := models.LastDays(now, loc, d.cfg.RecentDays)
	ref := models.AccountRef{ClientID: client.ClientID, Channel: account.Channel, AccountID: account.AccountID}
	day := models.DayKey(now, loc)

	var signals []models.FatigueSignal
	for _, entityType := range d.cfg.EntityTypes {
		rows, err := d.source.GetMetrics(ctx, ref, entityType, window)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s metrics: %w", entityType, err)
		}

		for _, series := range groupByEntity(rows) {
			signal, ok := d.assess(series, recent)
			if !ok {
				continue
			}
			signal.ClientID = client.ClientID
			signal.Channel = account.Channel
			signal.AccountID = account.AccountID
			signal.EntityType = entityType
			signal.Day = day
			signal.DetectedAt = now.UTC()

			if d.store != nil {
				stored, err := d.store.Upsert(ctx, &signal)
				if err != nil {
					return nil, fmt.Errorf("failed to store fatigue signal: %w", err)
				}
				signal = *stored
			}
			fatigueSignals.WithLabelValues(string(signal.Severity), string(entityType)).Inc()
			signals = append(signals, signal)
		}
	}

	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Severity.Rank() != signals[j].Severity.Rank() {
			return signals[i].Severity.Rank() > signals[j].Severity.Rank()
		}
		return signals[i].EntityID < signals[j].EntityID
	})
	return signals, nil
}

type entitySeries struct {
	id   string
	rows []models.MetricRow
}

func groupByEntity(rows []models.MetricRow) []entitySeries {
	index := map[string]int{}
	var out []entitySeries
	for _, row := range rows {
		i, ok := index[row.EntityID]
		if !ok {
			i = len(out)
			index[row.EntityID] = i
			out = append(out, entitySeries{id: row.EntityID})
		}
		out[i].rows = append(out[i].rows, row)
	}
	return out
}

// assess returns false when the entity is inactive, lacks data or would
// divide by zero.
func (d *FatigueDetector) assess(series entitySeries, recent models.DateRange) (models.FatigueSignal, bool) {
	var current, baseline models.FatigueMetrics
	var latest models.MetricRow
	var ctrs, freqs, impWeights, cpcs, clickWeights []float64
	var recentFreqSum, recentFreqWeight float64

	for _, row := range series.rows {
		if !row.Date.Before(latest.Date) {
			latest = row
		}
		if recent.Contains(row.Date) {
			current.Impressions += row.Impressions
			current.Clicks += row.Clicks
			current.Spend += row.Spend
			recentFreqSum += row.Frequency * float64(row.Impressions)
			recentFreqWeight += float64(row.Impressions)
			continue
		}
		if row.Impressions <= 0 {
			continue
		}
		baseline.Impressions += row.Impressions
		baseline.Clicks += row.Clicks
		baseline.Spend += row.Spend
		ctrs = append(ctrs, float64(row.Clicks)/float64(row.Impressions))
		freqs = append(freqs, row.Frequency)
		impWeights = append(impWeights, float64(row.Impressions))
		if row.Clicks > 0 {
			cpcs = append(cpcs, row.Spend/float64(row.Clicks))
			clickWeights = append(clickWeights, float64(row.Clicks))
		}
	}

	if latest.Status != "" && latest.Status != models.EntityStatusActive {
		return models.FatigueSignal{}, false
	}
	if len(ctrs) < d.cfg.MinBaselinePoints {
		return models.FatigueSignal{}, false
	}
	if current.Impressions == 0 || current.Impressions < d.cfg.MinRecentImpressions {
		return models.FatigueSignal{}, false
	}
	if len(cpcs) == 0 {
		return models.FatigueSignal{}, false
	}

	baseline.CTR = stat.Mean(ctrs, impWeights)
	baseline.CPC = stat.Mean(cpcs, clickWeights)
	baseline.Frequency = stat.Mean(freqs, impWeights)
	if baseline.CTR == 0 || baseline.CPC == 0 || baseline.Frequency == 0 {
		return models.FatigueSignal{}, false
	}

	current.CTR = float64(current.Clicks) / float64(current.Impressions)
	if current.Clicks > 0 {
		current.CPC = current.Spend / float64(current.Clicks)
	}
	if recentFreqWeight > 0 {
		current.Frequency = recentFreqSum / recentFreqWeight
	}

	deltas := models.FatigueDeltas{
		FrequencyChange: pctChange(current.Frequency, baseline.Frequency),
		CTRChange:       pctChange(current.CTR, baseline.CTR),
		CPCChange:       pctChange(current.CPC, baseline.CPC),
	}
	if _, std := stat.MeanStdDev(ctrs, nil); std > 0 {
		deltas.CTRZScore = (current.CTR - stat.Mean(ctrs, nil)) / std
	}
	// Spend without clicks is an unbounded CPC and rates as a strong rise.
	// Without spend there is no cost to judge.
	if current.Clicks == 0 {
		deltas.CPCChange = 0
		if current.Spend > 0 {
			deltas.CPCChange = d.cfg.CPCIncrease.Strong
		}
	}

	severity, reasons, actions := d.classify(deltas, current, baseline)
	if severity == "" {
		return models.FatigueSignal{}, false
	}

	return models.FatigueSignal{
		EntityID:       series.id,
		EntityName:     latest.EntityName,
		ParentID:       latest.ParentID,
		Current:        current,
		Baseline:       baseline,
		Deltas:         deltas,
		BaselinePoints: len(ctrs),
		Severity:       severity,
		Reasons:        reasons,
		Actions:        actions,
	}, true
}

func pctChange(current, baseline float64) float64 {
	return (current - baseline) / baseline * 100
}

// classify requires corroboration: critical needs a strong frequency rise
// with both CTR and CPC worsening, high needs any two signals.
func (d *FatigueDetector) classify(deltas models.FatigueDeltas, current, baseline models.FatigueMetrics) (models.Severity, []string, []string) {
	freq := d.cfg.Frequency.level(deltas.FrequencyChange)
	ctr := d.cfg.CTRDecline.level(-deltas.CTRChange)
	cpc := d.cfg.CPCIncrease.level(deltas.CPCChange)

	triggered := 0
	for _, l := range []int{freq, ctr, cpc} {
		if l > 0 {
			triggered++
		}
	}

	var severity models.Severity
	switch {
	case freq == 2 && ctr >= 1 && cpc >= 1:
		severity = models.SeverityCritical
	case triggered >= 2:
		severity = models.SeverityHigh
	case freq == 2 || ctr == 2 || cpc == 2:
		severity = models.SeverityMedium
	case triggered == 1:
		severity = models.SeverityLow
	default:
		return "", nil, nil
	}

	var reasons, actions []string
	if freq > 0 {
		reasons = append(reasons, fmt.Sprintf("Frequency up %.0f%% (%.2f → %.2f)", deltas.FrequencyChange, baseline.Frequency, current.Frequency))
		actions = append(actions, "Refresh the creative or rotate in new variants")
	}
	if ctr > 0 {
		reasons = append(reasons, fmt.Sprintf("CTR down %.0f%% (%.2f%% → %.2f%%)", -deltas.CTRChange, baseline.CTR*100, current.CTR*100))
		actions = append(actions, "Test a new hook, headline or visual")
	}
	if cpc > 0 && current.Clicks == 0 {
		reasons = append(reasons, fmt.Sprintf("No clicks on %.2f spend (baseline CPC %.2f)", current.Spend, baseline.CPC))
		actions = append(actions, "Review bids and audience overlap")
	} else if cpc > 0 {
		reasons = append(reasons, fmt.Sprintf("CPC up %.0f%% (%.2f → %.2f)", deltas.CPCChange, baseline.CPC, current.CPC))
		actions = append(actions, "Review bids and audience overlap")
	}
	if severity.Rank() >= models.SeverityHigh.Rank() {
		actions = append(actions, "Pause the underperforming creative if the decline continues")
	}
	return severity, reasons, actions
}

// FatigueAlertInput turns a promotable signal into an alert proposal.
func FatigueAlertInput(signal models.FatigueSignal, chatID int64) CreateAlertInput {
	name := signal.EntityName
	if name == "" {
		name = signal.EntityID
	}
	return CreateAlertInput{
		ClientID:         signal.ClientID,
		Channel:          signal.Channel,
		CheckID:          FatigueCheckID,
		Type:             models.AlertTypeFatigue,
		Severity:         signal.Severity,
		Title:            fmt.Sprintf("Creative fatigue on %s %s", signal.EntityType, name),
		ShortDescription: strings.Join(signal.Reasons, "; "),
		Impact:           "Fatigued creatives deliver to the same people at rising cost.",
		SuggestedActions: signal.Actions,
		Details: models.AlertDetails{
			Kind: models.DetailKindFatigue,
			Fatigue: &models.FatigueDetails{
				SignalID:   signal.ID.Hex(),
				EntityType: signal.EntityType,
				EntityID:   signal.EntityID,
				EntityName: signal.EntityName,
				Current:    signal.Current,
				Baseline:   signal.Baseline,
				Deltas:     signal.Deltas,
				Reasons:    signal.Reasons,
			},
		},
		Fingerprint:  FatigueFingerprint(signal),
		NotifyChatID: chatID,
	}
}
