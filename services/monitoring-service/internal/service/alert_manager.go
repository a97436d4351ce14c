package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/grigta/adpulse/pkg/cache"
	"github.com/grigta/adpulse/pkg/database"
	"github.com/grigta/adpulse/pkg/logger"
	"github.com/grigta/adpulse/pkg/messaging"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

type CreateOutcome string

const (
	OutcomeCreated            CreateOutcome = "created"
	OutcomeSkippedAlreadyOpen CreateOutcome = "skipped_already_open"
	OutcomeSkippedDuplicate   CreateOutcome = "skipped_duplicate"
	OutcomeFailed             CreateOutcome = "failed"
)

const (
	SystemActor         = "system"
	AutoResolveReason   = "auto_resolved: check reported healthy"
	RecoveredReason     = "auto_resolved: entity no longer fatigued"
	SupersededReason    = "auto_resolved: superseded by a newer alert"
	summaryCacheKeyAll  = "monitoring:summary:_all"
	summaryCacheKeyFmt  = "monitoring:summary:%s"
	defaultPreviewLimit = 5
	defaultSummaryTTL   = time.Minute
)

// CreateAlertInput is what a check or the fatigue detector proposes.
type CreateAlertInput struct {
	ClientID         string
	Channel          models.Channel
	CheckID          string
	Type             models.AlertType
	Severity         models.Severity
	Title            string
	ShortDescription string
	Impact           string
	SuggestedActions []string
	Details          models.AlertDetails
	Fingerprint      string
	// NotifyChatID overrides the notifier's default chat for this client.
	NotifyChatID int64
}

func (in CreateAlertInput) validate() error {
	switch {
	case in.ClientID == "":
		return fmt.Errorf("%w: client id is required", ErrInvalidAlert)
	case in.CheckID == "":
		return fmt.Errorf("%w: check id is required", ErrInvalidAlert)
	case in.Fingerprint == "":
		return fmt.Errorf("%w: fingerprint is required", ErrInvalidAlert)
	case in.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidAlert)
	case !in.Channel.Valid():
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidAlert, in.Channel)
	case !in.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAlert, in.Type)
	case !in.Severity.Valid():
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidAlert, in.Severity)
	}
	if err := in.Details.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}
	return nil
}

type CreateResult struct {
	Outcome CreateOutcome
	Alert   *models.Alert
	Err     error
}

func (r CreateResult) Skipped() bool {
	return r.Outcome == OutcomeSkippedAlreadyOpen || r.Outcome == OutcomeSkippedDuplicate
}

// SummaryCache is satisfied by *cache.RedisCache.
type SummaryCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type AlertManagerConfig struct {
	PreviewLimit int
	SummaryTTL   time.Duration
}

// AlertManager owns the alert lifecycle: dedup on create, auto-resolve,
// manual transitions and the read paths.
type AlertManager struct {
	store     AlertStore
	publisher messaging.Publisher
	notifier  Notifier
	cache     SummaryCache
	logger    logger.Logger
	now       Clock

	previewLimit int
	summaryTTL   time.Duration
}

func NewAlertManager(
	store AlertStore,
	publisher messaging.Publisher,
	notifier Notifier,
	summaryCache SummaryCache,
	log logger.Logger,
	cfg AlertManagerConfig,
) *AlertManager {
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = defaultPreviewLimit
	}
	if cfg.SummaryTTL <= 0 {
		cfg.SummaryTTL = defaultSummaryTTL
	}
	return &AlertManager{
		store:        store,
		publisher:    publisher,
		notifier:     notifier,
		cache:        summaryCache,
		logger:       log,
		now:          time.Now,
		previewLimit: cfg.PreviewLimit,
		summaryTTL:   cfg.SummaryTTL,
	}
}

// CreateAlert inserts a new open alert. A uniqueness violation is a skip:
// an existing active alert yields skipped_already_open, a resolved one in
// the same bucket yields skipped_duplicate and is not reopened.
func (m *AlertManager) CreateAlert(ctx context.Context, in CreateAlertInput) CreateResult {
	if err := in.validate(); err != nil {
		alertsFailed.WithLabelValues(in.CheckID).Inc()
		return CreateResult{Outcome: OutcomeFailed, Err: err}
	}

	now := m.now().UTC()
	alert := &models.Alert{
		ClientID:         in.ClientID,
		Channel:          in.Channel,
		CheckID:          in.CheckID,
		Type:             in.Type,
		Severity:         in.Severity,
		Status:           models.AlertStatusOpen,
		Title:            in.Title,
		ShortDescription: in.ShortDescription,
		Impact:           in.Impact,
		SuggestedActions: in.SuggestedActions,
		Details:          in.Details,
		Fingerprint:      in.Fingerprint,
		DetectedAt:       now,
		UpdatedAt:        now,
	}

	err := m.store.Insert(ctx, alert)
	if err == nil {
		m.afterCreate(ctx, alert, in.NotifyChatID)
		return CreateResult{Outcome: OutcomeCreated, Alert: alert}
	}

	if !errors.Is(err, database.ErrDuplicate) {
		alertsFailed.WithLabelValues(in.CheckID).Inc()
		m.logger.WithError(err).WithFields(logger.Fields{
			"client_id":   in.ClientID,
			"fingerprint": in.Fingerprint,
		}).Error("Failed to insert alert")
		return CreateResult{Outcome: OutcomeFailed, Err: err}
	}

	existing, findErr := m.store.FindByFingerprint(ctx, in.ClientID, in.Fingerprint)
	if findErr != nil {
		// The row exists but could not be read back; it is still not ours to create.
		m.logger.WithError(findErr).WithField("fingerprint", in.Fingerprint).Warn("Failed to read existing alert after duplicate insert")
		alertsSkipped.WithLabelValues(string(OutcomeSkippedDuplicate), in.CheckID).Inc()
		return CreateResult{Outcome: OutcomeSkippedDuplicate}
	}

	if existing.Status.Active() {
		alertsSkipped.WithLabelValues(string(OutcomeSkippedAlreadyOpen), in.CheckID).Inc()
		return CreateResult{Outcome: OutcomeSkippedAlreadyOpen, Alert: existing}
	}

	alertsSkipped.WithLabelValues(string(OutcomeSkippedDuplicate), in.CheckID).Inc()
	m.logger.WithFields(logger.Fields{
		"client_id":   in.ClientID,
		"fingerprint": in.Fingerprint,
		"alert_id":    existing.ID.Hex(),
	}).Info("Recurrence suppressed: alert already resolved in this day bucket")
	return CreateResult{Outcome: OutcomeSkippedDuplicate, Alert: existing}
}

func (m *AlertManager) afterCreate(ctx context.Context, alert *models.Alert, chatID int64) {
	alertsCreated.WithLabelValues(string(alert.Severity), string(alert.Type), string(alert.Channel)).Inc()
	m.invalidateSummary(ctx, alert.ClientID)

	publishEvent(m.publisher, m.logger, EventAlertCreated, AlertEvent{
		AlertID:     alert.ID.Hex(),
		ClientID:    alert.ClientID,
		Channel:     string(alert.Channel),
		CheckID:     alert.CheckID,
		Severity:    string(alert.Severity),
		Status:      string(alert.Status),
		Fingerprint: alert.Fingerprint,
	})

	if alert.Severity != models.SeverityCritical || m.notifier == nil {
		return
	}
	if err := m.notifier.NotifyAlert(ctx, chatID, alert); err != nil {
		notificationsSent.WithLabelValues("error").Inc()
		m.logger.WithError(err).WithField("alert_id", alert.ID.Hex()).Warn("Failed to send alert notification")
		return
	}
	notificationsSent.WithLabelValues("sent").Inc()
}

// AutoResolveIfFixed resolves every active alert of the check on the channel.
func (m *AlertManager) AutoResolveIfFixed(ctx context.Context, clientID string, channel models.Channel, checkID string) (int64, error) {
	n, err := m.store.ResolveOpen(ctx,
		models.ResolveScope{ClientID: clientID, Channel: channel, CheckID: checkID},
		models.StatusTransition{
			From:   []models.AlertStatus{models.AlertStatusOpen, models.AlertStatusAcknowledged},
			To:     models.AlertStatusResolved,
			At:     m.now().UTC(),
			Actor:  SystemActor,
			Reason: AutoResolveReason,
		})
	if err != nil {
		return 0, fmt.Errorf("failed to auto-resolve %s/%s: %w", channel, checkID, err)
	}
	if n == 0 {
		return 0, nil
	}

	alertsResolved.WithLabelValues("auto").Add(float64(n))
	m.invalidateSummary(ctx, clientID)
	publishEvent(m.publisher, m.logger, EventAlertResolved, AlertEvent{
		ClientID: clientID,
		Channel:  string(channel),
		CheckID:  checkID,
		Status:   string(models.AlertStatusResolved),
		Actor:    SystemActor,
		Count:    n,
	})
	m.logger.WithFields(logger.Fields{
		"client_id": clientID,
		"channel":   channel,
		"check_id":  checkID,
		"resolved":  n,
	}).Info("Alerts auto-resolved")
	return n, nil
}

// ResolveRecoveredFatigue resolves the active fatigue alerts on the channel
// whose entity is not in stillFatigued. stillFatigued maps FatigueEntityKey
// to the fingerprint of the entity's current alert; older alerts of a
// still fatigued entity are resolved as superseded. An empty fingerprint
// keeps every alert of the entity.
func (m *AlertManager) ResolveRecoveredFatigue(ctx context.Context, clientID string, channel models.Channel, stillFatigued map[string]string) (int64, error) {
	active, err := m.store.List(ctx, clientID, models.AlertFilter{
		Channel:  channel,
		Type:     models.AlertTypeFatigue,
		Statuses: []models.AlertStatus{models.AlertStatusOpen, models.AlertStatusAcknowledged},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list fatigue alerts: %w", err)
	}

	var resolved int64
	for _, alert := range active {
		details := alert.Details.Fatigue
		if details == nil {
			continue
		}
		reason := RecoveredReason
		current, still := stillFatigued[FatigueEntityKey(details.EntityType, details.EntityID)]
		if still {
			if current == "" || current == alert.Fingerprint {
				continue
			}
			reason = SupersededReason
		}
		_, err := m.store.Transition(ctx, alert.ID.Hex(), models.StatusTransition{
			From:   []models.AlertStatus{models.AlertStatusOpen, models.AlertStatusAcknowledged},
			To:     models.AlertStatusResolved,
			At:     m.now().UTC(),
			Actor:  SystemActor,
			Reason: reason,
		})
		if errors.Is(err, database.ErrConflict) || errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return resolved, fmt.Errorf("failed to resolve fatigue alert %s: %w", alert.ID.Hex(), err)
		}
		resolved++
		publishEvent(m.publisher, m.logger, EventAlertResolved, AlertEvent{
			AlertID:     alert.ID.Hex(),
			ClientID:    clientID,
			Channel:     string(channel),
			CheckID:     alert.CheckID,
			Severity:    string(alert.Severity),
			Status:      string(models.AlertStatusResolved),
			Fingerprint: alert.Fingerprint,
			Actor:       SystemActor,
		})
	}

	if resolved > 0 {
		alertsResolved.WithLabelValues("auto").Add(float64(resolved))
		m.invalidateSummary(ctx, clientID)
		m.logger.WithFields(logger.Fields{
			"client_id": clientID,
			"channel":   channel,
			"resolved":  resolved,
		}).Info("Recovered fatigue alerts resolved")
	}
	return resolved, nil
}

// UpdateAlertStatus applies a manual transition. Moving an alert into the
// status it already has is a successful no-op.
func (m *AlertManager) UpdateAlertStatus(ctx context.Context, alertID string, status models.AlertStatus, actor, reason string) (*models.Alert, error) {
	var from []models.AlertStatus
	switch status {
	case models.AlertStatusAcknowledged:
		from = []models.AlertStatus{models.AlertStatusOpen}
	case models.AlertStatusResolved:
		from = []models.AlertStatus{models.AlertStatusOpen, models.AlertStatusAcknowledged}
	default:
		return nil, fmt.Errorf("%w: cannot move an alert to %q", ErrInvalidTransition, status)
	}

	current, err := m.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}

	updated, err := m.store.Transition(ctx, alertID, models.StatusTransition{
		From:   from,
		To:     status,
		At:     m.now().UTC(),
		Actor:  actor,
		Reason: reason,
	})
	if errors.Is(err, database.ErrConflict) {
		// Someone moved it first; re-read to decide between no-op and rejection.
		latest, getErr := m.GetAlert(ctx, alertID)
		if getErr != nil {
			return nil, getErr
		}
		if latest.Status == status {
			return latest, nil
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, latest.Status, status)
	}
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to update alert %s: %w", alertID, err)
	}

	eventType := EventAlertResolved
	if status == models.AlertStatusAcknowledged {
		eventType = EventAlertAcknowledged
		alertsAcknowledged.Inc()
	} else {
		alertsResolved.WithLabelValues("manual").Inc()
	}
	m.invalidateSummary(ctx, updated.ClientID)
	publishEvent(m.publisher, m.logger, eventType, AlertEvent{
		AlertID:     updated.ID.Hex(),
		ClientID:    updated.ClientID,
		Channel:     string(updated.Channel),
		CheckID:     updated.CheckID,
		Severity:    string(updated.Severity),
		Status:      string(updated.Status),
		Fingerprint: updated.Fingerprint,
		Actor:       actor,
	})
	return updated, nil
}

func (m *AlertManager) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	alert, err := m.store.GetByID(ctx, alertID)
	if errors.Is(err, database.ErrNotFound) || errors.Is(err, database.ErrInvalidID) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alert %s: %w", alertID, err)
	}
	return alert, nil
}

// GetOpenAlerts lists active alerts unless the filter names statuses explicitly.
func (m *AlertManager) GetOpenAlerts(ctx context.Context, clientID string, filter models.AlertFilter) ([]models.Alert, error) {
	if len(filter.Statuses) == 0 {
		filter.Statuses = []models.AlertStatus{models.AlertStatusOpen, models.AlertStatusAcknowledged}
	}
	return m.store.List(ctx, clientID, filter)
}

// GetAlertSummary groups active alerts by channel with a critical/high
// preview per channel. An empty clientID summarizes all clients.
func (m *AlertManager) GetAlertSummary(ctx context.Context, clientID string) (*models.AlertSummary, error) {
	key := summaryKey(clientID)
	if m.cache != nil {
		var cached models.AlertSummary
		err := m.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			cacheHits.Inc()
			return &cached, nil
		}
		cacheMisses.Inc()
		if !errors.Is(err, cache.ErrCacheMiss) {
			m.logger.WithError(err).Warn("Failed to read cached alert summary")
		}
	}

	active, err := m.store.List(ctx, clientID, models.AlertFilter{
		Statuses: []models.AlertStatus{models.AlertStatusOpen, models.AlertStatusAcknowledged},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load active alerts: %w", err)
	}

	summary := buildSummary(clientID, active, m.previewLimit, m.now().UTC())
	if m.cache != nil {
		if err := m.cache.Set(ctx, key, summary, m.summaryTTL); err != nil {
			m.logger.WithError(err).Warn("Failed to cache alert summary")
		}
	}
	return summary, nil
}

func buildSummary(clientID string, active []models.Alert, previewLimit int, now time.Time) *models.AlertSummary {
	summary := &models.AlertSummary{
		ClientID:    clientID,
		BySeverity:  map[models.Severity]int64{},
		ByChannel:   []models.ChannelSummary{},
		GeneratedAt: now,
	}

	byChannel := map[models.Channel]*models.ChannelSummary{}
	for _, alert := range active {
		summary.TotalOpen++
		summary.BySeverity[alert.Severity]++

		ch, ok := byChannel[alert.Channel]
		if !ok {
			ch = &models.ChannelSummary{
				Channel:    alert.Channel,
				BySeverity: map[models.Severity]int64{},
				Preview:    []models.Alert{},
			}
			byChannel[alert.Channel] = ch
		}
		ch.OpenCount++
		ch.BySeverity[alert.Severity]++
		if alert.Severity.Rank() >= models.SeverityHigh.Rank() {
			ch.Preview = append(ch.Preview, alert)
		}
	}

	for _, ch := range byChannel {
		sort.SliceStable(ch.Preview, func(i, j int) bool {
			a, b := ch.Preview[i], ch.Preview[j]
			if a.Severity.Rank() != b.Severity.Rank() {
				return a.Severity.Rank() > b.Severity.Rank()
			}
			return a.DetectedAt.After(b.DetectedAt)
		})
		if len(ch.Preview) > previewLimit {
			ch.Preview = ch.Preview[:previewLimit]
		}
		summary.ByChannel = append(summary.ByChannel, *ch)
	}
	sort.Slice(summary.ByChannel, func(i, j int) bool {
		return summary.ByChannel[i].Channel < summary.ByChannel[j].Channel
	})
	return summary
}

func summaryKey(clientID string) string {
	if clientID == "" {
		return summaryCacheKeyAll
	}
	return fmt.Sprintf(summaryCacheKeyFmt, clientID)
}

func (m *AlertManager) invalidateSummary(ctx context.Context, clientID string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Delete(ctx, summaryKey(clientID), summaryCacheKeyAll); err != nil {
		m.logger.WithError(err).Warn("Failed to invalidate alert summary cache")
	}
}
