package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grigta/adpulse/pkg/cache"
	"github.com/grigta/adpulse/pkg/logger"
	"github.com/grigta/adpulse/pkg/messaging"
	"github.com/grigta/adpulse/services/monitoring-service/internal/checks"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

const (
	defaultConcurrency   = 4
	defaultClientTimeout = 2 * time.Minute
	runLockKeyFmt        = "monitoring:run:lock:%s"
)

// MetricRefresher pulls fresh metrics for one account before checks run.
type MetricRefresher interface {
	Refresh(ctx context.Context, client models.ClientMonitoringConfig, account models.PlatformAccount) error
}

// RunLock is satisfied by *cache.RedisCache.
type RunLock interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

type OrchestratorConfig struct {
	Concurrency   int
	ClientTimeout time.Duration
	// LockTTL defaults to ClientTimeout.
	LockTTL time.Duration
}

// OrchestratorDeps lists collaborators. Refresher, Fatigue, Lock and
// Publisher are optional.
type OrchestratorDeps struct {
	Clients   ClientProvider
	Registry  *checks.Registry
	Sources   checks.Sources
	Refresher MetricRefresher
	Fatigue   *FatigueDetector
	Alerts    *AlertManager
	Lock      RunLock
	Publisher messaging.Publisher
	Logger    logger.Logger
}

// Orchestrator drives one monitoring pass across clients with bounded
// concurrency. One client's failure never stops the others.
type Orchestrator struct {
	deps OrchestratorDeps
	cfg  OrchestratorConfig
	now  Clock
}

func NewOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.ClientTimeout <= 0 {
		cfg.ClientTimeout = defaultClientTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.ClientTimeout
	}
	if deps.Registry == nil {
		deps.Registry = checks.DefaultRegistry()
	}
	return &Orchestrator{deps: deps, cfg: cfg, now: time.Now}
}

// Registry exposes the checks this orchestrator runs.
func (o *Orchestrator) Registry() *checks.Registry {
	return o.deps.Registry
}

// RunMonitoring executes one pass. It fails only when the client list
// cannot be loaded or a requested client does not exist; per-client
// failures are reported inside the result.
func (o *Orchestrator) RunMonitoring(ctx context.Context, req models.RunRequest) (*models.RunResult, error) {
	started := o.now()
	log := o.deps.Logger

	clients, err := o.deps.Clients.ListEnabledClients(ctx)
	if err != nil {
		runErrors.WithLabelValues(string(models.ErrorKindDataFetch)).Inc()
		return nil, fmt.Errorf("failed to load client configs: %w", err)
	}

	clients, err = selectClients(clients, req.ClientIDs)
	if err != nil {
		return nil, err
	}

	result := &models.RunResult{
		RunID:       uuid.NewString(),
		TriggeredBy: req.TriggeredBy,
		StartedAt:   started.UTC(),
		Clients:     make([]models.ClientRunResult, len(clients)),
	}

	log.WithFields(logger.Fields{
		"run_id":       result.RunID,
		"clients":      len(clients),
		"triggered_by": req.TriggeredBy,
	}).Info("Monitoring run started")

	sem := make(chan struct{}, o.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, client := range clients {
		wg.Add(1)
		go func(i int, client models.ClientMonitoringConfig) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			result.Clients[i] = o.runClient(ctx, client)
		}(i, client)
	}
	wg.Wait()

	for _, cr := range result.Clients {
		aggregate(result, cr)
	}
	result.FinishedAt = o.now().UTC()
	runDuration.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())

	publishEvent(o.deps.Publisher, log, EventRunCompleted, result)
	log.WithFields(logger.Fields{
		"run_id":         result.RunID,
		"succeeded":      result.ClientsSucceeded,
		"partial":        result.ClientsPartial,
		"failed":         result.ClientsFailed,
		"skipped":        result.ClientsSkipped,
		"alerts_created": result.AlertsCreated,
		"resolved":       result.AlertsResolved,
	}).Info("Monitoring run completed")
	return result, nil
}

func selectClients(all []models.ClientMonitoringConfig, ids []string) ([]models.ClientMonitoringConfig, error) {
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[string]models.ClientMonitoringConfig, len(all))
	for _, c := range all {
		byID[c.ClientID] = c
	}
	out := make([]models.ClientMonitoringConfig, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrClientNotFound, id)
		}
		out = append(out, c)
	}
	return out, nil
}

func aggregate(result *models.RunResult, cr models.ClientRunResult) {
	result.ClientsProcessed++
	switch cr.Status {
	case models.ClientRunSuccess:
		result.ClientsSucceeded++
	case models.ClientRunPartial:
		result.ClientsPartial++
	case models.ClientRunFailed:
		result.ClientsFailed++
	case models.ClientRunSkipped:
		result.ClientsSkipped++
	}
	result.ChecksRun += cr.ChecksRun
	result.AlertsCreated += cr.AlertsCreated
	result.AlertsSkipped += cr.AlertsSkipped
	result.AlertsResolved += cr.AlertsResolved
	result.FatigueSignals += cr.FatigueSignals
	result.Errors = append(result.Errors, cr.Errors...)
}

// clientRun accumulates one client's outcome.
type clientRun struct {
	result         models.ClientRunResult
	client         models.ClientMonitoringConfig
	sources        checks.Sources
	now            time.Time
	fatal          bool
	accountsFailed int
	health         map[healthKey]*checkHealth
	staleChannels  map[models.Channel]bool
	fatigue        map[models.Channel]*fatigueHealth
	log            logger.Logger
}

type healthKey struct {
	channel models.Channel
	checkID string
}

// checkHealth folds the results of one check across a client's accounts.
// Alerts share one fingerprint per channel, so the check is fixed only when
// no account still reports a problem.
type checkHealth struct {
	healthy bool
	blocked bool
}

// fatigueHealth maps the entities still flagged at promotable severity on
// one channel to the fingerprint of their current alert. A failed detection
// on any account blocks recovery.
type fatigueHealth struct {
	flagged map[string]string
	blocked bool
}

func (r *clientRun) fatigueOf(channel models.Channel) *fatigueHealth {
	h, ok := r.fatigue[channel]
	if !ok {
		h = &fatigueHealth{flagged: map[string]string{}}
		r.fatigue[channel] = h
	}
	return h
}

func (r *clientRun) healthOf(channel models.Channel, checkID string) *checkHealth {
	key := healthKey{channel: channel, checkID: checkID}
	h, ok := r.health[key]
	if !ok {
		h = &checkHealth{}
		r.health[key] = h
	}
	return h
}

func (r *clientRun) fail(kind models.ErrorKind, channel models.Channel, checkID string, err error) {
	runErrors.WithLabelValues(string(kind)).Inc()
	r.result.Errors = append(r.result.Errors, models.RunError{
		ClientID: r.client.ClientID,
		Channel:  channel,
		CheckID:  checkID,
		Kind:     kind,
		Message:  err.Error(),
	})
	r.log.WithError(err).WithFields(logger.Fields{
		"channel":  channel,
		"check_id": checkID,
		"kind":     kind,
	}).Warn("Client run error")
}

func (o *Orchestrator) runClient(ctx context.Context, client models.ClientMonitoringConfig) (res models.ClientRunResult) {
	start := time.Now()
	run := &clientRun{
		result: models.ClientRunResult{ClientID: client.ClientID},
		client:        client,
		now:           o.now(),
		health:        map[healthKey]*checkHealth{},
		staleChannels: map[models.Channel]bool{},
		fatigue:       map[models.Channel]*fatigueHealth{},
		log:           o.deps.Logger.WithField("client_id", client.ClientID),
	}

	defer func() {
		if p := recover(); p != nil {
			run.fatal = true
			run.fail(models.ErrorKindInternal, "", "", fmt.Errorf("panic: %v", p))
			run.log.WithField("stack", string(debug.Stack())).Error("Recovered from panic in client run")
		}
		res = run.finish(time.Since(start))
		clientRuns.WithLabelValues(string(res.Status)).Inc()
	}()

	if problems := client.ValidationErrors(); len(problems) > 0 {
		for _, p := range problems {
			run.fail(models.ErrorKindConfiguration, "", "", errors.New(p))
		}
		run.log.Warn("Client skipped: configuration needs manual setup")
		run.result.Status = models.ClientRunSkipped
		return run.result
	}

	if o.deps.Lock != nil {
		key := fmt.Sprintf(runLockKeyFmt, client.ClientID)
		token, err := o.deps.Lock.AcquireLock(ctx, key, o.cfg.LockTTL)
		switch {
		case errors.Is(err, cache.ErrLockHeld):
			run.log.Info("Client skipped: another run holds its lock")
			run.result.Status = models.ClientRunSkipped
			return run.result
		case err != nil:
			run.log.WithError(err).Warn("Failed to acquire client run lock, continuing without it")
		default:
			defer func() {
				if err := o.deps.Lock.ReleaseLock(context.Background(), key, token); err != nil {
					run.log.WithError(err).Warn("Failed to release client run lock")
				}
			}()
		}
	}

	cctx, cancel := context.WithTimeout(ctx, o.cfg.ClientTimeout)
	defer cancel()

	run.sources = o.deps.Sources
	if run.sources.Site != nil {
		run.sources.Site = checks.NewMemoProbe(run.sources.Site)
	}

	accounts := client.EnabledAccounts()
	for i := range accounts {
		if o.timedOut(cctx, run) {
			return run.result
		}
		o.runAccount(cctx, run, &accounts[i])
	}
	if len(accounts) > 0 && run.accountsFailed == len(accounts) {
		run.fatal = true
	}

	if client.Website != nil {
		for _, channel := range []models.Channel{models.ChannelWebsite, models.ChannelTracking} {
			for _, check := range o.deps.Registry.ForChannel(channel) {
				if o.timedOut(cctx, run) {
					return run.result
				}
				o.runCheck(cctx, run, check, checks.Target{Client: client, Channel: channel, Now: run.now})
			}
		}
	}

	if o.timedOut(cctx, run) {
		return run.result
	}
	o.resolveFixed(cctx, run)
	o.resolveRecoveredFatigue(cctx, run)
	return run.result
}

// resolveRecoveredFatigue closes fatigue alerts for entities the detector
// no longer flags at promotable severity on any account of the channel.
func (o *Orchestrator) resolveRecoveredFatigue(ctx context.Context, run *clientRun) {
	channels := make([]models.Channel, 0, len(run.fatigue))
	for channel, h := range run.fatigue {
		if !h.blocked && !run.staleChannels[channel] {
			channels = append(channels, channel)
		}
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	for _, channel := range channels {
		n, err := o.deps.Alerts.ResolveRecoveredFatigue(ctx, run.client.ClientID, channel, run.fatigue[channel].flagged)
		run.result.AlertsResolved += n
		if err != nil {
			run.fail(models.ErrorKindAlert, channel, FatigueCheckID, err)
		}
	}
}

// resolveFixed auto-resolves each check that was healthy on every account
// that reported data. A failed refresh on the channel, an error or a
// finding on any account keeps the alerts open.
func (o *Orchestrator) resolveFixed(ctx context.Context, run *clientRun) {
	keys := make([]healthKey, 0, len(run.health))
	for key, h := range run.health {
		if h.healthy && !h.blocked && !run.staleChannels[key.channel] {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].channel != keys[j].channel {
			return keys[i].channel < keys[j].channel
		}
		return keys[i].checkID < keys[j].checkID
	})

	for _, key := range keys {
		n, err := o.deps.Alerts.AutoResolveIfFixed(ctx, run.client.ClientID, key.channel, key.checkID)
		if err != nil {
			run.fail(models.ErrorKindAlert, key.channel, key.checkID, err)
			continue
		}
		run.result.AlertsResolved += n
	}
}

// timedOut records a timeout once and reports whether work must stop.
func (o *Orchestrator) timedOut(ctx context.Context, run *clientRun) bool {
	if ctx.Err() == nil {
		return false
	}
	if !run.fatal {
		run.fatal = true
		kind := models.ErrorKindTimeout
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = models.ErrorKindInternal
		}
		run.fail(kind, "", "", fmt.Errorf("client run aborted: %w", ctx.Err()))
	}
	return true
}

func (o *Orchestrator) runAccount(ctx context.Context, run *clientRun, account *models.PlatformAccount) {
	if o.deps.Refresher != nil {
		syncStart := time.Now()
		err := o.deps.Refresher.Refresh(ctx, run.client, *account)
		metricSyncDuration.WithLabelValues(string(account.Channel)).Observe(time.Since(syncStart).Seconds())
		if err != nil {
			// Stale metrics must not produce or resolve alerts.
			run.accountsFailed++
			run.staleChannels[account.Channel] = true
			run.fail(errorKind(ctx, models.ErrorKindDataFetch), account.Channel, "", fmt.Errorf("metric refresh for account %s: %w", account.AccountID, err))
			return
		}
	}

	for _, check := range o.deps.Registry.ForChannel(account.Channel) {
		if ctx.Err() != nil {
			return
		}
		o.runCheck(ctx, run, check, checks.Target{
			Client:  run.client,
			Account: account,
			Channel: account.Channel,
			Now:     run.now,
		})
	}

	if o.deps.Fatigue != nil && ctx.Err() == nil {
		o.runFatigue(ctx, run, *account)
	}
}

func (o *Orchestrator) runCheck(ctx context.Context, run *clientRun, check checks.Check, target checks.Target) {
	defer func() {
		if p := recover(); p != nil {
			checkResults.WithLabelValues(check.ID(), "panic").Inc()
			run.healthOf(target.Channel, check.ID()).blocked = true
			run.fail(models.ErrorKindCheck, target.Channel, check.ID(), fmt.Errorf("check panicked: %v", p))
		}
	}()

	start := time.Now()
	result, err := check.Run(ctx, run.sources, target)
	checkDuration.WithLabelValues(check.ID()).Observe(time.Since(start).Seconds())
	run.result.ChecksRun++
	health := run.healthOf(target.Channel, check.ID())

	if err != nil {
		health.blocked = true
		checkResults.WithLabelValues(check.ID(), "error").Inc()
		run.fail(errorKind(ctx, models.ErrorKindCheck), target.Channel, check.ID(), err)
		return
	}
	if result == nil {
		result = models.NoData()
	}

	switch {
	case result.NoData:
		checkResults.WithLabelValues(check.ID(), "no_data").Inc()
	case result.Status == models.CheckStatusOK:
		checkResults.WithLabelValues(check.ID(), string(result.Status)).Inc()
		health.healthy = true
	default:
		checkResults.WithLabelValues(check.ID(), string(result.Status)).Inc()
		health.blocked = true
		if result.AlertData == nil {
			run.fail(models.ErrorKindCheck, target.Channel, check.ID(), fmt.Errorf("%s result without alert data", result.Status))
			return
		}
		data := result.AlertData
		alertType := data.Type
		if alertType == "" {
			alertType = models.AlertTypeFundamentalCheck
		}
		o.recordCreate(run, target.Channel, check.ID(), o.deps.Alerts.CreateAlert(ctx, CreateAlertInput{
			ClientID:         run.client.ClientID,
			Channel:          target.Channel,
			CheckID:          check.ID(),
			Type:             alertType,
			Severity:         data.Severity,
			Title:            data.Title,
			ShortDescription: data.ShortDescription,
			Impact:           data.Impact,
			SuggestedActions: data.SuggestedActions,
			Details:          result.Details,
			Fingerprint:      CheckFingerprint(check, target.Channel, run.now, run.client.Location()),
			NotifyChatID:     run.client.NotifyChatID,
		}))
	}
}

func (o *Orchestrator) runFatigue(ctx context.Context, run *clientRun, account models.PlatformAccount) {
	health := run.fatigueOf(account.Channel)
	defer func() {
		if p := recover(); p != nil {
			health.blocked = true
			run.fail(models.ErrorKindCheck, account.Channel, FatigueCheckID, fmt.Errorf("fatigue detector panicked: %v", p))
		}
	}()

	signals, err := o.deps.Fatigue.Detect(ctx, run.client, account)
	if err != nil {
		health.blocked = true
		run.fail(errorKind(ctx, models.ErrorKindCheck), account.Channel, FatigueCheckID, err)
		return
	}
	run.result.FatigueSignals += len(signals)

	for _, signal := range signals {
		if !signal.Promotable() {
			continue
		}
		input := FatigueAlertInput(signal, run.client.NotifyChatID)
		res := o.deps.Alerts.CreateAlert(ctx, input)
		if res.Outcome == OutcomeCreated {
			run.result.SignalsPromoted++
		}
		current := ""
		if res.Err == nil {
			current = input.Fingerprint
		}
		key := FatigueEntityKey(signal.EntityType, signal.EntityID)
		if prev, seen := health.flagged[key]; !seen || prev != "" {
			health.flagged[key] = current
		}
		o.recordCreate(run, account.Channel, FatigueCheckID, res)
	}
}

func (o *Orchestrator) recordCreate(run *clientRun, channel models.Channel, checkID string, res CreateResult) {
	switch {
	case res.Outcome == OutcomeCreated:
		run.result.AlertsCreated++
	case res.Skipped():
		run.result.AlertsSkipped++
	default:
		run.fail(models.ErrorKindAlert, channel, checkID, fmt.Errorf("failed to create alert: %w", res.Err))
	}
}

func errorKind(ctx context.Context, def models.ErrorKind) models.ErrorKind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.ErrorKindTimeout
	}
	return def
}

// finish derives the client status: failed on a client-level error,
// partial when only individual steps failed.
func (r *clientRun) finish(elapsed time.Duration) models.ClientRunResult {
	r.result.DurationMs = elapsed.Milliseconds()
	switch {
	case r.result.Status == models.ClientRunSkipped:
	case r.fatal:
		r.result.Status = models.ClientRunFailed
	case len(r.result.Errors) > 0:
		r.result.Status = models.ClientRunPartial
	default:
		r.result.Status = models.ClientRunSuccess
	}
	return r.result
}
