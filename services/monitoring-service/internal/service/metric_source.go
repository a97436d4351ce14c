package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/grigta/adpulse/pkg/logger"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

const (
	metricsPath       = "/v1/metrics"
	defaultLookback   = 30
	defaultMaxRetries = 3
)

type HTTPMetricSourceConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries uint64
}

// HTTPMetricSource reads metric rows from the platform sync service.
// Server errors are retried with exponential backoff, 4xx are not.
type HTTPMetricSource struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	maxRetries uint64
	logger     logger.Logger
}

func NewHTTPMetricSource(cfg HTTPMetricSourceConfig, log logger.Logger) *HTTPMetricSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return &HTTPMetricSource{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		logger:     log,
	}
}

type metricsResponse struct {
	Data []models.MetricRow `json:"data"`
}

func (s *HTTPMetricSource) GetMetrics(ctx context.Context, ref models.AccountRef, entityType models.EntityType, dateRange models.DateRange) ([]models.MetricRow, error) {
	params := url.Values{}
	params.Set("client_id", ref.ClientID)
	params.Set("channel", string(ref.Channel))
	params.Set("account_id", ref.AccountID)
	params.Set("entity_type", string(entityType))
	params.Set("from", dateRange.From.Format("2006-01-02"))
	params.Set("to", dateRange.To.Format("2006-01-02"))

	var body []byte
	operation := func() error {
		var err error
		body, err = s.makeRequest(ctx, params)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		s.logger.WithError(err).WithFields(logger.Fields{
			"account_id": ref.AccountID,
			"retry_in":   wait.String(),
		}).Debug("Retrying metric fetch")
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, fmt.Errorf("failed to fetch %s metrics for %s: %w", entityType, ref.AccountID, err)
	}

	var resp metricsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode metrics response: %w", err)
	}

	// The sync service may return rows outside the range or without keys.
	rows := make([]models.MetricRow, 0, len(resp.Data))
	for _, row := range resp.Data {
		if !dateRange.Contains(row.Date) {
			continue
		}
		row.ClientID = ref.ClientID
		row.Channel = ref.Channel
		row.AccountID = ref.AccountID
		row.EntityType = entityType
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *HTTPMetricSource) makeRequest(ctx context.Context, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+metricsPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("sync service returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, backoff.Permanent(fmt.Errorf("sync service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	return body, nil
}

// MetricWriter is satisfied by *repository.MetricsRepository.
type MetricWriter interface {
	UpsertRows(ctx context.Context, rows []models.MetricRow) (int64, error)
}

// MetricSyncer copies the lookback window from the sync service into the
// local metric store before checks read it.
type MetricSyncer struct {
	source      *HTTPMetricSource
	writer      MetricWriter
	entityTypes []models.EntityType
	lookback    int
	logger      logger.Logger
	now         Clock
}

func NewMetricSyncer(source *HTTPMetricSource, writer MetricWriter, lookbackDays int, log logger.Logger) *MetricSyncer {
	if lookbackDays <= 0 {
		lookbackDays = defaultLookback
	}
	return &MetricSyncer{
		source:      source,
		writer:      writer,
		entityTypes: []models.EntityType{models.EntityTypeCampaign, models.EntityTypeAdSet, models.EntityTypeAd},
		lookback:    lookbackDays,
		logger:      log,
		now:         time.Now,
	}
}

func (s *MetricSyncer) Refresh(ctx context.Context, client models.ClientMonitoringConfig, account models.PlatformAccount) error {
	ref := models.AccountRef{ClientID: client.ClientID, Channel: account.Channel, AccountID: account.AccountID}
	window := models.LastDays(s.now(), client.Location(), s.lookback)
	synced := s.now().UTC()

	var total int64
	for _, entityType := range s.entityTypes {
		rows, err := s.source.GetMetrics(ctx, ref, entityType, window)
		if err != nil {
			return err
		}
		for i := range rows {
			rows[i].SyncedAt = synced
		}
		n, err := s.writer.UpsertRows(ctx, rows)
		if err != nil {
			return fmt.Errorf("failed to store %s metrics: %w", entityType, err)
		}
		total += n
	}

	s.logger.WithFields(logger.Fields{
		"client_id":  client.ClientID,
		"account_id": account.AccountID,
		"rows":       total,
	}).Debug("Metrics synced")
	return nil
}
