package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/grigta/adpulse/pkg/logger"
	"github.com/grigta/adpulse/pkg/middleware"
	"github.com/grigta/adpulse/services/monitoring-service/internal/checks"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
	"github.com/grigta/adpulse/services/monitoring-service/internal/service"
)

const maxPageSize = 200

// MonitoringHandler exposes the run trigger and the alert and signal APIs.
// Every endpoint makes exactly one policy decision before doing work.
type MonitoringHandler struct {
	runner   service.Runner
	alerts   *service.AlertManager
	signals  *service.SignalManager
	registry *checks.Registry
	policy   service.Policy
	logger   logger.Logger
}

func NewMonitoringHandler(
	runner service.Runner,
	alerts *service.AlertManager,
	signals *service.SignalManager,
	registry *checks.Registry,
	policy service.Policy,
	log logger.Logger,
) *MonitoringHandler {
	return &MonitoringHandler{
		runner:   runner,
		alerts:   alerts,
		signals:  signals,
		registry: registry,
		policy:   policy,
		logger:   log,
	}
}

func (h *MonitoringHandler) RegisterRoutes(rg *gin.RouterGroup) {
	m := rg.Group("/monitoring")
	m.POST("/runs", h.TriggerRun)
	m.GET("/alerts", h.ListAlerts)
	m.GET("/alerts/summary", h.GetAlertSummary)
	m.GET("/alerts/:id", h.GetAlert)
	m.PATCH("/alerts/:id/status", h.UpdateAlertStatus)
	m.GET("/signals", h.ListSignals)
	m.POST("/signals/:id/acknowledge", h.AcknowledgeSignal)
	m.GET("/checks", h.ListChecks)
}

func record(c *gin.Context, start time.Time) {
	service.RecordHTTPRequest(c.Request.Method, c.FullPath(), time.Since(start).Seconds(), c.Writer.Status())
}

func principal(c *gin.Context) (models.Principal, bool) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return models.Principal{}, false
	}
	return models.Principal{UserID: claims.UserID, Role: claims.Role, ClientIDs: claims.ClientIDs}, true
}

func (h *MonitoringHandler) authorize(c *gin.Context, action service.Action, clientID string) (models.Principal, bool) {
	p, ok := principal(c)
	if !ok {
		return p, false
	}
	return p, h.allow(c, p, action, clientID)
}

// allow checks an already authenticated principal. Handlers that act on a
// stored record authenticate before loading it and call allow afterwards
// with the record's client.
func (h *MonitoringHandler) allow(c *gin.Context, p models.Principal, action service.Action, clientID string) bool {
	if err := h.policy.Evaluate(c.Request.Context(), p, action, clientID); err != nil {
		h.respondError(c, err)
		return false
	}
	return true
}

func (h *MonitoringHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAlertNotFound),
		errors.Is(err, service.ErrSignalNotFound),
		errors.Is(err, service.ErrClientNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidAlert):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

type runRequest struct {
	ClientIDs []string `json:"client_ids"`
}

// TriggerRun executes a monitoring pass synchronously. Per-client failures
// are part of a 200 response.
func (h *MonitoringHandler) TriggerRun(c *gin.Context) {
	start := time.Now()
	defer record(c, start)

	var req runRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	p, ok := principal(c)
	if !ok {
		return
	}
	scopes := req.ClientIDs
	if len(scopes) == 0 {
		scopes = []string{""}
	}
	for _, clientID := range scopes {
		if err := h.policy.Evaluate(c.Request.Context(), p, service.ActionRun, clientID); err != nil {
			h.respondError(c, err)
			return
		}
	}

	result, err := h.runner.RunMonitoring(c.Request.Context(), models.RunRequest{
		ClientIDs:   req.ClientIDs,
		TriggeredBy: p.UserID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func paging(c *gin.Context) (int, int, bool) {
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return 0, 0, false
		}
		limit = n
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

func (h *MonitoringHandler) ListAlerts(c *gin.Context) {
	start := time.Now()
	defer record(c, start)

	filter := models.AlertFilter{
		Channel:  models.Channel(c.Query("channel")),
		Severity: models.Severity(c.Query("severity")),
		Type:     models.AlertType(c.Query("type")),
		CheckID:  c.Query("check_id"),
	}
	if filter.Channel != "" && !filter.Channel.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown channel"})
		return
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown severity"})
		return
	}
	if filter.Type != "" && !filter.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown alert type"})
		return
	}
	if v := c.Query("status"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			status := models.AlertStatus(strings.TrimSpace(raw))
			if !status.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status"})
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	var ok bool
	if filter.Limit, filter.Offset, ok = paging(c); !ok {
		return
	}

	clientID := c.Query("client_id")
	if _, ok := h.authorize(c, service.ActionReadAlerts, clientID); !ok {
		return
	}

	alerts, err := h.alerts.GetOpenAlerts(c.Request.Context(), clientID, filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (h *MonitoringHandler) GetAlertSummary(c *gin.Context) {
	start := time.Now()
	defer record(c, start)

	clientID := c.Query("client_id")
	if _, ok := h.authorize(c, service.ActionReadAlerts, clientID); !ok {
		return
	}

	summary, err := h.alerts.GetAlertSummary(c.Request.Context(), clientID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *MonitoringHandler) GetAlert(c *gin.Context) {
	start := time.Now()
	defer record(c, start)

	p, ok := principal(c)
	if !ok {
		return
	}
	alert, err := h.alerts.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !h.allow(c, p, service.ActionReadAlerts, alert.ClientID) {
		return
	}
	c.JSON(http.StatusOK, alert)
}

type statusRequest struct {
	Status models.AlertStatus `json:"status" binding:"required"`
	Reason string             `json:"reason"`
}

func (h *MonitoringHandler) UpdateAlertStatus(c *gin.Context) {
	start := time.Now()
	defer record(c, start)

	p, ok := principal(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status"})
		return
	}

	alert, err := h.alerts.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !h.allow(c, p, service.ActionWriteAlerts, alert.ClientID) {
		return
	}

	updated, err := h.alerts.UpdateAlertStatus(c.Request.Context(), alert.ID.Hex(), req.Status, p.UserID, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *MonitoringHandler) ListSignals(c *gin.Context) {
	start := time.Now()
	defer record(c, start)

	filter := models.SignalFilter{
		Channel:     models.Channel(c.Query("channel")),
		MinSeverity: models.Severity(c.Query("min_severity")),
		Day:         c.Query("day"),
	}
	if filter.MinSeverity != "" && !filter.MinSeverity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown severity"})
		return
	}
	if v := c.Query("include_acked"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid include_acked"})
			return
		}
		filter.IncludeAcked = b
	}
	var ok bool
	if filter.Limit, filter.Offset, ok = paging(c); !ok {
		return
	}

	clientID := c.Query("client_id")
	if _, ok := h.authorize(c, service.ActionReadSignals, clientID); !ok {
		return
	}

	signals, err := h.signals.ListSignals(c.Request.Context(), clientID, filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

func (h *MonitoringHandler) AcknowledgeSignal(c *gin.Context) {
	start := time.Now()
	defer record(c, start)

	p, ok := principal(c)
	if !ok {
		return
	}
	signal, err := h.signals.GetSignal(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !h.allow(c, p, service.ActionAckSignals, signal.ClientID) {
		return
	}

	acked, err := h.signals.AcknowledgeSignal(c.Request.Context(), signal.ID.Hex(), p.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acked)
}

func (h *MonitoringHandler) ListChecks(c *gin.Context) {
	start := time.Now()
	defer record(c, start)

	if _, ok := h.authorize(c, service.ActionReadChecks, ""); !ok {
		return
	}

	all := h.registry.All()
	infos := make([]checks.Info, 0, len(all))
	for _, check := range all {
		infos = append(infos, checks.Describe(check))
	}
	c.JSON(http.StatusOK, gin.H{"checks": infos})
}
