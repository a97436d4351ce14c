package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/grigta/adpulse/pkg/logger"
	"github.com/grigta/adpulse/pkg/middleware"
	"github.com/grigta/adpulse/services/monitoring-service/internal/checks"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
	"github.com/grigta/adpulse/services/monitoring-service/internal/repository"
	"github.com/grigta/adpulse/services/monitoring-service/internal/service"
)

const testSecret = "test-secret"

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) RunMonitoring(ctx context.Context, req models.RunRequest) (*models.RunResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RunResult), args.Error(1)
}

func alertInput(clientID, day string) service.CreateAlertInput {
	return service.CreateAlertInput{
		ClientID:         clientID,
		Channel:          models.ChannelMetaAds,
		CheckID:          "disapproved_ads",
		Type:             models.AlertTypeFundamentalCheck,
		Severity:         models.SeverityHigh,
		Title:            "2 disapproved ads",
		ShortDescription: "2 ads were rejected",
		SuggestedActions: []string{"Fix the ads"},
		Details: models.AlertDetails{
			Kind:           models.DetailKindDisapprovedAds,
			DisapprovedAds: &models.DisapprovedAdsDetails{AccountID: "act_1", LookbackDays: 7},
		},
		Fingerprint: service.Fingerprint("disapproved_ads", "", day),
	}
}

type HandlerTestSuite struct {
	suite.Suite
	ctx     context.Context
	cancel  context.CancelFunc
	auth    *middleware.AuthMiddleware
	runner  *MockRunner
	alerts  *service.AlertManager
	signals *repository.MemorySignalStore
	router  *gin.Engine
}

func (s *HandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	log := logger.New("panic", "text")
	s.auth = middleware.NewAuthMiddleware(testSecret)
	s.runner = new(MockRunner)
	s.alerts = service.NewAlertManager(repository.NewMemoryAlertStore(), nil, nil, nil, log, service.AlertManagerConfig{})
	s.signals = repository.NewMemorySignalStore()

	h := NewMonitoringHandler(
		s.runner,
		s.alerts,
		service.NewSignalManager(s.signals, log),
		checks.DefaultRegistry(),
		service.RolePolicy{},
		log,
	)
	s.router = gin.New()
	api := s.router.Group("/api/v1")
	api.Use(s.auth.Authenticate())
	h.RegisterRoutes(api)
}

func (s *HandlerTestSuite) TearDownTest() {
	s.cancel()
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (s *HandlerTestSuite) token(userID, role string, clientIDs ...string) string {
	tok, err := s.auth.GenerateToken(userID, role, clientIDs, time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *HandlerTestSuite) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerTestSuite) createAlert(clientID string) *models.Alert {
	res := s.alerts.CreateAlert(s.ctx, alertInput(clientID, "2026-03-10"))
	s.Require().Equal(service.OutcomeCreated, res.Outcome)
	return res.Alert
}

func (s *HandlerTestSuite) TestRequiresToken() {
	w := s.do(http.MethodGet, "/api/v1/monitoring/alerts?client_id=client-a", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *HandlerTestSuite) TestTriggerRun_Admin() {
	result := &models.RunResult{RunID: "run-1", ClientsProcessed: 2, ClientsSucceeded: 2}
	s.runner.On("RunMonitoring", mock.Anything, models.RunRequest{TriggeredBy: "admin-1"}).Return(result, nil).Once()

	w := s.do(http.MethodPost, "/api/v1/monitoring/runs", s.token("admin-1", service.RoleAdmin), nil)

	s.Equal(http.StatusOK, w.Code)
	var got models.RunResult
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &got))
	s.Equal("run-1", got.RunID)
	s.Equal(2, got.ClientsSucceeded)
	s.runner.AssertExpectations(s.T())
}

func (s *HandlerTestSuite) TestTriggerRun_ManagerScopedToAssignedClients() {
	s.runner.On("RunMonitoring", mock.Anything, models.RunRequest{ClientIDs: []string{"client-a"}, TriggeredBy: "mgr-1"}).
		Return(&models.RunResult{RunID: "run-2"}, nil).Once()
	tok := s.token("mgr-1", service.RoleManager, "client-a")

	w := s.do(http.MethodPost, "/api/v1/monitoring/runs", tok, gin.H{"client_ids": []string{"client-a"}})
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/v1/monitoring/runs", tok, gin.H{"client_ids": []string{"client-a", "client-b"}})
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/v1/monitoring/runs", tok, nil)
	s.Equal(http.StatusForbidden, w.Code, "all-client runs need admin")

	s.runner.AssertNumberOfCalls(s.T(), "RunMonitoring", 1)
}

func (s *HandlerTestSuite) TestTriggerRun_ViewerForbidden() {
	w := s.do(http.MethodPost, "/api/v1/monitoring/runs", s.token("v-1", service.RoleViewer, "client-a"), gin.H{"client_ids": []string{"client-a"}})
	s.Equal(http.StatusForbidden, w.Code)
	s.runner.AssertNotCalled(s.T(), "RunMonitoring", mock.Anything, mock.Anything)
}

func (s *HandlerTestSuite) TestTriggerRun_UnknownClient() {
	s.runner.On("RunMonitoring", mock.Anything, mock.Anything).Return(nil, service.ErrClientNotFound).Once()
	w := s.do(http.MethodPost, "/api/v1/monitoring/runs", s.token("admin-1", service.RoleAdmin), gin.H{"client_ids": []string{"ghost"}})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlerTestSuite) TestListAlerts() {
	s.createAlert("client-a")
	s.createAlert("client-b")
	tok := s.token("v-1", service.RoleViewer, "client-a")

	w := s.do(http.MethodGet, "/api/v1/monitoring/alerts?client_id=client-a", tok, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var body struct {
		Alerts []models.Alert `json:"alerts"`
		Count  int            `json:"count"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal(1, body.Count)
	s.Equal("client-a", body.Alerts[0].ClientID)

	w = s.do(http.MethodGet, "/api/v1/monitoring/alerts?client_id=client-b", tok, nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/v1/monitoring/alerts?client_id=client-a&severity=urgent", tok, nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/monitoring/alerts?client_id=client-a&limit=-1", tok, nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerTestSuite) TestGetAlert_AuthorizesOnRecordClient() {
	alert := s.createAlert("client-b")
	path := "/api/v1/monitoring/alerts/" + alert.ID.Hex()

	w := s.do(http.MethodGet, path, s.token("v-1", service.RoleViewer, "client-a"), nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, path, s.token("v-2", service.RoleViewer, "client-b"), nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/v1/monitoring/alerts/not-an-id", s.token("admin-1", service.RoleAdmin), nil)
	s.Equal(http.StatusNotFound, w.Code)
}

// Record lookups authenticate first, so existing and missing ids look alike to anonymous callers.
func (s *HandlerTestSuite) TestRecordRoutesAuthenticateBeforeLookup() {
	log := logger.New("panic", "text")
	h := NewMonitoringHandler(s.runner, s.alerts, service.NewSignalManager(s.signals, log), checks.DefaultRegistry(), service.RolePolicy{}, log)
	bare := gin.New()
	h.RegisterRoutes(bare.Group("/api/v1"))

	existing := s.createAlert("client-a").ID.Hex()
	missing := "65f000000000000000000000"
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/monitoring/alerts/" + existing},
		{http.MethodGet, "/api/v1/monitoring/alerts/" + missing},
		{http.MethodPatch, "/api/v1/monitoring/alerts/" + existing + "/status"},
		{http.MethodPatch, "/api/v1/monitoring/alerts/" + missing + "/status"},
		{http.MethodPost, "/api/v1/monitoring/signals/" + missing + "/acknowledge"},
	} {
		w := httptest.NewRecorder()
		bare.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(`{"status":"acknowledged"}`)))
		s.Equal(http.StatusUnauthorized, w.Code, tc.method+" "+tc.path)
	}
}

func (s *HandlerTestSuite) TestUpdateAlertStatus() {
	alert := s.createAlert("client-a")
	path := "/api/v1/monitoring/alerts/" + alert.ID.Hex() + "/status"

	w := s.do(http.MethodPatch, path, s.token("v-1", service.RoleViewer, "client-a"), gin.H{"status": "acknowledged"})
	s.Equal(http.StatusForbidden, w.Code)

	mgr := s.token("mgr-1", service.RoleManager, "client-a")
	w = s.do(http.MethodPatch, path, mgr, gin.H{"status": "acknowledged"})
	s.Require().Equal(http.StatusOK, w.Code)
	var updated models.Alert
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &updated))
	s.Equal(models.AlertStatusAcknowledged, updated.Status)
	s.Equal("mgr-1", updated.AcknowledgedBy)

	w = s.do(http.MethodPatch, path, mgr, gin.H{"status": "resolved", "reason": "fixed in ads manager"})
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodPatch, path, mgr, gin.H{"status": "acknowledged"})
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodPatch, path, mgr, gin.H{"status": "closed"})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerTestSuite) TestAlertSummary() {
	s.createAlert("client-a")

	w := s.do(http.MethodGet, "/api/v1/monitoring/alerts/summary?client_id=client-a", s.token("v-1", service.RoleViewer, "client-a"), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var summary models.AlertSummary
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &summary))
	s.Equal(int64(1), summary.TotalOpen)
	s.Require().Len(summary.ByChannel, 1)
	s.Equal(models.ChannelMetaAds, summary.ByChannel[0].Channel)

	w = s.do(http.MethodGet, "/api/v1/monitoring/alerts/summary", s.token("v-1", service.RoleViewer, "client-a"), nil)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *HandlerTestSuite) TestSignals() {
	stored, err := s.signals.Upsert(s.ctx, &models.FatigueSignal{
		ClientID:   "client-a",
		Channel:    models.ChannelMetaAds,
		EntityType: models.EntityTypeAd,
		EntityID:   "ad-1",
		Day:        "2026-03-10",
		Severity:   models.SeverityMedium,
		DetectedAt: time.Now().UTC(),
	})
	s.Require().NoError(err)

	viewer := s.token("v-1", service.RoleViewer, "client-a")
	w := s.do(http.MethodGet, "/api/v1/monitoring/signals?client_id=client-a", viewer, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"count":1`)

	ackPath := "/api/v1/monitoring/signals/" + stored.ID.Hex() + "/acknowledge"
	w = s.do(http.MethodPost, ackPath, viewer, nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, ackPath, s.token("mgr-2", service.RoleManager, "client-b"), nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, ackPath, s.token("mgr-1", service.RoleManager, "client-a"), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var acked models.FatigueSignal
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &acked))
	s.True(acked.Acknowledged)
	s.Equal("mgr-1", acked.AcknowledgedBy)

	w = s.do(http.MethodGet, "/api/v1/monitoring/signals?client_id=client-a", viewer, nil)
	s.Contains(w.Body.String(), `"count":0`, "acknowledged signals are hidden by default")

	w = s.do(http.MethodPost, "/api/v1/monitoring/signals/"+"000000000000000000000000"+"/acknowledge", s.token("admin-1", service.RoleAdmin), nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlerTestSuite) TestListChecks() {
	w := s.do(http.MethodGet, "/api/v1/monitoring/checks", s.token("v-1", service.RoleViewer), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var body struct {
		Checks []checks.Info `json:"checks"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Len(body.Checks, len(checks.DefaultRegistry().All()))
}
