package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/grigta/adpulse/pkg/logger"
)

type MiddlewareTestSuite struct {
	suite.Suite
	auth *AuthMiddleware
}

func (s *MiddlewareTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.auth = NewAuthMiddleware("test-secret")
}

func TestMiddlewareTestSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareTestSuite))
}

func (s *MiddlewareTestSuite) newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		claims, _ := ClaimsFromContext(c)
		if claims == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, claims.UserID+":"+claims.Role)
	})
	return r
}

func (s *MiddlewareTestSuite) TestAuthenticate_ValidToken() {
	token, err := s.auth.GenerateToken("u1", "manager", []string{"c1"}, time.Hour)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.newRouter(s.auth.Authenticate()).ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	s.Equal("u1:manager", w.Body.String())
}

func (s *MiddlewareTestSuite) TestAuthenticate_MissingToken() {
	w := httptest.NewRecorder()
	s.newRouter(s.auth.Authenticate()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *MiddlewareTestSuite) TestAuthenticate_WrongSecret() {
	token, err := NewAuthMiddleware("other").GenerateToken("u1", "admin", nil, time.Hour)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.newRouter(s.auth.Authenticate()).ServeHTTP(w, req)

	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *MiddlewareTestSuite) TestAuthenticate_ExpiredToken() {
	token, err := s.auth.GenerateToken("u1", "admin", nil, -time.Minute)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.newRouter(s.auth.Authenticate()).ServeHTTP(w, req)

	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *MiddlewareTestSuite) TestRateLimiter_BlocksAfterLimit() {
	rl := NewRateLimiter(2, time.Minute)
	r := s.newRouter(rl.Middleware())

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		r.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, last.Code)
	}

	s.Equal([]int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	s.NotEmpty(last.Header().Get("Retry-After"))
}

func (s *MiddlewareTestSuite) TestRateLimiter_RouteCost() {
	rl := NewRateLimiter(5, time.Minute).WithCost(http.MethodGet, "/ping", 3)
	r := s.newRouter(rl.Middleware())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	s.Equal(http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	s.Equal(http.StatusTooManyRequests, w.Code)
}

func (s *MiddlewareTestSuite) TestRateLimiter_RefillsAndEvicts() {
	rl := NewRateLimiter(1, time.Minute)
	now := time.Now()
	rl.now = func() time.Time { return now }

	ok, _ := rl.take("k", 1)
	s.True(ok)
	ok, retry := rl.take("k", 1)
	s.False(ok)
	s.InDelta(time.Minute.Seconds(), retry.Seconds(), 0.5)

	now = now.Add(2 * time.Minute)
	ok, _ = rl.take("k", 1)
	s.True(ok)

	now = now.Add(2 * time.Minute)
	rl.evict()
	s.Empty(rl.visitors)
}

func (s *MiddlewareTestSuite) TestCORS_Preflight() {
	r := s.newRouter(CORS([]string{"https://*.agency.io"}))
	r.OPTIONS("/ping", func(c *gin.Context) {})

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://north.agency.io")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	s.Equal(http.StatusNoContent, w.Code)
	s.Equal("https://north.agency.io", w.Header().Get("Access-Control-Allow-Origin"))
	s.Equal("86400", w.Header().Get("Access-Control-Max-Age"))
	s.Contains(w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func (s *MiddlewareTestSuite) TestCORS_RejectsUnknownOrigin() {
	r := s.newRouter(CORS([]string{"https://dash.adpulse.io"}))
	r.OPTIONS("/ping", func(c *gin.Context) {})

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	s.Equal(http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	s.Equal(http.StatusOK, w.Code)
	s.Empty(w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOriginMatcher(t *testing.T) {
	match := originMatcher([]string{"https://dash.adpulse.io", "https://*.agency.io"})

	assert.True(t, match("https://dash.adpulse.io"))
	assert.True(t, match("https://a.agency.io"))
	assert.False(t, match("https://agency.io"))
	assert.False(t, match("http://a.agency.io"))
	assert.True(t, originMatcher([]string{"*"})("https://anything"))
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(logger.NewNop()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "fixed")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "fixed", w.Header().Get(RequestIDHeader))
}
