package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockSyncServer imitates the ad platform sync service that serves
// per entity metric rows over HTTP.
type MockSyncServer struct {
	Server     *httptest.Server
	mu         sync.RWMutex
	rows       map[string]json.RawMessage
	failures   map[string]int
	delay      time.Duration
	RequestLog []MockRequest
}

// MockRequest logs incoming requests
type MockRequest struct {
	Method    string
	Path      string
	Query     map[string]string
	Timestamp time.Time
}

func NewMockSyncServer() *MockSyncServer {
	m := &MockSyncServer{
		rows:     make(map[string]json.RawMessage),
		failures: make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handleRequest))
	return m
}

func (m *MockSyncServer) URL() string {
	return m.Server.URL
}

func (m *MockSyncServer) Close() {
	m.Server.Close()
}

// SetRows registers the JSON encoded rows returned for an account.
func (m *MockSyncServer) SetRows(accountID string, rows interface{}) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.rows[accountID] = data
	m.mu.Unlock()
	return nil
}

// FailAccount makes every request for accountID answer with status.
func (m *MockSyncServer) FailAccount(accountID string, status int) {
	m.mu.Lock()
	m.failures[accountID] = status
	m.mu.Unlock()
}

// SetDelay slows every response down, for timeout tests.
func (m *MockSyncServer) SetDelay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

func (m *MockSyncServer) Requests() []MockRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockRequest, len(m.RequestLog))
	copy(out, m.RequestLog)
	return out
}

func (m *MockSyncServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	query := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	m.mu.Lock()
	m.RequestLog = append(m.RequestLog, MockRequest{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     query,
		Timestamp: time.Now(),
	})
	delay := m.delay
	status, failing := m.failures[query["account_id"]]
	rows, ok := m.rows[query["account_id"]]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")

	if failing {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": "upstream failure"})
		return
	}

	if !ok {
		rows = json.RawMessage("[]")
	}
	json.NewEncoder(w).Encode(map[string]json.RawMessage{"data": rows})
}
