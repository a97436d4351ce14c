package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/grigta/adpulse/pkg/database"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryAlertStore keeps alerts in process. It enforces the same
// (client_id, fingerprint) uniqueness as the database stores.
type MemoryAlertStore struct {
	mu            sync.RWMutex
	alerts        map[primitive.ObjectID]*models.Alert
	byFingerprint map[string]primitive.ObjectID
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{
		alerts:        make(map[primitive.ObjectID]*models.Alert),
		byFingerprint: make(map[string]primitive.ObjectID),
	}
}

func fingerprintKey(clientID, fingerprint string) string {
	return clientID + "\x00" + fingerprint
}

func (s *MemoryAlertStore) Insert(ctx context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fingerprintKey(alert.ClientID, alert.Fingerprint)
	if _, exists := s.byFingerprint[key]; exists {
		return database.ErrDuplicate
	}
	if alert.ID.IsZero() {
		alert.ID = primitive.NewObjectID()
	}
	stored := cloneAlert(*alert)
	s.alerts[alert.ID] = &stored
	s.byFingerprint[key] = alert.ID
	return nil
}

func (s *MemoryAlertStore) FindByFingerprint(ctx context.Context, clientID, fingerprint string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byFingerprint[fingerprintKey(clientID, fingerprint)]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := cloneAlert(*s.alerts[id])
	return &out, nil
}

func (s *MemoryAlertStore) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, database.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.alerts[oid]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := cloneAlert(*alert)
	return &out, nil
}

func (s *MemoryAlertStore) Transition(ctx context.Context, id string, t models.StatusTransition) (*models.Alert, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, database.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[oid]
	if !ok {
		return nil, database.ErrNotFound
	}
	if !statusIn(alert.Status, t.From) {
		return nil, database.ErrConflict
	}
	applyTransition(alert, t)
	out := cloneAlert(*alert)
	return &out, nil
}

func (s *MemoryAlertStore) ResolveOpen(ctx context.Context, scope models.ResolveScope, t models.StatusTransition) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resolved int64
	for _, alert := range s.alerts {
		if alert.ClientID != scope.ClientID || alert.Channel != scope.Channel || alert.CheckID != scope.CheckID {
			continue
		}
		if !statusIn(alert.Status, t.From) {
			continue
		}
		applyTransition(alert, t)
		resolved++
	}
	return resolved, nil
}

func (s *MemoryAlertStore) List(ctx context.Context, clientID string, f models.AlertFilter) ([]models.Alert, error) {
	s.mu.RLock()
	out := []models.Alert{}
	for _, alert := range s.alerts {
		if (clientID != "" && alert.ClientID != clientID) || !matchesFilter(alert, f) {
			continue
		}
		out = append(out, cloneAlert(*alert))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].ID.Hex() > out[j].ID.Hex()
		}
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	return paginate(out, f.Offset, f.Limit), nil
}

func matchesFilter(a *models.Alert, f models.AlertFilter) bool {
	if f.Channel != "" && a.Channel != f.Channel {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.CheckID != "" && a.CheckID != f.CheckID {
		return false
	}
	if len(f.Statuses) > 0 && !statusIn(a.Status, f.Statuses) {
		return false
	}
	return true
}

func statusIn(s models.AlertStatus, set []models.AlertStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func applyTransition(a *models.Alert, t models.StatusTransition) {
	at := t.At
	a.Status = t.To
	a.UpdatedAt = at
	switch t.To {
	case models.AlertStatusAcknowledged:
		a.AcknowledgedAt = &at
		a.AcknowledgedBy = t.Actor
	case models.AlertStatusResolved:
		a.ResolvedAt = &at
		a.ResolvedBy = t.Actor
		a.ResolutionReason = t.Reason
	}
}

func cloneAlert(a models.Alert) models.Alert {
	if a.SuggestedActions != nil {
		a.SuggestedActions = append([]string(nil), a.SuggestedActions...)
	}
	return a
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
