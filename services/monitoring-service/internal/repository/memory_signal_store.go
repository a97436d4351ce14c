package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/grigta/adpulse/pkg/database"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemorySignalStore mirrors SignalRepository without a database.
type MemorySignalStore struct {
	mu      sync.RWMutex
	signals map[primitive.ObjectID]*models.FatigueSignal
	byKey   map[string]primitive.ObjectID
}

func NewMemorySignalStore() *MemorySignalStore {
	return &MemorySignalStore{
		signals: make(map[primitive.ObjectID]*models.FatigueSignal),
		byKey:   make(map[string]primitive.ObjectID),
	}
}

func signalKey(s *models.FatigueSignal) string {
	return s.ClientID + "|" + string(s.Channel) + "|" + string(s.EntityType) + "|" + s.EntityID + "|" + s.Day
}

func (m *MemorySignalStore) Upsert(ctx context.Context, signal *models.FatigueSignal) (*models.FatigueSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := signalKey(signal)
	stored := *signal
	if id, ok := m.byKey[key]; ok {
		prev := m.signals[id]
		stored.ID = id
		stored.Acknowledged = prev.Acknowledged
		stored.AcknowledgedBy = prev.AcknowledgedBy
		stored.AcknowledgedAt = prev.AcknowledgedAt
		stored.DetectedAt = prev.DetectedAt
	} else {
		stored.ID = primitive.NewObjectID()
		stored.Acknowledged = false
		stored.AcknowledgedBy = ""
		stored.AcknowledgedAt = nil
		m.byKey[key] = stored.ID
	}
	m.signals[stored.ID] = &stored

	out := stored
	return &out, nil
}

func (m *MemorySignalStore) List(ctx context.Context, clientID string, f models.SignalFilter) ([]models.FatigueSignal, error) {
	m.mu.RLock()
	out := []models.FatigueSignal{}
	for _, s := range m.signals {
		if s.ClientID != clientID {
			continue
		}
		if f.Channel != "" && s.Channel != f.Channel {
			continue
		}
		if f.Day != "" && s.Day != f.Day {
			continue
		}
		if !f.IncludeAcked && s.Acknowledged {
			continue
		}
		if f.MinSeverity != "" && s.Severity.Rank() < f.MinSeverity.Rank() {
			continue
		}
		out = append(out, *s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day > out[j].Day
		}
		return out[i].EntityID < out[j].EntityID
	})
	return paginate(out, f.Offset, f.Limit), nil
}

func (m *MemorySignalStore) GetByID(ctx context.Context, id string) (*models.FatigueSignal, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, database.ErrInvalidID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.signals[oid]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := *s
	return &out, nil
}

func (m *MemorySignalStore) Acknowledge(ctx context.Context, id, actor string, at time.Time) (*models.FatigueSignal, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, database.ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[oid]
	if !ok {
		return nil, database.ErrNotFound
	}
	if !s.Acknowledged {
		s.Acknowledged = true
		s.AcknowledgedBy = actor
		s.AcknowledgedAt = &at
	}
	out := *s
	return &out, nil
}
