package service

import (
	"context"
	"time"

	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

// AlertStore persists alerts. Insert must fail with database.ErrDuplicate when
// an alert with the same (client_id, fingerprint) already exists, and
// Transition must fail with database.ErrConflict when the current status is
// not one of the allowed source statuses.
type AlertStore interface {
	Insert(ctx context.Context, alert *models.Alert) error
	FindByFingerprint(ctx context.Context, clientID, fingerprint string) (*models.Alert, error)
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	Transition(ctx context.Context, id string, t models.StatusTransition) (*models.Alert, error)
	ResolveOpen(ctx context.Context, scope models.ResolveScope, t models.StatusTransition) (int64, error)
	List(ctx context.Context, clientID string, f models.AlertFilter) ([]models.Alert, error)
}

// SignalStore persists fatigue signals keyed by entity and day.
type SignalStore interface {
	Upsert(ctx context.Context, signal *models.FatigueSignal) (*models.FatigueSignal, error)
	List(ctx context.Context, clientID string, f models.SignalFilter) ([]models.FatigueSignal, error)
	GetByID(ctx context.Context, id string) (*models.FatigueSignal, error)
	Acknowledge(ctx context.Context, id, actor string, at time.Time) (*models.FatigueSignal, error)
}

// ClientProvider supplies the client configs to monitor.
type ClientProvider interface {
	ListEnabledClients(ctx context.Context) ([]models.ClientMonitoringConfig, error)
}

// Clock abstracts time for deterministic tests.
type Clock func() time.Time
