package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/grigta/adpulse/pkg/database"
	"github.com/grigta/adpulse/pkg/logger"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

// SignalManager serves the read and acknowledge paths for fatigue signals.
type SignalManager struct {
	store  SignalStore
	logger logger.Logger
	now    Clock
}

func NewSignalManager(store SignalStore, log logger.Logger) *SignalManager {
	return &SignalManager{store: store, logger: log, now: time.Now}
}

func (m *SignalManager) ListSignals(ctx context.Context, clientID string, filter models.SignalFilter) ([]models.FatigueSignal, error) {
	return m.store.List(ctx, clientID, filter)
}

func (m *SignalManager) GetSignal(ctx context.Context, id string) (*models.FatigueSignal, error) {
	signal, err := m.store.GetByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) || errors.Is(err, database.ErrInvalidID) {
		return nil, ErrSignalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load signal %s: %w", id, err)
	}
	return signal, nil
}

// AcknowledgeSignal is idempotent; the first acknowledgement wins.
func (m *SignalManager) AcknowledgeSignal(ctx context.Context, id, actor string) (*models.FatigueSignal, error) {
	signal, err := m.store.Acknowledge(ctx, id, actor, m.now().UTC())
	if errors.Is(err, database.ErrNotFound) || errors.Is(err, database.ErrInvalidID) {
		return nil, ErrSignalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acknowledge signal %s: %w", id, err)
	}
	m.logger.WithFields(logger.Fields{
		"signal_id": id,
		"actor":     actor,
	}).Info("Fatigue signal acknowledged")
	return signal, nil
}
