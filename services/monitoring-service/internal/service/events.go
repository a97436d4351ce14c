package service

import (
	"github.com/grigta/adpulse/pkg/logger"
	"github.com/grigta/adpulse/pkg/messaging"
)

const (
	EventAlertCreated      = "alert.created"
	EventAlertAcknowledged = "alert.acknowledged"
	EventAlertResolved     = "alert.resolved"
	EventRunCompleted      = "monitoring.run.completed"
)

// AlertEvent is the payload of alert lifecycle events.
type AlertEvent struct {
	AlertID     string `json:"alert_id,omitempty"`
	ClientID    string `json:"client_id"`
	Channel     string `json:"channel"`
	CheckID     string `json:"check_id"`
	Severity    string `json:"severity,omitempty"`
	Status      string `json:"status"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Actor       string `json:"actor,omitempty"`
	Count       int64  `json:"count,omitempty"`
}

// publishEvent emits a lifecycle event. Broker failures are logged, never returned.
func publishEvent(pub messaging.Publisher, log logger.Logger, eventType string, data interface{}) {
	if pub == nil {
		return
	}
	msg := messaging.NewMessage(eventType, data)
	if err := pub.Publish(messaging.ExchangeMonitoringEvents, eventType, msg); err != nil {
		log.WithError(err).WithField("event", eventType).Warn("Failed to publish event")
	}
}
