package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/grigta/adpulse/pkg/logger"
	"github.com/grigta/adpulse/pkg/messaging"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
	"github.com/grigta/adpulse/services/monitoring-service/internal/service"
)

const MessageTypeRunRequested = "monitoring.run.requested"

type runEnvelope struct {
	ID   string            `json:"id"`
	Type string            `json:"type"`
	Data models.RunRequest `json:"data"`
}

// RunConsumer triggers monitoring passes from the command queue. Commands
// on the broker are trusted and run as the system principal.
type RunConsumer struct {
	consumer messaging.Consumer
	runner   service.Runner
	logger   logger.Logger
}

func NewRunConsumer(consumer messaging.Consumer, runner service.Runner, log logger.Logger) *RunConsumer {
	return &RunConsumer{consumer: consumer, runner: runner, logger: log}
}

func (c *RunConsumer) Start(ctx context.Context) error {
	if err := c.consumer.ConsumeWithHandler(ctx, messaging.QueueMonitoringRun, "monitoring-service", func(body []byte) error {
		return c.handle(ctx, body)
	}); err != nil {
		return fmt.Errorf("failed to consume %s: %w", messaging.QueueMonitoringRun, err)
	}
	c.logger.WithField("queue", messaging.QueueMonitoringRun).Info("Run consumer started")
	return nil
}

// handle returns nil for malformed messages so they are not redelivered.
// A run that cannot start at all is returned as an error and dead-lettered.
func (c *RunConsumer) handle(ctx context.Context, body []byte) error {
	var env runEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.logger.WithError(err).Warn("Dropping malformed run command")
		return nil
	}
	if env.Type != "" && env.Type != MessageTypeRunRequested {
		c.logger.WithField("type", env.Type).Warn("Dropping unexpected message type")
		return nil
	}

	req := env.Data
	if req.TriggeredBy == "" {
		req.TriggeredBy = models.SystemPrincipal.UserID
	}

	log := c.logger.WithFields(logger.Fields{"message_id": env.ID, "clients": len(req.ClientIDs)})
	result, err := c.runner.RunMonitoring(ctx, req)
	if err != nil {
		log.WithError(err).Error("Queued run failed")
		return err
	}
	log.WithFields(logger.Fields{
		"run_id":    result.RunID,
		"succeeded": result.ClientsSucceeded,
		"failed":    result.ClientsFailed,
	}).Info("Queued run completed")
	return nil
}
