package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/grigta/adpulse/pkg/logger"
	"github.com/grigta/adpulse/pkg/messaging"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

type captureConsumer struct {
	queue   string
	handler func([]byte) error
}

func (c *captureConsumer) ConsumeWithHandler(ctx context.Context, queueName, consumerName string, handler func([]byte) error) error {
	c.queue = queueName
	c.handler = handler
	return nil
}

func startConsumer(t *testing.T, runner *MockRunner) *captureConsumer {
	t.Helper()
	cc := &captureConsumer{}
	rc := NewRunConsumer(cc, runner, logger.New("panic", "text"))
	require.NoError(t, rc.Start(context.Background()))
	require.Equal(t, messaging.QueueMonitoringRun, cc.queue)
	return cc
}

func TestRunConsumer_RunsRequestedClients(t *testing.T) {
	runner := new(MockRunner)
	runner.On("RunMonitoring", mock.Anything, models.RunRequest{ClientIDs: []string{"client-a"}, TriggeredBy: "system"}).
		Return(&models.RunResult{RunID: "run-1"}, nil).Once()
	cc := startConsumer(t, runner)

	body, err := json.Marshal(messaging.NewMessage(MessageTypeRunRequested, models.RunRequest{ClientIDs: []string{"client-a"}}))
	require.NoError(t, err)

	assert.NoError(t, cc.handler(body))
	runner.AssertExpectations(t)
}

func TestRunConsumer_DropsMalformedMessages(t *testing.T) {
	runner := new(MockRunner)
	cc := startConsumer(t, runner)

	assert.NoError(t, cc.handler([]byte("{not json")))

	other, err := json.Marshal(messaging.NewMessage("alert.created", map[string]string{"alert_id": "x"}))
	require.NoError(t, err)
	assert.NoError(t, cc.handler(other))

	runner.AssertNotCalled(t, "RunMonitoring", mock.Anything, mock.Anything)
}

func TestRunConsumer_ReturnsRunFailure(t *testing.T) {
	runner := new(MockRunner)
	runner.On("RunMonitoring", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()
	cc := startConsumer(t, runner)

	body, err := json.Marshal(messaging.NewMessage(MessageTypeRunRequested, models.RunRequest{TriggeredBy: "ops"}))
	require.NoError(t, err)

	assert.ErrorIs(t, cc.handler(body), assert.AnError)
}
