//go:build integration

package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grigta/adpulse/pkg/testutil"
)

func TestRabbitMQ_RunCommandRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := testutil.StartRabbitMQContainer(ctx)
	require.NoError(t, err)
	defer container.Close(context.Background())

	mq, err := NewRabbitMQ(container.URI)
	require.NoError(t, err)
	defer mq.Close()
	require.True(t, mq.IsHealthy())
	require.NoError(t, mq.SetupTopology())

	received := make(chan *Message, 1)
	require.NoError(t, mq.ConsumeWithHandler(ctx, QueueMonitoringRun, "it-consumer", func(body []byte) error {
		var msg Message
		if err := json.Unmarshal(body, &msg); err != nil {
			return err
		}
		received <- &msg
		return nil
	}))

	sent := NewMessage("monitoring.run.requested", map[string][]string{"client_ids": {"client-a"}})
	require.NoError(t, mq.Publish(ExchangeMonitoringCommands, RoutingKeyRun, sent))

	select {
	case msg := <-received:
		assert.Equal(t, sent.ID, msg.ID)
		assert.Equal(t, "monitoring.run.requested", msg.Type)
	case <-time.After(10 * time.Second):
		t.Fatal("run command was not delivered")
	}
}
