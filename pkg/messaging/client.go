package messaging

import "context"

// Publisher is what services need to emit events. *RabbitMQ satisfies it.
type Publisher interface {
	Publish(exchange, routingKey string, message interface{}) error
}

// Consumer registers a handler on a queue. *RabbitMQ satisfies it.
type Consumer interface {
	ConsumeWithHandler(ctx context.Context, queueName, consumerName string, handler func([]byte) error) error
}

// NopPublisher drops every message. Used when the broker is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(string, string, interface{}) error { return nil }
