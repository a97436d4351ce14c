package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/grigta/adpulse/pkg/logger"
)

const (
	ExchangeMonitoringEvents   = "monitoring.events"
	ExchangeMonitoringCommands = "monitoring.commands"
	ExchangeDeadLetter         = "dead-letter"

	QueueMonitoringRun = "monitoring.run"
	RoutingKeyRun      = "run"
)

type RabbitMQ struct {
	mu        sync.Mutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	url       string
	consumers []ConsumerRegistration
	stopCh    chan struct{}
}

type ConsumerRegistration struct {
	QueueName    string
	ConsumerName string
	Handler      func([]byte) error
	Context      context.Context
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	logger.Info("Connected to RabbitMQ")

	rabbitmq := &RabbitMQ{
		conn:      conn,
		channel:   ch,
		url:       url,
		consumers: make([]ConsumerRegistration, 0),
		stopCh:    make(chan struct{}),
	}

	go rabbitmq.monitorConnection()

	return rabbitmq, nil
}

func (r *RabbitMQ) Close() error {
	close(r.stopCh)

	if err := r.channel.Close(); err != nil {
		return fmt.Errorf("failed to close channel: %w", err)
	}
	if err := r.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

func (r *RabbitMQ) IsHealthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil && !r.conn.IsClosed()
}

func (r *RabbitMQ) DeclareExchange(name, kind string, durable, autoDelete bool) error {
	return r.channel.ExchangeDeclare(name, kind, durable, autoDelete, false, false, nil)
}

func (r *RabbitMQ) DeclareQueue(name string, durable, autoDelete, exclusive bool, args amqp.Table) (amqp.Queue, error) {
	return r.channel.QueueDeclare(name, durable, autoDelete, exclusive, false, args)
}

func (r *RabbitMQ) BindQueue(queueName, routingKey, exchangeName string) error {
	return r.channel.QueueBind(queueName, routingKey, exchangeName, false, nil)
}

// Publish marshals message to JSON and publishes it as a persistent delivery.
func (r *RabbitMQ) Publish(exchange, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.channel.Publish(
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

func (r *RabbitMQ) ConsumeWithHandler(ctx context.Context, queueName, consumerName string, handler func([]byte) error) error {
	r.consumers = append(r.consumers, ConsumerRegistration{
		QueueName:    queueName,
		ConsumerName: consumerName,
		Handler:      handler,
		Context:      ctx,
	})

	return r.startConsumer(ctx, queueName, consumerName, handler)
}

func (r *RabbitMQ) startConsumer(ctx context.Context, queueName, consumerName string, handler func([]byte) error) error {
	msgs, err := r.channel.Consume(queueName, consumerName, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping consumer", logger.Field{Key: "queue", Value: queueName})
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Warn("Consumer channel closed", logger.Field{Key: "queue", Value: queueName})
					return
				}
				handleDelivery(queueName, msg, handler)
			}
		}
	}()

	logger.Info("Started consuming messages", logger.Field{Key: "queue", Value: queueName})
	return nil
}

// Acknowledger is the subset of amqp.Delivery used to settle a message.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// handleDelivery settles a message. A failed handler sends it to the
// dead-letter exchange instead of requeueing it forever.
func handleDelivery(queueName string, msg amqp.Delivery, handler func([]byte) error) {
	settle(queueName, msg.Body, msg, handler)
}

func settle(queueName string, body []byte, d Acknowledger, handler func([]byte) error) {
	if err := handler(body); err != nil {
		logger.Error("Failed to process message",
			logger.Field{Key: "queue", Value: queueName},
			logger.Field{Key: "error", Value: err.Error()},
		)
		d.Nack(false, false)
		return
	}
	d.Ack(false)
}

func (r *RabbitMQ) SetQos(prefetchCount int) error {
	return r.channel.Qos(prefetchCount, 0, false)
}

func (r *RabbitMQ) Reconnect() error {
	r.mu.Lock()
	if r.conn != nil && !r.conn.IsClosed() {
		r.conn.Close()
	}

	conn, err := amqp.Dial(r.url)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to reconnect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		r.mu.Unlock()
		return fmt.Errorf("failed to reopen channel: %w", err)
	}

	r.conn = conn
	r.channel = ch
	r.mu.Unlock()

	logger.Info("Reconnected to RabbitMQ")

	if err := r.SetupTopology(); err != nil {
		logger.Error("Failed to setup topology after reconnect", logger.Field{Key: "error", Value: err.Error()})
	}

	for _, consumer := range r.consumers {
		if err := r.startConsumer(consumer.Context, consumer.QueueName, consumer.ConsumerName, consumer.Handler); err != nil {
			logger.Error("Failed to restart consumer after reconnect",
				logger.Field{Key: "queue", Value: consumer.QueueName},
				logger.Field{Key: "error", Value: err.Error()},
			)
		}
	}

	return nil
}

func (r *RabbitMQ) monitorConnection() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if r.IsHealthy() {
				continue
			}
			logger.Warn("RabbitMQ connection lost, attempting to reconnect...")
			for i := 0; i < 5; i++ {
				if err := r.Reconnect(); err != nil {
					logger.Error("Failed to reconnect to RabbitMQ",
						logger.Field{Key: "attempt", Value: i + 1},
						logger.Field{Key: "error", Value: err.Error()},
					)
					time.Sleep(time.Duration(i+1) * time.Second)
				} else {
					break
				}
			}
		}
	}
}

type Message struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func NewMessage(msgType string, data interface{}) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Metadata:  make(map[string]interface{}),
	}
}

// PublishEvent wraps data in a Message and routes it by event type.
func (r *RabbitMQ) PublishEvent(eventType string, data interface{}) error {
	return r.Publish(ExchangeMonitoringEvents, eventType, NewMessage(eventType, data))
}

func (r *RabbitMQ) SetupTopology() error {
	if err := r.DeclareExchange(ExchangeMonitoringEvents, "topic", true, false); err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", ExchangeMonitoringEvents, err)
	}

	if err := r.DeclareExchange(ExchangeMonitoringCommands, "direct", true, false); err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", ExchangeMonitoringCommands, err)
	}

	if err := r.DeclareExchange(ExchangeDeadLetter, "topic", true, false); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}

	if _, err := r.DeclareQueue(QueueMonitoringRun, true, false, false, amqp.Table{
		"x-dead-letter-exchange":    ExchangeDeadLetter,
		"x-dead-letter-routing-key": QueueMonitoringRun,
	}); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", QueueMonitoringRun, err)
	}

	if err := r.BindQueue(QueueMonitoringRun, RoutingKeyRun, ExchangeMonitoringCommands); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", QueueMonitoringRun, err)
	}

	if err := r.CreateDLQ(QueueMonitoringRun); err != nil {
		return err
	}

	logger.Info("Monitoring topology setup completed")
	return nil
}

func (r *RabbitMQ) CreateDLQ(queueName string) error {
	dlqName := fmt.Sprintf("%s.dlq", queueName)

	_, err := r.DeclareQueue(dlqName, true, false, false, amqp.Table{
		"x-message-ttl": int32(86400000),
	})
	if err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	return r.BindQueue(dlqName, queueName, ExchangeDeadLetter)
}
