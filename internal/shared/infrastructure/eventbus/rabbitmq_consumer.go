package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultWorkerQueue is the durable queue the worker binary consumes from.
const DefaultWorkerQueue = "slotline.workers"

// RabbitMQConsumer pulls scheduling events off the broker and dispatches
// them through a ConsumerRegistry. The queue is bound to exactly the
// routing keys the registered consumers declared, so consumers must be
// registered before the consumer connects.
type RabbitMQConsumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	registry *ConsumerRegistry
	logger   *slog.Logger
	quit     chan struct{}
	stopOnce sync.Once
}

// RabbitMQConsumerConfig configures the broker-side consumer. QueueName
// and Exchange fall back to the slotline defaults when empty.
type RabbitMQConsumerConfig struct {
	URL       string
	QueueName string
	Exchange  string
	Logger    *slog.Logger
}

// NewRabbitMQConsumer connects, declares the topology and binds the queue
// to every routing key the registry knows about.
func NewRabbitMQConsumer(cfg RabbitMQConsumerConfig, registry *ConsumerRegistry) (*RabbitMQConsumer, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultWorkerQueue
	}
	if cfg.Exchange == "" {
		cfg.Exchange = ExchangeName
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareTopology(ch, cfg.Exchange, cfg.QueueName); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	keys := registry.EventTypes()
	for _, key := range keys {
		if err := ch.QueueBind(cfg.QueueName, key, cfg.Exchange, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	cfg.Logger.Info("RabbitMQ consumer connected",
		"queue", cfg.QueueName,
		"exchange", cfg.Exchange,
		"bindings", len(keys),
	)

	return &RabbitMQConsumer{
		conn:     conn,
		channel:  ch,
		queue:    cfg.QueueName,
		registry: registry,
		logger:   cfg.Logger,
		quit:     make(chan struct{}),
	}, nil
}

// Start consumes deliveries until the context is cancelled or Close is
// called. It blocks; run it in its own goroutine.
func (c *RabbitMQConsumer) Start(ctx context.Context) error {
	// One unacked delivery at a time keeps event handling in order.
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	autoAck := false
	deliveries, err := c.channel.Consume(c.queue, "", autoAck, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consuming events", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.quit:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed unexpectedly")
			}
			c.handle(ctx, d)
		}
	}
}

// handle dispatches one delivery and settles it. Malformed payloads are
// dropped outright; dispatch failures get one redelivery and are then
// dropped rather than spinning on a broken handler.
func (c *RabbitMQConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var event ConsumedEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		c.logger.Error("dropping malformed event",
			"routing_key", d.RoutingKey,
			"error", err,
		)
		c.settle(d.Ack(false))
		return
	}
	if event.RoutingKey == "" {
		event.RoutingKey = d.RoutingKey
	}

	started := time.Now()
	if err := c.registry.Dispatch(ctx, &event); err != nil {
		c.logger.Error("event dispatch failed",
			"routing_key", event.RoutingKey,
			"event_id", event.EventID,
			"redelivered", d.Redelivered,
			"error", err,
		)
		c.settle(d.Nack(false, !d.Redelivered))
		return
	}

	c.logger.Debug("event handled",
		"routing_key", event.RoutingKey,
		"event_id", event.EventID,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	c.settle(d.Ack(false))
}

func (c *RabbitMQConsumer) settle(err error) {
	if err != nil {
		c.logger.Error("failed to settle delivery", "error", err)
	}
}

// Close stops the consume loop and shuts the connection down. Safe to
// call more than once.
func (c *RabbitMQConsumer) Close() error {
	c.stopOnce.Do(func() { close(c.quit) })

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Warn("error closing channel", "error", err)
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
