// Package rabbitmq provides the RabbitMQ-backed implementation of the
// queue interfaces. One connection and one channel are held for the
// process lifetime; the channel is the shared resource and only this
// package mutates its state.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"xray-go/internal/config"
	"xray-go/internal/queue"
)

// Transport implements queue.Producer and queue.Consumer over a single
// AMQP connection and channel.
type Transport struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     *config.RabbitMQConfig
	logger  *slog.Logger

	// publishMu serializes publishes: an AMQP channel is not safe for
	// concurrent writes.
	publishMu sync.Mutex

	closeOnce sync.Once
}

// NewTransport connects to the broker, opens a channel and declares the
// target queue as durable. Any failure here is fatal to process
// initialization: there is no partial-degraded mode.
func NewTransport(cfg *config.RabbitMQConfig, logger *slog.Logger) (*Transport, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(
		cfg.Queue,
		true,  // durable: the queue survives a broker restart
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %q: %w", cfg.Queue, err)
	}

	if err := channel.Qos(cfg.Prefetch, 0, false); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	logger.Info("connected to rabbitmq", "queue", cfg.Queue, "prefetch", cfg.Prefetch)

	return &Transport{
		conn:    conn,
		channel: channel,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Publish sends a message to the queue with persistent delivery mode.
// Failures surface to the caller unretried.
func (t *Transport) Publish(ctx context.Context, msg *queue.Message) error {
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	t.publishMu.Lock()
	defer t.publishMu.Unlock()

	err := t.channel.PublishWithContext(ctx,
		"",          // default exchange
		t.cfg.Queue, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      headers,
			Body:         msg.Value,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Start consumes deliveries with manual acknowledgment and calls the
// handler for each one. A nil handler result acks the delivery; an error
// rejects it, requeueing only when the error is not marked permanent.
func (t *Transport) Start(ctx context.Context, handler queue.MessageHandler) error {
	deliveries, err := t.channel.Consume(
		t.cfg.Queue,
		"",    // consumer tag: broker-generated
		false, // autoAck: ack only after durable commit
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	t.logger.Info("rabbitmq consumer started", "queue", t.cfg.Queue)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("rabbitmq consumer stopping due to context cancellation")
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed for queue %q", t.cfg.Queue)
			}

			if err := handler(ctx, &queue.Message{Value: d.Body}); err != nil {
				requeue := !queue.IsPermanent(err)
				t.logger.Error("rejecting message",
					"error", err,
					"requeue", requeue,
					"deliveryTag", d.DeliveryTag,
				)
				if nackErr := d.Nack(false, requeue); nackErr != nil {
					t.logger.Error("failed to nack message", "error", nackErr)
				}
				continue
			}

			if ackErr := d.Ack(false); ackErr != nil {
				t.logger.Error("failed to ack message", "error", ackErr)
			}
		}
	}
}

// Close drains the transport by closing the channel and then the
// connection, in that order. Teardown failures are logged, not
// propagated: no further recovery is possible at shutdown.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		if err := t.channel.Close(); err != nil {
			t.logger.Error("failed to close rabbitmq channel", "error", err)
		}
		if err := t.conn.Close(); err != nil {
			t.logger.Error("failed to close rabbitmq connection", "error", err)
		}
	})
	return nil
}
