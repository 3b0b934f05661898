// Package queue defines interfaces for message queue operations.
// This abstraction allows swapping broker implementations (RabbitMQ,
// Kafka, in-memory) without changing business logic.
package queue

import (
	"context"
	"errors"
)

// Message represents a message on the queue.
type Message struct {
	// Key identifies the message source (the device id for telemetry).
	// Brokers that partition use it for ordering; others may ignore it.
	Key []byte

	// Value is the message payload.
	Value []byte

	// Headers contains optional metadata.
	Headers map[string]string
}

// Producer defines the interface for publishing messages to a queue.
// Implementations must be safe for concurrent use. Publish failures are
// returned to the caller and are never retried internally; retry policy
// belongs to the caller.
type Producer interface {
	// Publish sends a message to the queue with durable delivery.
	Publish(ctx context.Context, msg *Message) error

	// Close releases any resources held by the producer.
	Close() error
}

// MessageHandler processes one delivered message. Returning nil
// acknowledges the message. Returning an error rejects it; the message
// is requeued for redelivery unless the error is marked Permanent.
type MessageHandler func(ctx context.Context, msg *Message) error

// Consumer defines the interface for consuming messages from a queue.
type Consumer interface {
	// Start begins consuming messages and calls the handler for each one.
	// This is a blocking call that runs until the context is canceled
	// or an unrecoverable error occurs. A message is always processed to
	// either acknowledgment or rejection, never abandoned.
	Start(ctx context.Context, handler MessageHandler) error

	// Close stops consuming and releases any resources.
	Close() error
}

// permanentError marks a processing failure that can never succeed on
// redelivery, such as a malformed or semantically invalid message.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err to tell the transport the message is poison:
// it must be rejected without requeue. A nil err returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether the handler marked the failure permanent.
// Transports use this to decide reject-vs-requeue, which keeps that
// decision a pure function of the error kind.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
