// Package processor consumes telemetry messages from the queue and
// drives each one through decode, validation, normalization and durable
// commit. A message is acknowledged if and only if its signal has been
// committed to storage; every failure is a permanent rejection, so a
// poison message can never loop through redelivery.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"xray-go/internal/domain"
	"xray-go/internal/metrics"
	"xray-go/internal/queue"
	"xray-go/internal/store"
	"xray-go/internal/xray"
)

// Service processes delivered messages and commits signals.
type Service struct {
	consumer queue.Consumer
	signals  store.SignalRepository
	devices  store.DeviceStateStore
	logger   *slog.Logger
}

// NewService creates a new processor service.
func NewService(
	consumer queue.Consumer,
	signals store.SignalRepository,
	devices store.DeviceStateStore,
	logger *slog.Logger,
) *Service {
	return &Service{
		consumer: consumer,
		signals:  signals,
		devices:  devices,
		logger:   logger,
	}
}

// Start begins consuming messages from the queue. Blocking; runs until
// the context is canceled.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting processor service")
	return s.consumer.Start(ctx, s.handleMessage)
}

// Close stops the underlying consumer.
func (s *Service) Close() error {
	return s.consumer.Close()
}

// handleMessage runs one delivered message to either acknowledgment
// (nil return) or rejection. Each returned error is marked permanent:
// malformed bytes and invalid envelopes never self-correct, and a
// storage failure is treated the same way rather than risking an
// endless redelivery loop. A transient storage outage therefore drops
// the message; that is a known limitation, not an accident.
func (s *Service) handleMessage(ctx context.Context, msg *queue.Message) error {
	metrics.MessagesConsumedTotal.Inc()
	start := time.Now()

	raw, err := xray.Decode(msg.Value)
	if err != nil {
		metrics.MessagesRejectedTotal.WithLabelValues(metrics.ReasonDecode).Inc()
		s.logger.Error("failed to decode message", "error", err)
		return queue.Permanent(err)
	}

	env, err := xray.Validate(raw)
	if err != nil {
		metrics.MessagesRejectedTotal.WithLabelValues(metrics.ReasonValidation).Inc()
		s.logger.Error("envelope failed validation", "error", err)
		return queue.Permanent(err)
	}

	signal, err := xray.Normalize(env)
	if err != nil {
		metrics.MessagesRejectedTotal.WithLabelValues(metrics.ReasonValidation).Inc()
		s.logger.Error("failed to normalize envelope", "deviceId", env.DeviceID, "error", err)
		return queue.Permanent(err)
	}

	if err := s.signals.Create(ctx, signal); err != nil {
		if errors.Is(err, domain.ErrDuplicateSignal) {
			// Redelivery after a crash between commit and ack. The first
			// commit stands; reject this copy.
			metrics.MessagesRejectedTotal.WithLabelValues(metrics.ReasonDuplicate).Inc()
			s.logger.Warn("duplicate signal rejected",
				"deviceId", signal.DeviceID,
				"timestamp", signal.Timestamp,
			)
			return queue.Permanent(err)
		}
		metrics.MessagesRejectedTotal.WithLabelValues(metrics.ReasonStorage).Inc()
		s.logger.Error("failed to persist signal",
			"deviceId", signal.DeviceID,
			"timestamp", signal.Timestamp,
			"error", err,
		)
		return queue.Permanent(fmt.Errorf("failed to persist signal: %w", err))
	}

	metrics.SignalsPersistedTotal.Inc()
	metrics.MessageProcessingLatency.Observe(time.Since(start).Seconds())

	// Best effort: losing device state never fails a committed message.
	if err := s.devices.Touch(ctx, signal.DeviceID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update device state", "deviceId", signal.DeviceID, "error", err)
	}

	s.logger.Info("signal persisted",
		"deviceId", signal.DeviceID,
		"timestamp", signal.Timestamp,
		"dataLength", signal.DataLength,
		"dataVolume", signal.DataVolume,
	)
	return nil
}
