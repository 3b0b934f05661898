// Package producer constructs telemetry envelopes and publishes them
// onto the queue transport. It is the smoke-test entry point for the
// pipeline: a fixed known-good envelope, or randomized envelopes for an
// arbitrary device.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"xray-go/internal/metrics"
	"xray-go/internal/queue"
	"xray-go/internal/xray"
)

// ErrDataProcessing indicates the producer built an envelope that fails
// the shared validator. Such an envelope is never published, so the
// consumer never sees producer-originated malformed data as a distinct
// class.
var ErrDataProcessing = errors.New("data processing failed")

// Reference point the random samples are perturbed around.
const (
	refX = 51.0
	refY = 12.0
)

// sampleDeviceID is the device used by the fixed demonstration envelope.
const sampleDeviceID = "66bb584d4ae73e488c30a072"

// Service publishes telemetry envelopes via the queue transport.
type Service struct {
	producer queue.Producer
	logger   *slog.Logger
}

// NewService creates a new producer service.
func NewService(producer queue.Producer, logger *slog.Logger) *Service {
	return &Service{
		producer: producer,
		logger:   logger,
	}
}

// SendSample publishes the fixed, known-good demonstration envelope.
func (s *Service) SendSample(ctx context.Context) error {
	env := &xray.Envelope{
		DeviceID:   sampleDeviceID,
		CapturedAt: 1735683480000,
		Samples: []xray.Sample{
			{OffsetMillis: 762, Position: [3]float64{51.339764, 12.339223833333334, 1.2038000000000002}},
			{OffsetMillis: 1766, Position: [3]float64{51.33977733333333, 12.339211833333334, 1.531604}},
			{OffsetMillis: 2763, Position: [3]float64{51.339782, 12.339196166666667, 2.13906}},
		},
	}

	if err := s.publish(ctx, env, "sample"); err != nil {
		return err
	}

	s.logger.Info("sample envelope sent", "deviceId", env.DeviceID)
	return nil
}

// SendRandom publishes a randomized envelope for the given device. An
// empty deviceID generates a fresh random token. Returns the device id
// the envelope was published under.
func (s *Service) SendRandom(ctx context.Context, deviceID string) (string, error) {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	env := &xray.Envelope{
		DeviceID:   deviceID,
		CapturedAt: time.Now().UnixMilli(),
		Samples:    randomSamples(),
	}

	if err := s.publish(ctx, env, "random"); err != nil {
		return "", err
	}

	s.logger.Info("random envelope sent", "deviceId", deviceID, "samples", len(env.Samples))
	return deviceID, nil
}

// publish validates the envelope through the exact decode+validate path
// the consumer runs, then publishes the framed bytes. Publish failures
// surface unchanged; there is no retry here.
func (s *Service) publish(ctx context.Context, env *xray.Envelope, kind string) error {
	data, err := xray.Encode(env)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDataProcessing, err)
	}

	raw, err := xray.Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDataProcessing, err)
	}
	if _, err := xray.Validate(raw); err != nil {
		return fmt.Errorf("%w: %w", ErrDataProcessing, err)
	}

	start := time.Now()
	err = s.producer.Publish(ctx, &queue.Message{
		Key:   []byte(env.DeviceID),
		Value: data,
	})
	metrics.QueuePublishLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PublishFailuresTotal.Inc()
		return err
	}

	metrics.MessagesPublishedTotal.WithLabelValues(kind).Inc()
	return nil
}

// randomSamples generates 5 to 14 samples. Offsets start at the current
// time in millis and step by exactly 1000; positions are perturbed
// around the reference point.
func randomSamples() []xray.Sample {
	count := 5 + rand.Intn(10)
	base := time.Now().UnixMilli()

	samples := make([]xray.Sample, count)
	for i := range samples {
		samples[i] = xray.Sample{
			OffsetMillis: float64(base + int64(i)*1000),
			Position: [3]float64{
				refX + (rand.Float64()-0.5)*0.1,
				refY + (rand.Float64()-0.5)*0.1,
				rand.Float64() * 5,
			},
		}
	}
	return samples
}
