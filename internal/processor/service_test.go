package processor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"xray-go/internal/domain"
	"xray-go/internal/queue"
	memoryqueue "xray-go/internal/queue/memory"
	memorystor "xray-go/internal/store/memory"
	"xray-go/internal/xray"
)

func newTestService(t *testing.T) (*Service, *memorystor.SignalRepository, *memorystor.DeviceStateStore) {
	t.Helper()
	signals := memorystor.NewSignalRepository()
	devices := memorystor.NewDeviceStateStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(nil, signals, devices, logger)
	return svc, signals, devices
}

func encodeEnvelope(t *testing.T, env *xray.Envelope) []byte {
	t.Helper()
	data, err := xray.Encode(env)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return data
}

func testEnvelope() *xray.Envelope {
	return &xray.Envelope{
		DeviceID:   "dev-1",
		CapturedAt: 1735683480000,
		Samples: []xray.Sample{
			{OffsetMillis: 0, Position: [3]float64{51.0, 12.0, 1.5}},
			{OffsetMillis: 1000, Position: [3]float64{51.001, 12.001, 2.5}},
		},
	}
}

func TestHandleMessagePersistsSignal(t *testing.T) {
	svc, signals, devices := newTestService(t)
	ctx := context.Background()

	msg := &queue.Message{Value: encodeEnvelope(t, testEnvelope())}
	if err := svc.handleMessage(ctx, msg); err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}

	persisted, err := signals.GetByDeviceID(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetByDeviceID() error = %v", err)
	}
	if len(persisted) != 1 {
		t.Fatalf("persisted %d signals, want 1", len(persisted))
	}

	got := persisted[0]
	if got.ID == "" {
		t.Error("persisted signal has no id")
	}
	if got.Timestamp != 1735683480000 {
		t.Errorf("Timestamp = %d, want 1735683480000", got.Timestamp)
	}
	if got.DataLength != 2 {
		t.Errorf("DataLength = %d, want 2", got.DataLength)
	}
	if got.DataVolume <= 0 {
		t.Errorf("DataVolume = %d, want > 0", got.DataVolume)
	}

	state, err := devices.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("devices.Get() error = %v", err)
	}
	if state == nil {
		t.Fatal("device state was not recorded")
	}
	if state.SignalCount != 1 {
		t.Errorf("SignalCount = %d, want 1", state.SignalCount)
	}
	if state.LastSeen.IsZero() {
		t.Error("LastSeen was not recorded")
	}
}

func TestHandleMessageRejectsMalformed(t *testing.T) {
	svc, signals, _ := newTestService(t)
	ctx := context.Background()

	err := svc.handleMessage(ctx, &queue.Message{Value: []byte("{not json")})
	if err == nil {
		t.Fatal("handleMessage() = nil, want error")
	}
	if !queue.IsPermanent(err) {
		t.Error("malformed message must be rejected permanently")
	}
	if !errors.Is(err, xray.ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed in chain", err)
	}

	all, _ := signals.List(ctx, domain.SignalFilter{})
	if len(all) != 0 {
		t.Errorf("persisted %d signals from a malformed message", len(all))
	}
}

func TestHandleMessageRejectsInvalid(t *testing.T) {
	svc, signals, devices := newTestService(t)
	ctx := context.Background()

	// Well-formed JSON, but no samples.
	err := svc.handleMessage(ctx, &queue.Message{Value: []byte(`{"dev-1": {"data": [], "time": 1}}`)})
	if err == nil {
		t.Fatal("handleMessage() = nil, want error")
	}
	if !queue.IsPermanent(err) {
		t.Error("invalid envelope must be rejected permanently")
	}
	var verrs xray.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error = %v, want ValidationErrors in chain", err)
	}
	if !verrs.Has(xray.CodeEmptySamples) {
		t.Errorf("errors %v missing empty_samples", verrs)
	}

	all, _ := signals.List(ctx, domain.SignalFilter{})
	if len(all) != 0 {
		t.Errorf("persisted %d signals from an invalid message", len(all))
	}
	state, _ := devices.Get(ctx, "dev-1")
	if state != nil {
		t.Error("rejected message must not touch device state")
	}
}

func TestHandleMessageRejectsDuplicate(t *testing.T) {
	svc, signals, devices := newTestService(t)
	ctx := context.Background()

	msg := &queue.Message{Value: encodeEnvelope(t, testEnvelope())}
	if err := svc.handleMessage(ctx, msg); err != nil {
		t.Fatalf("first delivery error = %v", err)
	}

	err := svc.handleMessage(ctx, msg)
	if err == nil {
		t.Fatal("second delivery = nil, want duplicate rejection")
	}
	if !queue.IsPermanent(err) {
		t.Error("duplicate must be rejected permanently, not requeued")
	}
	if !errors.Is(err, domain.ErrDuplicateSignal) {
		t.Errorf("error = %v, want ErrDuplicateSignal in chain", err)
	}

	all, _ := signals.GetByDeviceID(ctx, "dev-1")
	if len(all) != 1 {
		t.Errorf("persisted %d signals after redelivery, want 1", len(all))
	}
	state, _ := devices.Get(ctx, "dev-1")
	if state == nil || state.SignalCount != 1 {
		t.Errorf("device state = %+v, want SignalCount 1", state)
	}
}

func TestServiceConsumesFromQueue(t *testing.T) {
	signals := memorystor.NewSignalRepository()
	devices := memorystor.NewDeviceStateStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	q := memoryqueue.NewQueue(10)
	defer q.Close()

	svc := NewService(q, signals, devices, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Start(ctx) }()

	valid := encodeEnvelope(t, testEnvelope())
	if err := q.Publish(ctx, &queue.Message{Value: valid}); err != nil {
		t.Fatalf("Publish(valid) error = %v", err)
	}
	if err := q.Publish(ctx, &queue.Message{Value: []byte("garbage")}); err != nil {
		t.Fatalf("Publish(garbage) error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		all, _ := signals.List(ctx, domain.SignalFilter{})
		if len(all) == 1 && q.Rejected() == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("persisted=%d rejected=%d, want 1 and 1", len(all), q.Rejected())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
