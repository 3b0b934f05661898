package store

import (
	"context"
	"time"
)

// DeviceState is the per-device ingestion state kept alongside the
// durable signal records: when the device was last heard from and how
// many signals have been committed for it.
type DeviceState struct {
	DeviceID    string    `json:"deviceId"`
	LastSeen    time.Time `json:"lastSeen"`
	SignalCount int64     `json:"signalCount"`
}

// DeviceStateStore tracks per-device ingestion state. This is fast-path
// state, typically backed by Redis; losing it is tolerable, so writes
// from the pipeline are best effort. All methods must be safe for
// concurrent use.
type DeviceStateStore interface {
	// Touch records that a signal for the device was committed at seenAt,
	// incrementing the device's signal count.
	Touch(ctx context.Context, deviceID string, seenAt time.Time) error

	// Get retrieves the state for one device, or nil when the device has
	// never been seen.
	Get(ctx context.Context, deviceID string) (*DeviceState, error)

	// List retrieves the state of every known device.
	List(ctx context.Context) ([]*DeviceState, error)

	// Close releases any resources held by the store.
	Close() error
}
