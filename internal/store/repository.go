// Package store defines interfaces for signal persistence and device
// state tracking. These abstractions allow swapping implementations
// (PostgreSQL, Redis, in-memory) without changing business logic.
package store

import (
	"context"

	"xray-go/internal/domain"
)

// SignalRepository defines the interface for durable signal storage.
// Implementations enforce uniqueness on (deviceId, timestamp) so a
// duplicate commit is detectable and rejectable rather than silently
// duplicated: Create returns domain.ErrDuplicateSignal on conflict.
type SignalRepository interface {
	// Create stores a new signal, assigning an ID when none is set.
	Create(ctx context.Context, signal *domain.Signal) error

	// List retrieves signals matching the filter criteria.
	List(ctx context.Context, filter domain.SignalFilter) ([]*domain.Signal, error)

	// GetByID retrieves a signal by its storage-assigned identifier.
	// Returns domain.ErrSignalNotFound when absent.
	GetByID(ctx context.Context, id string) (*domain.Signal, error)

	// GetByDeviceID retrieves all signals recorded for a device.
	GetByDeviceID(ctx context.Context, deviceID string) ([]*domain.Signal, error)

	// Update applies a partial update and returns the updated signal.
	// The applied result is re-validated before it is persisted; a
	// violation returns the validation error and leaves the record
	// unchanged.
	Update(ctx context.Context, id string, update *domain.SignalUpdate) (*domain.Signal, error)

	// Delete removes a signal and returns the removed record.
	Delete(ctx context.Context, id string) (*domain.Signal, error)
}
