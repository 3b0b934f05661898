// Package memory provides in-memory implementations of the store
// interfaces, used for tests and development without external backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"xray-go/internal/domain"
)

// SignalRepository is an in-memory implementation of
// store.SignalRepository. It mirrors the production backend's semantics,
// including the uniqueness of (deviceId, timestamp).
type SignalRepository struct {
	mu sync.RWMutex

	// signals stores all records by their ID.
	signals map[string]*domain.Signal

	// byDeviceTime enforces the (deviceId, timestamp) uniqueness
	// constraint and detects duplicate commits.
	byDeviceTime map[string]string // device+timestamp key -> signal ID
}

// NewSignalRepository creates a new in-memory signal repository.
func NewSignalRepository() *SignalRepository {
	return &SignalRepository{
		signals:      make(map[string]*domain.Signal),
		byDeviceTime: make(map[string]string),
	}
}

func deviceTimeKey(deviceID string, timestamp int64) string {
	return fmt.Sprintf("%s@%d", deviceID, timestamp)
}

// Create stores a new signal, assigning an ID when none is set.
func (r *SignalRepository) Create(ctx context.Context, signal *domain.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := deviceTimeKey(signal.DeviceID, signal.Timestamp)
	if _, exists := r.byDeviceTime[key]; exists {
		return domain.ErrDuplicateSignal
	}

	if signal.ID == "" {
		signal.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = now
	}
	signal.UpdatedAt = now

	// Store a copy to prevent external modification
	signalCopy := copySignal(signal)
	r.signals[signal.ID] = signalCopy
	r.byDeviceTime[key] = signal.ID

	return nil
}

// List retrieves signals matching the filter criteria, newest first.
func (r *SignalRepository) List(ctx context.Context, filter domain.SignalFilter) ([]*domain.Signal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := []*domain.Signal{}
	for _, signal := range r.signals {
		if filter.DeviceID != "" && signal.DeviceID != filter.DeviceID {
			continue
		}
		results = append(results, copySignal(signal))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	start := filter.Offset
	if start > len(results) {
		start = len(results)
	}
	end := len(results)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}

	return results[start:end], nil
}

// GetByID retrieves a signal by its storage-assigned identifier.
func (r *SignalRepository) GetByID(ctx context.Context, id string) (*domain.Signal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	signal, exists := r.signals[id]
	if !exists {
		return nil, domain.ErrSignalNotFound
	}

	return copySignal(signal), nil
}

// GetByDeviceID retrieves all signals recorded for a device, newest
// capture first.
func (r *SignalRepository) GetByDeviceID(ctx context.Context, deviceID string) ([]*domain.Signal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := []*domain.Signal{}
	for _, signal := range r.signals {
		if signal.DeviceID == deviceID {
			results = append(results, copySignal(signal))
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp > results[j].Timestamp
	})

	return results, nil
}

// Update applies a partial update and returns the updated signal.
func (r *SignalRepository) Update(ctx context.Context, id string, update *domain.SignalUpdate) (*domain.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.signals[id]
	if !exists {
		return nil, domain.ErrSignalNotFound
	}

	updated := copySignal(existing)
	update.Apply(updated)

	if err := updated.Validate(); err != nil {
		return nil, err
	}

	oldKey := deviceTimeKey(existing.DeviceID, existing.Timestamp)
	newKey := deviceTimeKey(updated.DeviceID, updated.Timestamp)
	if newKey != oldKey {
		if _, taken := r.byDeviceTime[newKey]; taken {
			return nil, domain.ErrDuplicateSignal
		}
		delete(r.byDeviceTime, oldKey)
		r.byDeviceTime[newKey] = id
	}

	r.signals[id] = updated
	return copySignal(updated), nil
}

// Delete removes a signal and returns the removed record.
func (r *SignalRepository) Delete(ctx context.Context, id string) (*domain.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	signal, exists := r.signals[id]
	if !exists {
		return nil, domain.ErrSignalNotFound
	}

	delete(r.signals, id)
	delete(r.byDeviceTime, deviceTimeKey(signal.DeviceID, signal.Timestamp))

	return signal, nil
}

// Clear removes all data from the repository. Useful for test cleanup.
func (r *SignalRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.signals = make(map[string]*domain.Signal)
	r.byDeviceTime = make(map[string]string)
}

// copySignal returns a deep copy so callers cannot mutate stored state.
func copySignal(signal *domain.Signal) *domain.Signal {
	signalCopy := *signal
	if signal.Data != nil {
		signalCopy.Data = make([]domain.DataPoint, len(signal.Data))
		copy(signalCopy.Data, signal.Data)
	}
	return &signalCopy
}
