package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"xray-go/internal/store"
)

// DeviceStateStore is an in-memory implementation of
// store.DeviceStateStore.
type DeviceStateStore struct {
	mu      sync.RWMutex
	devices map[string]*store.DeviceState
}

// NewDeviceStateStore creates a new in-memory device state store.
func NewDeviceStateStore() *DeviceStateStore {
	return &DeviceStateStore{
		devices: make(map[string]*store.DeviceState),
	}
}

// Touch records a committed signal for the device.
func (s *DeviceStateStore) Touch(ctx context.Context, deviceID string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.devices[deviceID]
	if !exists {
		state = &store.DeviceState{DeviceID: deviceID}
		s.devices[deviceID] = state
	}

	if seenAt.After(state.LastSeen) {
		state.LastSeen = seenAt
	}
	state.SignalCount++

	return nil
}

// Get retrieves the state for one device, or nil when unknown.
func (s *DeviceStateStore) Get(ctx context.Context, deviceID string) (*store.DeviceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.devices[deviceID]
	if !exists {
		return nil, nil
	}

	stateCopy := *state
	return &stateCopy, nil
}

// List retrieves the state of every known device, sorted by device id.
func (s *DeviceStateStore) List(ctx context.Context) ([]*store.DeviceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]*store.DeviceState, 0, len(s.devices))
	for _, state := range s.devices {
		stateCopy := *state
		states = append(states, &stateCopy)
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].DeviceID < states[j].DeviceID
	})

	return states, nil
}

// Close is a no-op for the in-memory store.
func (s *DeviceStateStore) Close() error {
	return nil
}
