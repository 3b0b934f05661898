// Package redis provides the Redis-based implementation of the device
// state store.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"xray-go/internal/config"
	"xray-go/internal/metrics"
	"xray-go/internal/store"
)

// Key layout in Redis.
const (
	prefixDevice = "device:" // hash: last_seen (epoch millis), signal_count
	keyDeviceSet = "devices" // set of known device ids
)

// DeviceStateStore implements store.DeviceStateStore using Redis.
type DeviceStateStore struct {
	client *redis.Client
}

// NewDeviceStateStore creates a new Redis-backed device state store.
func NewDeviceStateStore(cfg *config.RedisConfig) (*DeviceStateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &DeviceStateStore{client: client}, nil
}

func deviceKey(deviceID string) string {
	return prefixDevice + deviceID
}

// Touch records a committed signal for the device.
func (s *DeviceStateStore) Touch(ctx context.Context, deviceID string, seenAt time.Time) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage("redis", "touch", start, err) }()

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, keyDeviceSet, deviceID)
	pipe.HSet(ctx, deviceKey(deviceID), "last_seen", seenAt.UnixMilli())
	pipe.HIncrBy(ctx, deviceKey(deviceID), "signal_count", 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to touch device: %w", err)
	}
	return nil
}

// Get retrieves the state for one device, or nil when unknown.
func (s *DeviceStateStore) Get(ctx context.Context, deviceID string) (*store.DeviceState, error) {
	fields, err := s.client.HGetAll(ctx, deviceKey(deviceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get device state: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	return parseState(deviceID, fields)
}

// List retrieves the state of every known device.
func (s *DeviceStateStore) List(ctx context.Context) ([]*store.DeviceState, error) {
	ids, err := s.client.SMembers(ctx, keyDeviceSet).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	states := make([]*store.DeviceState, 0, len(ids))
	for _, id := range ids {
		state, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if state != nil {
			states = append(states, state)
		}
	}

	return states, nil
}

// Close closes the Redis client.
func (s *DeviceStateStore) Close() error {
	return s.client.Close()
}

func parseState(deviceID string, fields map[string]string) (*store.DeviceState, error) {
	state := &store.DeviceState{DeviceID: deviceID}

	if raw, ok := fields["last_seen"]; ok {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_seen for device %s: %w", deviceID, err)
		}
		state.LastSeen = time.UnixMilli(millis).UTC()
	}

	if raw, ok := fields["signal_count"]; ok {
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse signal_count for device %s: %w", deviceID, err)
		}
		state.SignalCount = count
	}

	return state, nil
}
