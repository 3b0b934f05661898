// Package domain contains the core business entities for the x-ray ingestion
// service. These models represent the persisted, normalized form of device
// telemetry.
package domain

import (
	"errors"
	"math"
	"time"
)

// DataPoint is a single normalized telemetry sample: a time offset in
// milliseconds and a 3D position reading.
type DataPoint struct {
	Time        float64    `json:"time"`
	Coordinates [3]float64 `json:"coordinates"`
}

// Signal is the durable record produced from one wire envelope.
// It is an audit record: the ingestion pipeline only ever creates signals;
// updates and deletes happen through the administrative API.
type Signal struct {
	// ID is the storage-assigned identifier.
	ID string `json:"id"`

	// DeviceID identifies the device that captured the samples.
	DeviceID string `json:"deviceId"`

	// Timestamp is the capture time of the envelope in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`

	// DataLength is the number of samples in Data.
	DataLength int `json:"dataLength"`

	// DataVolume is the size in bytes of the serialized sample sequence.
	DataVolume int `json:"dataVolume"`

	// Data holds the normalized samples in wire order.
	Data []DataPoint `json:"data"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Storage errors for Signal.
var (
	ErrSignalNotFound  = errors.New("signal not found")
	ErrDuplicateSignal = errors.New("signal already exists for device and timestamp")
)

// Validation errors for Signal.
var (
	ErrEmptyDeviceID      = errors.New("deviceId is required")
	ErrNegativeTimestamp  = errors.New("timestamp must be a non-negative epoch value")
	ErrDataLengthMismatch = errors.New("dataLength must equal the number of data points")
	ErrInvalidDataVolume  = errors.New("dataVolume must be positive when data points are present")
	ErrInvalidCoordinate  = errors.New("coordinates must be finite numbers")
)

// Validate checks the record-level invariants. Returns the first violation,
// or nil if the signal is well formed.
func (s *Signal) Validate() error {
	if s.DeviceID == "" {
		return ErrEmptyDeviceID
	}
	if s.Timestamp < 0 {
		return ErrNegativeTimestamp
	}
	if s.DataLength != len(s.Data) {
		return ErrDataLengthMismatch
	}
	if len(s.Data) > 0 && s.DataVolume <= 0 {
		return ErrInvalidDataVolume
	}
	for _, p := range s.Data {
		if math.IsNaN(p.Time) || math.IsInf(p.Time, 0) {
			return ErrInvalidCoordinate
		}
		for _, c := range p.Coordinates {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return ErrInvalidCoordinate
			}
		}
	}
	return nil
}

// IsValidationError reports whether err is one of the record-level
// validation errors, as opposed to a storage failure.
func IsValidationError(err error) bool {
	for _, v := range []error{
		ErrEmptyDeviceID,
		ErrNegativeTimestamp,
		ErrDataLengthMismatch,
		ErrInvalidDataVolume,
		ErrInvalidCoordinate,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// SignalUpdate is a partial update applied to an existing signal.
// Nil fields are left unchanged.
type SignalUpdate struct {
	DeviceID   *string      `json:"deviceId,omitempty"`
	Timestamp  *int64       `json:"timestamp,omitempty"`
	DataLength *int         `json:"dataLength,omitempty"`
	DataVolume *int         `json:"dataVolume,omitempty"`
	Data       *[]DataPoint `json:"data,omitempty"`
}

// Apply copies the set fields of the update onto the signal and stamps
// UpdatedAt. The caller is responsible for re-validating the result.
func (u *SignalUpdate) Apply(s *Signal) {
	if u.DeviceID != nil {
		s.DeviceID = *u.DeviceID
	}
	if u.Timestamp != nil {
		s.Timestamp = *u.Timestamp
	}
	if u.DataLength != nil {
		s.DataLength = *u.DataLength
	}
	if u.DataVolume != nil {
		s.DataVolume = *u.DataVolume
	}
	if u.Data != nil {
		s.Data = *u.Data
	}
	s.UpdatedAt = time.Now().UTC()
}

// SignalFilter holds query criteria for listing signals.
type SignalFilter struct {
	DeviceID string
	Limit    int
	Offset   int
}
