package xray

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Code identifies a class of validation failure.
type Code string

const (
	CodeNoDeviceID         Code = "no_device_id"
	CodeMultipleDeviceIDs  Code = "multiple_device_ids"
	CodeInvalidTimestamp   Code = "invalid_timestamp"
	CodeMissingSamples     Code = "missing_samples"
	CodeEmptySamples       Code = "empty_samples"
	CodeInvalidOffset      Code = "invalid_offset"
	CodeInvalidCoordinates Code = "invalid_coordinates"
)

// FieldError is a single validation failure with the path of the
// offending field.
type FieldError struct {
	Code    Code   `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors is the non-empty list of failures returned when an
// envelope is rejected.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "invalid envelope: " + strings.Join(msgs, "; ")
}

// Has reports whether any failure carries the given code.
func (v ValidationErrors) Has(code Code) bool {
	for _, e := range v {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Validate checks a decoded message for structural and semantic
// correctness and returns the well-typed envelope. Structural failures
// short-circuit; independent per-field failures accumulate, so a single
// pass reports every broken sample. The returned error is always a
// ValidationErrors value. Validate has no side effects.
func Validate(raw *RawMessage) (*Envelope, error) {
	if !raw.Object || len(raw.DeviceIDs) == 0 {
		return nil, ValidationErrors{{
			Code:    CodeNoDeviceID,
			Field:   "envelope",
			Message: "no device id found in message",
		}}
	}
	if len(raw.DeviceIDs) > 1 {
		return nil, ValidationErrors{{
			Code:    CodeMultipleDeviceIDs,
			Field:   "envelope",
			Message: fmt.Sprintf("expected exactly one device id, got %d", len(raw.DeviceIDs)),
		}}
	}

	deviceID := raw.DeviceIDs[0]

	var errs ValidationErrors

	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw.Payload, &body); err != nil || body == nil {
		// The payload is not an object, so both the timestamp and the
		// samples are unusable. Report both.
		return nil, ValidationErrors{
			{
				Code:    CodeInvalidTimestamp,
				Field:   deviceID + ".time",
				Message: "time is required and must be a non-negative number",
			},
			{
				Code:    CodeMissingSamples,
				Field:   deviceID + ".data",
				Message: "data is required and must be an array",
			},
		}
	}

	env := &Envelope{DeviceID: deviceID}

	if timeRaw, ok := body["time"]; !ok {
		errs = append(errs, FieldError{
			Code:    CodeInvalidTimestamp,
			Field:   deviceID + ".time",
			Message: "time is required",
		})
	} else {
		// A pointer target distinguishes the null literal, which is a
		// no-op unmarshal into a plain float64.
		var capturedAt *float64
		if err := json.Unmarshal(timeRaw, &capturedAt); err != nil || capturedAt == nil || *capturedAt < 0 {
			errs = append(errs, FieldError{
				Code:    CodeInvalidTimestamp,
				Field:   deviceID + ".time",
				Message: "time must be a non-negative number",
			})
		} else {
			env.CapturedAt = int64(*capturedAt)
		}
	}

	dataRaw, ok := body["data"]
	if !ok {
		errs = append(errs, FieldError{
			Code:    CodeMissingSamples,
			Field:   deviceID + ".data",
			Message: "data is required",
		})
		return nil, errs
	}

	var pairs []json.RawMessage
	if err := json.Unmarshal(dataRaw, &pairs); err != nil {
		errs = append(errs, FieldError{
			Code:    CodeMissingSamples,
			Field:   deviceID + ".data",
			Message: "data must be an array",
		})
		return nil, errs
	}
	if len(pairs) == 0 {
		errs = append(errs, FieldError{
			Code:    CodeEmptySamples,
			Field:   deviceID + ".data",
			Message: "data must contain at least one sample",
		})
		return nil, errs
	}

	env.Samples = make([]Sample, 0, len(pairs))
	for i, pair := range pairs {
		sample, sampleErrs := validateSample(deviceID, i, pair)
		if len(sampleErrs) > 0 {
			errs = append(errs, sampleErrs...)
			continue
		}
		env.Samples = append(env.Samples, sample)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return env, nil
}

// validateSample checks one [offsetMillis, position] pair.
func validateSample(deviceID string, index int, raw json.RawMessage) (Sample, []FieldError) {
	field := fmt.Sprintf("%s.data[%d]", deviceID, index)

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) != 2 {
		return Sample{}, []FieldError{{
			Code:    CodeInvalidOffset,
			Field:   field,
			Message: "sample must be an [offsetMillis, position] pair",
		}}
	}

	var errs []FieldError
	var sample Sample

	var offset *float64
	if err := json.Unmarshal(parts[0], &offset); err != nil || offset == nil {
		errs = append(errs, FieldError{
			Code:    CodeInvalidOffset,
			Field:   field + ".offsetMillis",
			Message: "offsetMillis must be a number",
		})
	} else {
		sample.OffsetMillis = *offset
	}

	var position []float64
	if err := json.Unmarshal(parts[1], &position); err != nil || !validPosition(position) {
		errs = append(errs, FieldError{
			Code:    CodeInvalidCoordinates,
			Field:   field + ".position",
			Message: "position must be an array of exactly 3 finite numbers",
		})
	} else {
		copy(sample.Position[:], position)
	}

	return sample, errs
}

func validPosition(position []float64) bool {
	if len(position) != 3 {
		return false
	}
	for _, c := range position {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
