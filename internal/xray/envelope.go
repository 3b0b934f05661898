// Package xray implements the wire protocol for device telemetry messages:
// the codec that frames envelopes for the queue, the validator both the
// producer and the consumer run, and the normalizer that turns an accepted
// envelope into its persisted form.
package xray

import "encoding/json"

// Sample is one raw telemetry reading within an envelope.
type Sample struct {
	// OffsetMillis is the sample's time offset in milliseconds.
	OffsetMillis float64

	// Position is the [x, y, z] reading captured at the offset.
	Position [3]float64
}

// Envelope is a validated telemetry message from a single device.
// Instances produced by Validate are guaranteed well typed: exactly one
// device id, a non-negative capture time and at least one sample.
type Envelope struct {
	DeviceID string

	// CapturedAt is the envelope capture time in epoch milliseconds.
	CapturedAt int64

	Samples []Sample
}

// RawMessage is a decoded but unvalidated wire message. Decode only
// guarantees the bytes were syntactically well-formed JSON; everything
// else is the validator's job.
type RawMessage struct {
	// Object reports whether the top level was a JSON object.
	Object bool

	// DeviceIDs holds every top-level key, sorted. A well-formed envelope
	// has exactly one.
	DeviceIDs []string

	// Payload is the raw body of the first device key, when present.
	Payload json.RawMessage
}
