package xray

import (
	"encoding/json"
	"fmt"

	"xray-go/internal/domain"
)

// Normalize transforms a validated envelope into its persisted form.
// The transform is a field rename only: no numeric conversion is applied.
// DataVolume is the byte length of the serialized normalized sample
// sequence.
func Normalize(env *Envelope) (*domain.Signal, error) {
	points := make([]domain.DataPoint, len(env.Samples))
	for i, s := range env.Samples {
		points[i] = domain.DataPoint{
			Time:        s.OffsetMillis,
			Coordinates: s.Position,
		}
	}

	serialized, err := json.Marshal(points)
	if err != nil {
		return nil, fmt.Errorf("failed to compute data volume: %w", err)
	}

	return &domain.Signal{
		DeviceID:   env.DeviceID,
		Timestamp:  env.CapturedAt,
		DataLength: len(points),
		DataVolume: len(serialized),
		Data:       points,
	}, nil
}
