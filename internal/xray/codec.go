package xray

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrMalformed indicates bytes that are not syntactically valid JSON.
// Such a message can never become processable and must not be requeued.
var ErrMalformed = errors.New("malformed message")

// wirePayload is the per-device body of the wire envelope.
type wirePayload struct {
	Data []wireSample `json:"data"`
	Time int64        `json:"time"`
}

// wireSample serializes a sample as the [offsetMillis, [x, y, z]] pair
// the devices emit.
type wireSample Sample

func (s wireSample) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{s.OffsetMillis, s.Position})
}

// Encode frames an envelope for publishing:
//
//	{"<deviceId>": {"data": [[offsetMillis, [x, y, z]], ...], "time": capturedAtMillis}}
//
// The device id is embedded in the structure, so the payload is
// self-describing regardless of key order.
func Encode(env *Envelope) ([]byte, error) {
	samples := make([]wireSample, len(env.Samples))
	for i, s := range env.Samples {
		samples[i] = wireSample(s)
	}

	body := map[string]wirePayload{
		env.DeviceID: {
			Data: samples,
			Time: env.CapturedAt,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses wire bytes into a RawMessage. It fails only on invalid
// JSON syntax; a syntactically well-formed payload always decodes, even
// when it will later fail validation.
func Decode(data []byte) (*RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || !json.Valid(data) {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		// Valid JSON that is not an object. The validator rejects it.
		return &RawMessage{Object: false}, nil
	}
	if top == nil {
		// The literal null unmarshals into a nil map without error.
		return &RawMessage{Object: false}, nil
	}

	raw := &RawMessage{Object: true}
	for key := range top {
		raw.DeviceIDs = append(raw.DeviceIDs, key)
	}
	sort.Strings(raw.DeviceIDs)
	if len(raw.DeviceIDs) > 0 {
		raw.Payload = top[raw.DeviceIDs[0]]
	}
	return raw, nil
}
