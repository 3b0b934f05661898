package xray

import (
	"errors"
	"testing"
)

func decodeForTest(t *testing.T, input string) *RawMessage {
	t.Helper()
	raw, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("Decode(%q) error = %v", input, err)
	}
	return raw
}

func validationErrs(t *testing.T, err error) ValidationErrors {
	t.Helper()
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error = %v, want ValidationErrors", err)
	}
	return verrs
}

func TestValidateAcceptsWellFormedEnvelope(t *testing.T) {
	raw := decodeForTest(t, `{"dev-1": {"data": [[762, [51.33, 12.33, 1.2]], [1766, [51.34, 12.34, 1.5]]], "time": 1735683480000}}`)

	env, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if env.DeviceID != "dev-1" {
		t.Errorf("DeviceID = %q, want dev-1", env.DeviceID)
	}
	if env.CapturedAt != 1735683480000 {
		t.Errorf("CapturedAt = %d, want 1735683480000", env.CapturedAt)
	}
	if len(env.Samples) != 2 {
		t.Fatalf("len(Samples) = %d, want 2", len(env.Samples))
	}
	if env.Samples[0].OffsetMillis != 762 {
		t.Errorf("Samples[0].OffsetMillis = %v, want 762", env.Samples[0].OffsetMillis)
	}
	if env.Samples[1].Position != [3]float64{51.34, 12.34, 1.5} {
		t.Errorf("Samples[1].Position = %v", env.Samples[1].Position)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  Code
	}{
		{"empty object", `{}`, CodeNoDeviceID},
		{"non-object payload", `[1, 2, 3]`, CodeNoDeviceID},
		{"two device ids", `{"a": {"data": [[0, [1,2,3]]], "time": 1}, "b": {"data": [[0, [1,2,3]]], "time": 1}}`, CodeMultipleDeviceIDs},
		{"missing time", `{"dev-1": {"data": [[0, [1, 2, 3]]]}}`, CodeInvalidTimestamp},
		{"negative time", `{"dev-1": {"data": [[0, [1, 2, 3]]], "time": -5}}`, CodeInvalidTimestamp},
		{"time not a number", `{"dev-1": {"data": [[0, [1, 2, 3]]], "time": "soon"}}`, CodeInvalidTimestamp},
		{"null time", `{"dev-1": {"data": [[0, [1, 2, 3]]], "time": null}}`, CodeInvalidTimestamp},
		{"missing data", `{"dev-1": {"time": 1}}`, CodeMissingSamples},
		{"data not an array", `{"dev-1": {"data": "nope", "time": 1}}`, CodeMissingSamples},
		{"empty data", `{"dev-1": {"data": [], "time": 1}}`, CodeEmptySamples},
		{"body not an object", `{"dev-1": 42}`, CodeInvalidTimestamp},
		{"sample not a pair", `{"dev-1": {"data": [[1]], "time": 1}}`, CodeInvalidOffset},
		{"offset not a number", `{"dev-1": {"data": [["x", [1, 2, 3]]], "time": 1}}`, CodeInvalidOffset},
		{"null offset", `{"dev-1": {"data": [[null, [1, 2, 3]]], "time": 1}}`, CodeInvalidOffset},
		{"null position", `{"dev-1": {"data": [[0, null]], "time": 1}}`, CodeInvalidCoordinates},
		{"two coordinates", `{"dev-1": {"data": [[0, [1, 2]]], "time": 1}}`, CodeInvalidCoordinates},
		{"four coordinates", `{"dev-1": {"data": [[0, [1, 2, 3, 4]]], "time": 1}}`, CodeInvalidCoordinates},
		{"coordinates not numbers", `{"dev-1": {"data": [[0, ["a", "b", "c"]]], "time": 1}}`, CodeInvalidCoordinates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := decodeForTest(t, tt.input)
			env, err := Validate(raw)
			if err == nil {
				t.Fatalf("Validate() = %+v, want error", env)
			}
			verrs := validationErrs(t, err)
			if !verrs.Has(tt.code) {
				t.Errorf("errors %v missing code %q", verrs, tt.code)
			}
		})
	}
}

func TestValidateAccumulatesSampleErrors(t *testing.T) {
	raw := decodeForTest(t, `{"dev-1": {"data": [["x", [1, 2, 3]], [5, [1, 2]], [6, [1, 2, 3]]], "time": 1}}`)

	_, err := Validate(raw)
	verrs := validationErrs(t, err)

	if len(verrs) != 2 {
		t.Fatalf("len(errors) = %d, want 2: %v", len(verrs), verrs)
	}
	if !verrs.Has(CodeInvalidOffset) || !verrs.Has(CodeInvalidCoordinates) {
		t.Errorf("errors %v missing expected codes", verrs)
	}
	if verrs[0].Field != `dev-1.data[0].offsetMillis` {
		t.Errorf("first field = %q, want dev-1.data[0].offsetMillis", verrs[0].Field)
	}
	if verrs[1].Field != `dev-1.data[1].position` {
		t.Errorf("second field = %q, want dev-1.data[1].position", verrs[1].Field)
	}
}

func TestValidateNonObjectBodyReportsBothFields(t *testing.T) {
	raw := decodeForTest(t, `{"dev-1": "garbage"}`)

	_, err := Validate(raw)
	verrs := validationErrs(t, err)

	if !verrs.Has(CodeInvalidTimestamp) || !verrs.Has(CodeMissingSamples) {
		t.Errorf("errors %v, want both invalid_timestamp and missing_samples", verrs)
	}
}
