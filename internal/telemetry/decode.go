package telemetry

import (
	"bytes"
	"encoding/json"
)

// Payload keys sent by the device. Matching is exact.
const (
	FieldTemperature  = "Temperature"
	FieldHumidity     = "Humidity"
	FieldSoilMoisture = "SoilMoisture"
)

// Decode validates a telemetry payload and returns the Reading it carries.
//
// The payload must be a JSON object with Temperature, Humidity and
// SoilMoisture present as JSON numbers. Missing keys, null, strings,
// booleans and nested values are rejected. Unknown keys are ignored.
func Decode(payload []byte) (Reading, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Reading{}, &InvalidPayloadError{Reason: "not a JSON object", Err: err}
	}
	if fields == nil {
		return Reading{}, &InvalidPayloadError{Reason: "not a JSON object"}
	}

	temperature, err := number(fields, FieldTemperature)
	if err != nil {
		return Reading{}, err
	}
	humidity, err := number(fields, FieldHumidity)
	if err != nil {
		return Reading{}, err
	}
	soilMoisture, err := number(fields, FieldSoilMoisture)
	if err != nil {
		return Reading{}, err
	}

	return NewReading(temperature, humidity, soilMoisture), nil
}

var jsonNull = []byte("null")

// number extracts a required numeric field.
func number(fields map[string]json.RawMessage, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, &InvalidPayloadError{Field: key, Reason: "missing"}
	}

	// Unmarshalling null into a float64 is a silent no-op.
	if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		return 0, &InvalidPayloadError{Field: key, Reason: "null"}
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, &InvalidPayloadError{Field: key, Reason: "not a number", Err: err}
	}
	return v, nil
}
