package telemetry

import (
	"errors"
	"fmt"
)

// ErrInvalidPayload matches every decode failure via errors.Is.
var ErrInvalidPayload = errors.New("telemetry: invalid payload")

// InvalidPayloadError describes why a payload was rejected.
type InvalidPayloadError struct {
	// Field is the offending key, empty when the payload itself is malformed.
	Field string

	// Reason is a short human-readable description.
	Reason string

	// Err is the underlying parse error, if any.
	Err error
}

func (e *InvalidPayloadError) Error() string {
	msg := ErrInvalidPayload.Error()
	if e.Field != "" {
		msg += fmt.Sprintf(": field %q", e.Field)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports ErrInvalidPayload as the sentinel for this error.
func (e *InvalidPayloadError) Is(target error) bool {
	return target == ErrInvalidPayload
}

func (e *InvalidPayloadError) Unwrap() error {
	return e.Err
}
