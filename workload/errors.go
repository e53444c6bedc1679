package workload

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind indicates a workload kind with no route.
	ErrUnknownKind = errors.New("unknown workload kind")

	// ErrInvalidPayload is matched by every ValidationError.
	ErrInvalidPayload = errors.New("invalid job payload")
)

// ValidationError describes a payload that does not satisfy its kind's schema.
type ValidationError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s payload: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s payload: field %q %s", e.Kind, e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidPayload) true for validation errors.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidPayload
}

func missingField(kind Kind, field string) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Reason: "is missing"}
}
