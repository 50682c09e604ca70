package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateEnvelope(env *Envelope, kind string) error {
	if env == nil {
		return &ValidationError{Field: "envelope", Message: "envelope cannot be nil"}
	}
	if env.ID == "" {
		return &ValidationError{Field: "id", Message: "envelope ID is required"}
	}
	if env.Kind != kind {
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("expected %q, got %q", kind, env.Kind)}
	}
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return &ValidationError{Field: "payload", Message: "payload cannot be empty"}
	}
	return nil
}
