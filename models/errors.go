package models

import "fmt"

// InputError reports malformed search filters. It is the only error kind that
// ever reaches a caller of the pipeline.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid search filters: %s: %s", e.Field, e.Reason)
}

// NewInputError builds an InputError for a single offending field.
func NewInputError(field, reason string) *InputError {
	return &InputError{Field: field, Reason: reason}
}
