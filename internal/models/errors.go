package models

import "fmt"

// ValidationError rejects bad caller input: unknown document types,
// non-positive amounts, empty update payloads, unknown ids in a batch.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError reports a document state change whose precondition
// does not hold. It names the operation, the state it requires, and the
// state actually observed.
type InvalidTransitionError struct {
	Op       string
	Required DocumentStatus
	Observed DocumentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s: document must be %q, but is %q", e.Op, e.Required, e.Observed)
}
