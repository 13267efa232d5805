package gate

import (
	"errors"
	"fmt"
)

// ErrCorruptRecord marks a persisted record that cannot be decoded or violates
// the state invariants. Callers treat it as "no prior state".
var ErrCorruptRecord = errors.New("corrupt gate session record")

// ValidationError reports malformed caller input. State is never mutated when
// it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidStateError reports an operation that is not allowed in the current
// state, such as broker verification before an email was submitted.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s not allowed: %s", e.Op, e.Reason)
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInvalidState reports whether err is or wraps an *InvalidStateError.
func IsInvalidState(err error) bool {
	var se *InvalidStateError
	return errors.As(err, &se)
}
