package entitlement

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrInvalidState = errors.New("invalid state")
)

// ValidationError reports a caller supplied value that is out of range or
// structurally invalid.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidStateError reports an operation that makes no sense for the
// subscription's current status.
type InvalidStateError struct {
	Status  Status
	Message string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s (status=%s)", e.Message, e.Status)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

func validationErr(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
