package types

import (
	"errors"
	"fmt"
)

// Error families shared by every Tally package. The root package re-exports
// them and derives its specific sentinels from them.
var (
	ErrNotFound     = errors.New("tally: not found")
	ErrConflict     = errors.New("tally: conflict")
	ErrInvalidInput = errors.New("tally: invalid input")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tally: validation failed for %s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrInvalidInput.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Invalid is shorthand for constructing a ValidationError.
func Invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
