package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a lookup by id matched nothing.
var ErrNotFound = errors.New("not found")

// ValidationError is returned when a malformed entity is rejected. Nothing is
// mutated when it is returned.
type ValidationError struct {
	Entity  EntityType
	ID      string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid %s: %s: %s", e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s %s: %s: %s", e.Entity, e.ID, e.Field, e.Message)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
