package profile

import "fmt"

// InvalidInputError is returned when an entity lacks a required identity field
// or carries inconsistent data. It is never retried.
type InvalidInputError struct {
	Entity string
	ID     string
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("invalid %s %q: %s: %s", e.Entity, e.ID, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s: %s", e.Entity, e.Field, e.Reason)
}
