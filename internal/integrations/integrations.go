// Package integrations declares the narrow contracts the agent needs from
// external systems: the CRM, Notion, the reminders store, the task inbox
// and the messenger. Concrete API clients live outside this module.
package integrations

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by collaborators when the addressed record does
// not exist.
var ErrNotFound = errors.New("not found")

// ErrNotConfigured is returned when no collaborator was wired for a bundle.
var ErrNotConfigured = errors.New("integration not configured")

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError creates a typed not found error.
func NewNotFoundError(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
