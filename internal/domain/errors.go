package domain

import (
	"errors"
	"fmt"
)

// Error types for consistent error handling across the pricing subsystem.
// Callers match them with errors.As and decide the user-facing message.

// ErrNotFound indicates a referenced entity does not exist.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrDuplicateKey indicates a natural-key uniqueness violation.
type ErrDuplicateKey struct {
	Resource string
	Key      string
}

func (e *ErrDuplicateKey) Error() string {
	return fmt.Sprintf("duplicate %s: %s", e.Resource, e.Key)
}

// ErrConflict indicates the write collides with existing state,
// e.g. a segmentation band overlapping another active band.
type ErrConflict struct {
	Resource     string
	ConflictWith string
	Message      string
}

func (e *ErrConflict) Error() string {
	if e.ConflictWith != "" {
		return fmt.Sprintf("%s conflicts with %s: %s", e.Resource, e.ConflictWith, e.Message)
	}
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Message)
}

// ErrForbidden indicates the operation is not permitted by the entity's own flags.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrInvalidArgument indicates an out-of-range or malformed input value.
type ErrInvalidArgument struct {
	Field   string
	Message string
}

func (e *ErrInvalidArgument) Error() string {
	return fmt.Sprintf("invalid argument '%s': %s", e.Field, e.Message)
}

// IsDomainError reports whether err carries one of the typed domain errors.
// Such errors describe the request, not the health of a collaborator.
func IsDomainError(err error) bool {
	var (
		nf  *ErrNotFound
		dup *ErrDuplicateKey
		cf  *ErrConflict
		fb  *ErrForbidden
		inv *ErrInvalidArgument
	)
	return errors.As(err, &nf) || errors.As(err, &dup) || errors.As(err, &cf) ||
		errors.As(err, &fb) || errors.As(err, &inv)
}
