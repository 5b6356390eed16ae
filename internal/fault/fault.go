// Package fault defines the error taxonomy shared by the domain packages.
//
// Every domain failure wraps exactly one of the sentinel errors below, so
// callers branch with errors.Is and the HTTP layer maps the sentinel to a
// status code without inspecting message text.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input. Caller error, never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an unknown id or code.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks an actor acting on an entity it has no rights over.
	// Distinct from role checks, which the HTTP middleware handles.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState marks an operation that is illegal for the entity's
	// current lifecycle state.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict marks a uniqueness violation: duplicate serial, duplicate
	// live application, device not available, asset tag collision.
	ErrConflict = errors.New("conflict")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func InvalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
