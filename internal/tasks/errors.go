package tasks

import (
	"errors"
	"fmt"

	tsync "github.com/mschirtzinger/tasksync/internal/sync"
)

// Errors returned by Service operations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, tasks.ErrValidation) {
//	    // show the form again
//	}
var (
	// ErrValidation is returned when input is rejected before any write.
	ErrValidation = errors.New("invalid task")

	// ErrAuth is returned when a mutation is attempted with nobody
	// signed in. Nothing is written locally or remotely.
	ErrAuth = errors.New("not signed in")

	// ErrLocalStore is returned when the local transaction fails. The
	// operation is aborted and rolled back.
	ErrLocalStore = errors.New("local store error")

	// ErrRemoteSync marks remote failures. Mutations never return it;
	// it only appears in logs, job results and pull results.
	ErrRemoteSync = tsync.ErrRemote

	// ErrNotFound is returned when the task does not exist for the
	// signed-in user.
	ErrNotFound = errors.New("task not found")
)

// ValidationError names the rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// IsUserError returns true if the error is caused by input or session
// state rather than a store failure.
func IsUserError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrNotFound)
}
