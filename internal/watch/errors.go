package watch

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no active watch has the requested id.
	ErrNotFound = errors.New("watch not found")
	// ErrResourceExhausted means the active watch cap was reached.
	ErrResourceExhausted = errors.New("too many active watches")
	// ErrStopTimeout means a stop was requested but the task did not exit in time.
	ErrStopTimeout = errors.New("watch did not stop in time")
	// ErrClosed means the manager is shutting down and takes no new watches.
	ErrClosed = errors.New("watch manager is shut down")
)

// ValidationError reports a bad start request. Nothing was allocated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
