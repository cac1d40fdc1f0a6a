package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the coordinator's error taxonomy. Transport handlers
// map these to status codes with errors.Is / errors.As.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRunNotFound     = errors.New("run not found")
	ErrUnknownRunner   = errors.New("unknown runner")
	ErrSessionBusy     = errors.New("session has an active run")
)

// InvalidTransitionError reports a status report that the run's current
// state cannot legally reach, with enough detail for the caller to decide
// whether to retry.
type InvalidTransitionError struct {
	RunID    string
	Current  RunStatus
	Reported RunStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("run %s cannot move from %s to %s", e.RunID, e.Current, e.Reported)
}

// IsInvalidTransition reports whether err wraps an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
