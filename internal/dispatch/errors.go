package dispatch

import (
	"errors"
	"fmt"

	"taskagent/internal/perception"
)

// Dispatch errors.
var (
	// ErrUnrecognizedTask is returned when no classification rule matches.
	ErrUnrecognizedTask = errors.New("task not recognized")

	// ErrHandlerAlreadyRegistered is returned when registering a duplicate.
	ErrHandlerAlreadyRegistered = errors.New("handler already registered")

	// ErrHandlerNil is returned when registering a nil handler.
	ErrHandlerNil = errors.New("handler cannot be nil")
)

// MissingParameterError is returned when a required field is absent from
// the task text.
type MissingParameterError = perception.MissingParameterError

// HandlerError is a domain failure reported by a handler. Its message is
// shown to the caller verbatim.
type HandlerError struct {
	Intent perception.TaskIntent
	Err    error
}

func (e *HandlerError) Error() string {
	if e.Intent == perception.IntentNone {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Intent, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// UnexpectedError wraps any other failure. Error() is generic;
// the cause is logged and reachable through Unwrap.
type UnexpectedError struct {
	Intent perception.TaskIntent
	Err    error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected failure while running %s", e.Intent)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

// IsUserError reports whether err was caused by the task text itself
// rather than by the work it requested.
func IsUserError(err error) bool {
	var missing *MissingParameterError
	return errors.Is(err, ErrUnrecognizedTask) || errors.As(err, &missing)
}
