package worker

import "errors"

var (
	// ErrBackendRequired is returned when a queue backend is not provided.
	ErrBackendRequired = errors.New("queue backend required")

	// ErrNoHandler is returned when no handler is registered for a job's kind.
	ErrNoHandler = errors.New("no handler registered")

	// ErrUnknownAction is returned when a job's action does not match any
	// route of its queue.
	ErrUnknownAction = errors.New("unknown job action")

	// ErrUnknownPlugin is returned when a feed names a plugin that is not registered.
	ErrUnknownPlugin = errors.New("unknown feed plugin")

	// ErrHandlerPanic wraps a panic recovered from a handler.
	ErrHandlerPanic = errors.New("handler panicked")
)
