package tasks

import "errors"

var (
	// ErrJobRepositoryRequired is returned when a job repository is not provided.
	ErrJobRepositoryRequired = errors.New("job repository required")

	// ErrHandlerNotRegistered is returned when a job's type has no handler.
	ErrHandlerNotRegistered = errors.New("no handler registered for job type")

	// ErrEngineClosed is returned when submitting to a released engine.
	ErrEngineClosed = errors.New("engine is closed")
)
