// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a submission or entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrAdmissionRejected is returned when the scheduler refuses a submission
	// because the concurrency ceiling has been reached.
	ErrAdmissionRejected = errors.New("admission rejected: too many active tasks")

	// ErrTaskNotFound is returned when a task id is unknown, including tasks
	// that have already been evicted by the reaper.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotReady is returned when a result is requested for a task that has
	// not completed.
	ErrNotReady = errors.New("task result not ready")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")

	// ErrAlreadyTerminal is returned when a transition is attempted on a task
	// that has already reached a terminal state.
	ErrAlreadyTerminal = errors.New("task already in terminal state")

	// ErrInvalidTransition is returned when a transition is not allowed from
	// the task's current status.
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// Task validation errors
var (
	ErrEmptyOwnerID = errors.New("owner ID cannot be empty")
	ErrNoInputs     = errors.New("at least one input is required")
	ErrEmptyInput   = errors.New("input must carry text or an image")
)
