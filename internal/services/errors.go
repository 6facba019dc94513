package services

import (
	"fmt"

	"mockmate-backend/internal/models"
)

// Domain errors

// NotFoundError means a referenced session or report does not exist.
// Not retryable.
type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// StateTransitionError means a lifecycle operation was requested against a
// session whose current status does not permit it. Not retryable; stored
// state is left untouched.
type StateTransitionError struct {
	Current   models.SessionStatus
	Requested models.SessionStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("illegal session transition: %s -> %s", e.Current, e.Requested)
}

// ProviderError means a model call exhausted its retries.
type ProviderError struct {
	Provider  string
	Model     string
	Operation string
	Attempts  int
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s/%s %s failed after %d attempts: %v", e.Provider, e.Model, e.Operation, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError wraps a storage-layer failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PlatformError is the single failure shape the coordinator presents to its
// callers, regardless of which collaborator failed underneath.
type PlatformError struct {
	Component string
	Operation string
	SessionID string
	Err       error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s failed in %s (session %s): %v", e.Component, e.Operation, e.SessionID, e.Err)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// Auth/request errors

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }
