// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrConflict         = errors.New("conflicting state")

	// Concurrency errors
	ErrQueueFull = errors.New("queue is full")
	ErrClosed    = errors.New("already closed")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "device", "roster", "attendance"
	Op      string // Operation that failed, e.g., "Record", "Confirm"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Ingest domain errors
var (
	ErrMalformedObservation = NewDomainError("ingest", "Normalize", ErrInvalidFormat, "malformed observation")
	ErrSignalBelowThreshold = NewDomainError("ingest", "Normalize", ErrValueOutOfRange, "signal below threshold")
)

// Device domain errors
var (
	ErrDeviceNotFound    = NewDomainError("device", "Find", ErrNotFound, "device record not found")
	ErrInvalidIdentifier = NewDomainError("device", "Validate", ErrInvalidID, "invalid device identifier")
	ErrInvalidSignal     = NewDomainError("device", "Validate", ErrValueOutOfRange, "signal strength out of range")
	ErrDeviceAssigned    = NewDomainError("device", "Assign", ErrInvalidState, "device already assigned")
	ErrDeviceUnassigned  = NewDomainError("device", "Unassign", ErrInvalidState, "device is not assigned")
)

// Roster domain errors
var (
	ErrUnknownStudent = NewDomainError("roster", "Find", ErrNotFound, "student not found in roster")
	ErrStudentExists  = NewDomainError("roster", "Add", ErrAlreadyExists, "student already in roster")
	ErrEmptyName      = NewDomainError("roster", "Validate", ErrEmptyValue, "student name cannot be empty")
	ErrDeviceBound    = NewDomainError("roster", "BindDevice", ErrAlreadyExists, "device already bound to a student")
)

// Assignment and identity domain errors
var (
	ErrConflictingConfirmation = NewDomainError("identity", "Confirm", ErrConflict, "student already has a confirmed device this session")
	ErrNotPendingReview        = NewDomainError("identity", "Reject", ErrStateTransition, "device is not pending review")
	ErrClassifierUnavailable   = NewDomainError("identity", "Predict", ErrServiceUnavailable, "classifier unavailable")
	ErrNoTrainingData          = NewDomainError("identity", "Retrain", ErrInvalidState, "no training data")
)

// Attendance domain errors
var (
	ErrAttendanceNotFound = NewDomainError("attendance", "Find", ErrNotFound, "attendance record not found")
	ErrSegmentAlreadyOpen = NewDomainError("attendance", "Enter", ErrInvalidState, "presence segment already open")
	ErrNoOpenSegment      = NewDomainError("attendance", "Exit", ErrInvalidState, "no open presence segment")
	ErrSessionClosed      = NewDomainError("session", "Record", ErrInvalidState, "session already closed")
	ErrSessionNotOpen     = NewDomainError("session", "Close", ErrInvalidState, "no open session")
)

// Journal domain errors
var (
	ErrJournalClosed   = NewDomainError("journal", "Append", ErrClosed, "journal closed")
	ErrBadEntryPayload = NewDomainError("journal", "Decode", ErrInvalidFormat, "cannot decode entry payload")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsConflict checks if the error represents conflicting state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
