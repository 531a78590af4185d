// Package shared contains the error kinds and small helpers used by every
// domain package. It has no external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds, checked with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrInvalidFormat   = errors.New("invalid format")

	// Concurrency errors
	ErrConflict = errors.New("operation conflicts with one in progress")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")

	// External service errors
	ErrUnavailable = errors.New("service unavailable")
	ErrRateLimited = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "student", "activity", "schedule"
	Op      string // operation that failed, e.g. "Create", "Sync"
	Kind    error  // base kind for errors.Is() checking
	Message string // human-readable message
	Err     error  // underlying error (optional)
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

// Is implements errors.Is() matching against both the kind and the cause.
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

// Student domain errors
var (
	ErrStudentNotFound      = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrHandleTaken          = NewDomainError("student", "Create", ErrAlreadyExists, "student with this handle already exists")
	ErrEmailTaken           = NewDomainError("student", "Create", ErrAlreadyExists, "student with this email already exists")
	ErrUnknownHandle        = NewDomainError("student", "Validate", ErrInvalidArgument, "handle is not known to Codeforces")
	ErrInvalidWindow        = NewDomainError("activity", "Filter", ErrInvalidArgument, "window must be -1 or a non-negative number of days")
	ErrNotificationDisabled = NewDomainError("notification", "Check", ErrInvalidArgument, "notifications disabled for student")
	ErrNoChannel            = NewDomainError("notification", "Send", ErrUnavailable, "no channel can reach the student")
)

// Coordination errors
var (
	ErrLockHeld = NewDomainError("lock", "Acquire", ErrConflict, "lock is held by another operation")
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
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsExternalService checks if the error comes from an unavailable dependency.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}
