// Package shared contains the error taxonomy shared by every domain package of
// the behavior interpreter. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds that can be used for error checking with errors.Is().
var (
	// ErrMalformedEvent marks an event with a missing or invalid required field.
	// Such events are rejected; no defaults are guessed.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrUnknownEventType marks an event type the interpreter does not know.
	// It is informational only: unknown types are ignored, never fatal.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrProfileNotFound is returned by a profile store for a participant it
	// has never seen. The interpreter treats it as an empty history.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrStoreUnavailable means the participant history could not be read.
	ErrStoreUnavailable = errors.New("profile store unavailable")

	// ErrNotifier means a user state notification could not be delivered.
	ErrNotifier = errors.New("user state notifier failed")

	// ErrModelUpdate means the knowledge model could not be updated.
	ErrModelUpdate = errors.New("knowledge model update failed")

	// ErrNotFound is the generic "entity not found" kind used by repositories.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an entity with the same identity exists.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidInput is returned for invalid arguments to domain operations.
	ErrInvalidInput = errors.New("invalid input")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "behavior", "knowledge", "userstate"
	Op      string // Operation that failed, e.g., "Interpret", "Fetch"
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

// Malformed builds a malformed-event error for the named field.
func Malformed(op, field, reason string) *DomainError {
	return NewDomainError("behavior", op, ErrMalformedEvent, field+": "+reason)
}

// IsMalformed checks if the event was rejected as malformed.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedEvent)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrProfileNotFound)
}

// IsStoreUnavailable checks if the profile store could not be reached.
// Nothing has been signalled when this happens, so the event is safe to retry.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsCollaboratorFailure checks if a notifier or model update call failed.
func IsCollaboratorFailure(err error) bool {
	return errors.Is(err, ErrNotifier) || errors.Is(err, ErrModelUpdate)
}
