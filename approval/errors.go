/*
errors.go - Centralized error kinds for the approval engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Callers (HTTP routes, CLIs) distinguish outcomes with errors.Is and
  translate to their own transport status codes.

ERROR CATEGORIES:
  1. Conflict errors   - duplicate pending request for an entity
  2. State errors      - decision attempted on a resolved request
  3. Validation errors - malformed entity type or decision value
  4. Store errors      - underlying persistence failure, surfaced verbatim

PROPAGATION POLICY:
  Validation errors are returned before any store mutation. Conflict and
  state errors come out of the store's atomic check-then-act and leave no
  partial effect. Store errors are never retried by this package: an
  approval decision must never be applied twice, and a failed write may
  indicate a non-idempotent partial state only the operator can judge.
*/
package approval

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConflict is returned when a pending request already exists for the
	// (entityType, entityID) pair. The existing request must be decided
	// before a new one can be created.
	ErrConflict = errors.New("pending approval request already exists")

	// ErrNotFound is returned when the request id is unknown.
	ErrNotFound = errors.New("approval request not found")

	// ErrInvalidState is returned when a decision is attempted on a request
	// that is no longer pending. Resolved requests are immutable.
	ErrInvalidState = errors.New("approval request already resolved")

	// ErrValidation is returned for malformed input (unknown entity type,
	// unknown decision value, non-positive identifiers). Nothing is written.
	ErrValidation = errors.New("invalid approval input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConflictError reports which entity already has a pending request.
type ConflictError struct {
	EntityType EntityType
	EntityID   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("pending approval request already exists for %s %d", e.EntityType, e.EntityID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InvalidStateError reports the resolved status blocking a decision.
type InvalidStateError struct {
	RequestID int64
	Status    Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("approval request %d is %s, only pending requests can be decided", e.RequestID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// StoreError wraps an underlying persistence failure. It is surfaced
// verbatim to the caller for logging and never retried here.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("approval store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConflict reports whether err is a duplicate-pending conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err indicates an unknown request id.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidState reports whether err indicates a decision on a resolved request.
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }

// IsValidation reports whether err indicates malformed input.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsClientError reports whether the error is due to caller input rather
// than a persistence fault.
func IsClientError(err error) bool {
	return IsConflict(err) || IsNotFound(err) || IsInvalidState(err) || IsValidation(err)
}
