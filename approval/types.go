/*
Package approval implements the approval workflow engine.

PURPOSE:
  Purchase orders and expenses must be authorized before money moves.
  This package owns the approval request lifecycle: a request is created
  in pending state, an authorized actor approves or rejects it exactly
  once, and the record is then retained forever as an immutable audit
  entry.

KEY CONCEPTS IN THIS FILE (types.go):
  - EntityType: Which external aggregate a request governs (PO or expense)
  - Status: The request lifecycle state (pending/approved/rejected)
  - Decision: The terminal outcome an actor chooses
  - ApprovalRequest: The audit record itself

DESIGN PRINCIPLES:
  1. Closed enumerations: Status and EntityType are validated constants,
     never free-form strings, so invalid states cannot be persisted
  2. Precision: AmountSnapshot uses decimal.Decimal, never float64
  3. Immutability: A request transitions exactly once; corrections mean
     a new request, never an edit
  4. Auditability: Every transition records who, when, and why

SEE ALSO:
  - workflow.go: The engine orchestrating the lifecycle
  - store.go: Persistence contract (atomic check-then-act lives there)
  - errors.go: Error kinds returned to callers
*/
package approval

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENUMERATIONS
// =============================================================================

// EntityType identifies which external aggregate an approval request governs.
// The referenced entity is owned by the purchase-order/expense module; this
// package never validates its existence.
type EntityType string

const (
	EntityPurchaseOrder EntityType = "purchase_order"
	EntityExpense       EntityType = "expense"
)

// Valid reports whether the entity type is one of the known values.
func (e EntityType) Valid() bool {
	return e == EntityPurchaseOrder || e == EntityExpense
}

// Status is the lifecycle state of an approval request.
//
// State machine:
//
//	pending ──▶ approved   (terminal)
//	pending ──▶ rejected   (terminal)
//
// No transition out of approved or rejected is ever permitted.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Decision is the outcome an actor records on a pending request.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Valid reports whether the decision is one of the known values.
func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Status returns the terminal status a decision resolves to.
func (d Decision) Status() Status {
	if d == DecisionRejected {
		return StatusRejected
	}
	return StatusApproved
}

// =============================================================================
// APPROVAL REQUEST - Immutable audit record
// =============================================================================

// ApprovalRequest gates authorization of a purchase order or expense.
//
// INVARIANTS:
//   - At most one pending request exists per (EntityType, EntityID) pair
//   - RequestDate is set at creation and never changes
//   - ActionDate/ActionedBy/Comments are nil/zero while pending and set
//     exactly once at transition time
//   - AmountSnapshot is copied from the entity at request time and retained
//     even if the entity later changes
type ApprovalRequest struct {
	ID          int64
	EntityType  EntityType
	EntityID    int64
	RequesterID int64
	Status      Status

	RequestDate time.Time

	// Transition fields. Nil while the request is pending.
	ActionDate *time.Time
	ActionedBy *int64
	Comments   string

	// Monetary amount of the underlying entity at request time.
	AmountSnapshot decimal.Decimal
}

// Pending reports whether the request is still awaiting a decision.
func (r *ApprovalRequest) Pending() bool {
	return r.Status == StatusPending
}
