/*
workflow.go - Approval request lifecycle engine

PURPOSE:
  Orchestrates the full lifecycle of approval requests:
  1. Creation:   Validate input, snapshot the amount, insert pending
  2. Decision:   Resolve pending → approved/rejected exactly once
  3. Queries:    Pending queue (oldest first), latest request per entity

REQUEST FLOW:
  ┌────────────────────────────────────────────────────────────────┐
  │                                                                │
  │  PO/expense      CreateRequest        Reviewer       Decide    │
  │  submitted  ──▶  (status=pending) ──▶ picks from ──▶ approve/  │
  │                                       queue          reject    │
  │                                                        │       │
  │                                                        ▼       │
  │                                              DecisionEvent to  │
  │                                              entity module     │
  │                                                                │
  └────────────────────────────────────────────────────────────────┘

CONCURRENCY:
  The engine itself holds no state and no locks. Both races that matter
  (two creates for one entity, two decisions for one request) are settled
  by the store's atomic check-then-act operations; see store.go.

FAIRNESS:
  ListPending orders by request date ascending so the oldest request is
  reviewed first.

EXAMPLE:
  wf := approval.NewWorkflow(store, sink)
  req, err := wf.CreateRequest(ctx, approval.CreateInput{
      EntityType:     approval.EntityPurchaseOrder,
      EntityID:       42,
      RequesterID:    7,
      AmountSnapshot: decimal.NewFromInt(10000),
  })
  decided, err := wf.Decide(ctx, req.ID, approval.DecideInput{
      ActorID:  3,
      Decision: approval.DecisionApproved,
      Comments: "looks good",
  })

SEE ALSO:
  - store.go: Atomicity contract
  - events.go: Post-decision notification
  - errors.go: Error kinds
*/
package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INPUTS
// =============================================================================

// CreateInput carries everything needed to open an approval request.
type CreateInput struct {
	EntityType  EntityType
	EntityID    int64
	RequesterID int64

	// AmountSnapshot is the entity's monetary amount at request time. It is
	// retained on the request even if the entity later changes.
	AmountSnapshot decimal.Decimal
}

func (in CreateInput) validate() error {
	if !in.EntityType.Valid() {
		return fmt.Errorf("%w: unknown entity type %q", ErrValidation, in.EntityType)
	}
	if in.EntityID <= 0 {
		return fmt.Errorf("%w: entity id must be positive", ErrValidation)
	}
	if in.RequesterID <= 0 {
		return fmt.Errorf("%w: requester id must be positive", ErrValidation)
	}
	if in.AmountSnapshot.IsNegative() {
		return fmt.Errorf("%w: amount snapshot must not be negative", ErrValidation)
	}
	return nil
}

// DecideInput carries an actor's decision on a pending request.
type DecideInput struct {
	ActorID  int64
	Decision Decision
	Comments string
}

func (in DecideInput) validate() error {
	if !in.Decision.Valid() {
		return fmt.Errorf("%w: unknown decision %q", ErrValidation, in.Decision)
	}
	if in.ActorID <= 0 {
		return fmt.Errorf("%w: actor id must be positive", ErrValidation)
	}
	return nil
}

// =============================================================================
// WORKFLOW ENGINE
// =============================================================================

// Workflow is the approval workflow engine. It is safe for concurrent use;
// all request state lives in the store.
type Workflow struct {
	store Store
	sink  Sink

	// now is swappable in tests.
	now func() time.Time
}

// NewWorkflow creates a workflow engine over the given store. Pass nil for
// sink when no entity module is wired.
func NewWorkflow(store Store, sink Sink) *Workflow {
	if sink == nil {
		sink = NopSink()
	}
	return &Workflow{
		store: store,
		sink:  sink,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest opens a pending approval request for an external entity.
//
// Fails with ErrConflict if a pending request already exists for the
// (entityType, entityID) pair: a second request is a workflow error, never
// a silent duplicate. The request date is server-assigned.
func (w *Workflow) CreateRequest(ctx context.Context, in CreateInput) (*ApprovalRequest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	req := ApprovalRequest{
		EntityType:     in.EntityType,
		EntityID:       in.EntityID,
		RequesterID:    in.RequesterID,
		Status:         StatusPending,
		RequestDate:    w.now(),
		AmountSnapshot: in.AmountSnapshot,
	}

	return w.store.Insert(ctx, req)
}

// Decide resolves a pending request.
//
// Fails with ErrNotFound for an unknown id and ErrInvalidState when the
// request was already resolved; a resolved request is never re-decided.
// On success the decision event is emitted to the entity module's sink.
// A sink failure is returned alongside the updated record: the decision
// itself is already committed and final.
func (w *Workflow) Decide(ctx context.Context, requestID int64, in DecideInput) (*ApprovalRequest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	at := w.now()
	updated, err := w.store.Transition(ctx, requestID, in.Decision, in.ActorID, in.Comments, at)
	if err != nil {
		return nil, err
	}

	ev := DecisionEvent{
		RequestID:  updated.ID,
		EntityType: updated.EntityType,
		EntityID:   updated.EntityID,
		Decision:   in.Decision,
		ActorID:    in.ActorID,
		Comments:   in.Comments,
		Amount:     updated.AmountSnapshot,
		DecidedAt:  at,
	}
	if err := w.sink.DecisionMade(ctx, ev); err != nil {
		return updated, fmt.Errorf("decision committed but event delivery failed: %w", err)
	}

	return updated, nil
}

// ListPending returns a lazy cursor over pending requests, oldest first.
// Pass the zero filter for all entity types. The sequence is restartable:
// each call re-reads current persisted state.
func (w *Workflow) ListPending(ctx context.Context, filter PendingFilter) (Cursor, error) {
	if filter.EntityType != "" && !filter.EntityType.Valid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrValidation, filter.EntityType)
	}
	return w.store.ListPending(ctx, filter)
}

// GetByEntity returns the most recent request for an entity regardless of
// status, or (nil, nil) if the entity was never submitted for approval.
func (w *Workflow) GetByEntity(ctx context.Context, entityType EntityType, entityID int64) (*ApprovalRequest, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrValidation, entityType)
	}
	if entityID <= 0 {
		return nil, fmt.Errorf("%w: entity id must be positive", ErrValidation)
	}
	return w.store.LatestByEntity(ctx, entityType, entityID)
}

// Get returns the request by id, failing with ErrNotFound when unknown.
func (w *Workflow) Get(ctx context.Context, requestID int64) (*ApprovalRequest, error) {
	req, err := w.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, requestID)
	}
	return req, nil
}
