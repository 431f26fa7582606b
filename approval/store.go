/*
store.go - Persistence contract for approval requests

PURPOSE:
  Defines the interface between the workflow engine and the database.
  The atomic check-then-act operations live HERE, not in the engine:
  two concurrent CreateRequest calls for the same entity race at the
  store, and the store's constraint decides which one wins.

ATOMICITY CONTRACT:
  Insert:     existence-check-then-insert as one isolated unit. The SQLite
              implementation uses a partial unique index on
              (entity_type, entity_id) WHERE status='pending', so the
              database itself rejects the loser of a race.
  Transition: check-then-status-check-then-update as one isolated unit.
              A status-guarded UPDATE (... WHERE id=? AND status='pending')
              means two concurrent decisions cannot both take effect; the
              second sees InvalidState.

NO CACHING:
  Implementations must not cache request state across calls. Every
  operation re-reads persisted state so a decision is never made against
  a stale status.

IMPLEMENTATIONS:
  - store/sqlite: production store, shared with the payment ledger
  - store/memory: in-memory store for engine tests

SEE ALSO:
  - workflow.go: The only consumer of this interface
  - cursor.go: Lazy iteration over pending requests
*/
package approval

import (
	"context"
	"time"
)

// PendingFilter narrows a pending-request scan. The zero value matches all
// entity types.
type PendingFilter struct {
	EntityType EntityType
}

// Store handles persistence of approval requests.
//
// Requests are append-then-transition: Insert creates a pending row,
// Transition resolves it exactly once. No delete operation exists;
// resolved requests are immutable audit records.
type Store interface {
	// Insert persists a new pending request and returns it with the
	// store-assigned ID. Returns ErrConflict (via ConflictError) if a
	// pending request already exists for (EntityType, EntityID).
	// The check and the insert execute as one atomic unit.
	Insert(ctx context.Context, req ApprovalRequest) (*ApprovalRequest, error)

	// Transition resolves a pending request and returns the updated record.
	// Returns ErrNotFound for an unknown id, ErrInvalidState (via
	// InvalidStateError) when the request is no longer pending. The status
	// check and the update execute as one atomic unit: of two concurrent
	// decisions, exactly one succeeds.
	Transition(ctx context.Context, id int64, decision Decision, actorID int64, comments string, at time.Time) (*ApprovalRequest, error)

	// Get returns the request by id, or (nil, nil) if it does not exist.
	Get(ctx context.Context, id int64) (*ApprovalRequest, error)

	// ListPending returns a lazy cursor over pending requests ordered by
	// request date ascending (oldest first). The cursor is finite; calling
	// ListPending again restarts the scan from current persisted state.
	ListPending(ctx context.Context, filter PendingFilter) (Cursor, error)

	// LatestByEntity returns the most recent request (by request date) for
	// the entity regardless of status, or (nil, nil) if never requested.
	LatestByEntity(ctx context.Context, entityType EntityType, entityID int64) (*ApprovalRequest, error)
}

// Cursor iterates lazily over a finite sequence of approval requests.
//
// Usage mirrors sql.Rows:
//
//	cur, err := store.ListPending(ctx, filter)
//	defer cur.Close()
//	for cur.Next() {
//	    req := cur.Request()
//	    ...
//	}
//	if err := cur.Err(); err != nil { ... }
type Cursor interface {
	// Next advances to the next request. Returns false when the sequence
	// is exhausted or an error occurred.
	Next() bool

	// Request returns the current request. Only valid after Next returned true.
	Request() ApprovalRequest

	// Err returns the first error encountered during iteration, if any.
	Err() error

	// Close releases resources held by the cursor.
	Close() error
}

// Collect drains a cursor into a slice and closes it. Convenience for
// callers that want the whole sequence at once.
func Collect(cur Cursor) ([]ApprovalRequest, error) {
	defer cur.Close()

	var out []ApprovalRequest
	for cur.Next() {
		out = append(out, cur.Request())
	}
	return out, cur.Err()
}
