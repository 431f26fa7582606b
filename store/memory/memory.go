// Package memory provides in-memory store implementations (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlaserp/approval-engine/approval"
	"github.com/atlaserp/approval-engine/ledger"
)

// =============================================================================
// APPROVAL STORE - In-memory implementation of approval.Store
// =============================================================================

type ApprovalStore struct {
	mu       sync.Mutex
	nextID   int64
	requests map[int64]approval.ApprovalRequest
}

func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{requests: make(map[int64]approval.ApprovalRequest)}
}

// Insert creates a pending request. The conflict check and the insert run
// under one lock, mirroring the database's atomic check-then-insert.
func (m *ApprovalStore) Insert(_ context.Context, req approval.ApprovalRequest) (*approval.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.requests {
		if existing.Status == approval.StatusPending &&
			existing.EntityType == req.EntityType &&
			existing.EntityID == req.EntityID {
			return nil, &approval.ConflictError{EntityType: req.EntityType, EntityID: req.EntityID}
		}
	}

	m.nextID++
	req.ID = m.nextID
	m.requests[req.ID] = req

	out := req
	return &out, nil
}

// Transition resolves a pending request under the same lock as the status
// check, so of two concurrent decisions exactly one succeeds.
func (m *ApprovalStore) Transition(_ context.Context, id int64, decision approval.Decision, actorID int64, comments string, at time.Time) (*approval.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	if req.Status != approval.StatusPending {
		return nil, &approval.InvalidStateError{RequestID: id, Status: req.Status}
	}

	req.Status = decision.Status()
	req.ActionDate = &at
	req.ActionedBy = &actorID
	req.Comments = comments
	m.requests[id] = req

	out := req
	return &out, nil
}

func (m *ApprovalStore) Get(_ context.Context, id int64) (*approval.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, nil
	}
	out := req
	return &out, nil
}

// ListPending snapshots the pending set under the lock, then iterates the
// snapshot lazily. Restarting means calling ListPending again.
func (m *ApprovalStore) ListPending(_ context.Context, filter approval.PendingFilter) (approval.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []approval.ApprovalRequest
	for _, req := range m.requests {
		if req.Status != approval.StatusPending {
			continue
		}
		if filter.EntityType != "" && req.EntityType != filter.EntityType {
			continue
		}
		pending = append(pending, req)
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].RequestDate.Equal(pending[j].RequestDate) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].RequestDate.Before(pending[j].RequestDate)
	})

	return &sliceCursor{requests: pending}, nil
}

func (m *ApprovalStore) LatestByEntity(_ context.Context, entityType approval.EntityType, entityID int64) (*approval.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *approval.ApprovalRequest
	for _, req := range m.requests {
		if req.EntityType != entityType || req.EntityID != entityID {
			continue
		}
		if latest == nil ||
			req.RequestDate.After(latest.RequestDate) ||
			(req.RequestDate.Equal(latest.RequestDate) && req.ID > latest.ID) {
			r := req
			latest = &r
		}
	}
	return latest, nil
}

// sliceCursor iterates over a pre-sorted snapshot.
type sliceCursor struct {
	requests []approval.ApprovalRequest
	pos      int
	current  approval.ApprovalRequest
}

func (c *sliceCursor) Next() bool {
	if c.pos >= len(c.requests) {
		return false
	}
	c.current = c.requests[c.pos]
	c.pos++
	return true
}

func (c *sliceCursor) Request() approval.ApprovalRequest { return c.current }
func (c *sliceCursor) Err() error                        { return nil }
func (c *sliceCursor) Close() error                      { return nil }

// =============================================================================
// LEDGER STORE - In-memory implementation of ledger.Store
// =============================================================================

type LedgerStore struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]ledger.Entry
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{entries: make(map[int64]ledger.Entry)}
}

func (m *LedgerStore) Record(_ context.Context, e ledger.Entry) (*ledger.Entry, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e.ID = m.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.entries[e.ID] = e

	out := e
	return &out, nil
}

// Seed inserts an entry without validation, standing in for legacy data or
// an external writer that bypasses this module.
func (m *LedgerStore) Seed(e ledger.Entry) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e.ID = m.nextID
	m.entries[e.ID] = e
	return e.ID
}

func (m *LedgerStore) Entry(_ context.Context, id int64) (*ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	out := e
	return &out, nil
}

func (m *LedgerStore) Entries(_ context.Context) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ledger.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *LedgerStore) CorruptEntryIDs(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []int64
	for id, e := range m.entries {
		if e.Corrupt() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *LedgerStore) FixGST(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || !e.Corrupt() {
		return false, nil
	}
	e.GSTAmount = decimal.Zero
	m.entries[id] = e
	return true, nil
}
