package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlaserp/approval-engine/approval"
	"github.com/atlaserp/approval-engine/ledger"
	"github.com/atlaserp/approval-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func pendingRequest(entityType approval.EntityType, entityID int64) approval.ApprovalRequest {
	return approval.ApprovalRequest{
		EntityType:     entityType,
		EntityID:       entityID,
		RequesterID:    7,
		Status:         approval.StatusPending,
		RequestDate:    time.Now().UTC(),
		AmountSnapshot: decimal.RequireFromString("10000.00"),
	}
}

// seedPayment writes a ledger row with raw SQL, bypassing Record's
// validation the way an external writer would.
func seedPayment(t *testing.T, store *sqlite.Store, ref string, accountingType string, gst string) int64 {
	t.Helper()

	res, err := store.DB().Exec(`
		INSERT INTO payments (reference, amount, accounting_type, gst_amount, paid_at)
		VALUES (?, ?, ?, ?, ?)
	`, ref, "10000.00", accountingType, gst, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// =============================================================================
// APPROVALS
// =============================================================================

func TestInsert_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	stored, err := store.Insert(ctx, pendingRequest(approval.EntityPurchaseOrder, 42))
	require.NoError(t, err)

	assert.NotZero(t, stored.ID)
	assert.Equal(t, approval.EntityPurchaseOrder, stored.EntityType)
	assert.Equal(t, int64(42), stored.EntityID)
	assert.Equal(t, int64(7), stored.RequesterID)
	assert.Equal(t, approval.StatusPending, stored.Status)
	assert.False(t, stored.RequestDate.IsZero())
	assert.Nil(t, stored.ActionDate)
	assert.Nil(t, stored.ActionedBy)
	assert.True(t, stored.AmountSnapshot.Equal(decimal.NewFromInt(10000)))

	got, err := store.Get(ctx, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stored.ID, got.ID)
	assert.True(t, stored.AmountSnapshot.Equal(got.AmountSnapshot))
}

func TestInsert_PendingUniquenessEnforcedByIndex(t *testing.T) {
	// GIVEN: A pending request for purchase order 42
	// WHEN: A second pending row for the same entity hits the database
	// THEN: The partial unique index rejects it with a conflict

	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Insert(ctx, pendingRequest(approval.EntityPurchaseOrder, 42))
	require.NoError(t, err)

	_, err = store.Insert(ctx, pendingRequest(approval.EntityPurchaseOrder, 42))
	require.Error(t, err)
	assert.True(t, approval.IsConflict(err))

	var conflict *approval.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, approval.EntityPurchaseOrder, conflict.EntityType)
	assert.Equal(t, int64(42), conflict.EntityID)

	// The index covers pending rows only: same id, other type is fine.
	_, err = store.Insert(ctx, pendingRequest(approval.EntityExpense, 42))
	require.NoError(t, err)
}

func TestInsert_AllowedAfterResolution(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.Insert(ctx, pendingRequest(approval.EntityExpense, 10))
	require.NoError(t, err)

	_, err = store.Transition(ctx, first.ID, approval.DecisionRejected, 3, "over budget", time.Now().UTC())
	require.NoError(t, err)

	_, err = store.Insert(ctx, pendingRequest(approval.EntityExpense, 10))
	require.NoError(t, err)
}

func TestTransition_GuardedUpdate(t *testing.T) {
	// WHEN: A pending request is approved
	// THEN: The row carries the decision, actor, action date and comment

	ctx := context.Background()
	store := newTestStore(t)

	req, err := store.Insert(ctx, pendingRequest(approval.EntityPurchaseOrder, 42))
	require.NoError(t, err)

	at := time.Now().UTC()
	updated, err := store.Transition(ctx, req.ID, approval.DecisionApproved, 3, "looks good", at)
	require.NoError(t, err)

	assert.Equal(t, approval.StatusApproved, updated.Status)
	require.NotNil(t, updated.ActionedBy)
	assert.Equal(t, int64(3), *updated.ActionedBy)
	require.NotNil(t, updated.ActionDate)
	assert.WithinDuration(t, at, *updated.ActionDate, time.Second)
	assert.Equal(t, "looks good", updated.Comments)
}

func TestTransition_UnknownID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Transition(ctx, 9999, approval.DecisionApproved, 3, "", time.Now().UTC())
	require.Error(t, err)
	assert.True(t, approval.IsNotFound(err))
}

func TestTransition_AlreadyResolved(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	req, err := store.Insert(ctx, pendingRequest(approval.EntityPurchaseOrder, 42))
	require.NoError(t, err)

	_, err = store.Transition(ctx, req.ID, approval.DecisionApproved, 3, "", time.Now().UTC())
	require.NoError(t, err)

	_, err = store.Transition(ctx, req.ID, approval.DecisionRejected, 9, "", time.Now().UTC())
	require.Error(t, err)

	var invalid *approval.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, req.ID, invalid.RequestID)
	assert.Equal(t, approval.StatusApproved, invalid.Status)

	// First decision stands.
	current, err := store.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, current.Status)
	assert.Equal(t, int64(3), *current.ActionedBy)
}

func TestGet_Missing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	got, err := store.Get(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// =============================================================================
// WORKFLOW OVER SQLITE (end-to-end through the real store)
// =============================================================================

func TestWorkflow_ConcurrentCreate_ExactlyOneSucceeds(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	wf := approval.NewWorkflow(store, nil)

	const callers = 8
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = wf.CreateRequest(ctx, approval.CreateInput{
				EntityType:     approval.EntityPurchaseOrder,
				EntityID:       42,
				RequesterID:    int64(i + 1),
				AmountSnapshot: decimal.NewFromInt(10000),
			})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, approval.IsConflict(err), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestWorkflow_ConcurrentDecide_OneWins(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	wf := approval.NewWorkflow(store, nil)

	req, err := wf.CreateRequest(ctx, approval.CreateInput{
		EntityType:     approval.EntityExpense,
		EntityID:       7,
		RequesterID:    1,
		AmountSnapshot: decimal.NewFromInt(500),
	})
	require.NoError(t, err)

	const actors = 4
	errs := make([]error, actors)

	var wg sync.WaitGroup
	for i := 0; i < actors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = wf.Decide(ctx, req.ID, approval.DecideInput{
				ActorID:  int64(i + 1),
				Decision: approval.DecisionApproved,
			})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, approval.IsInvalidState(err), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
}

// =============================================================================
// PENDING CURSOR
// =============================================================================

func TestListPending_OrderFilterRestart(t *testing.T) {
	// GIVEN: Requests created at distinct dates, one resolved
	// WHEN: Listing pending requests
	// THEN: Resolved rows are excluded, order is oldest first, and a
	//       fresh cursor replays the sequence

	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mkReq := func(entityType approval.EntityType, entityID int64, offset time.Duration) *approval.ApprovalRequest {
		req := pendingRequest(entityType, entityID)
		req.RequestDate = base.Add(offset)
		stored, err := store.Insert(ctx, req)
		require.NoError(t, err)
		return stored
	}

	newest := mkReq(approval.EntityExpense, 3, 2*time.Hour)
	oldest := mkReq(approval.EntityExpense, 1, 0)
	po := mkReq(approval.EntityPurchaseOrder, 2, time.Hour)
	resolved := mkReq(approval.EntityExpense, 4, 30*time.Minute)

	_, err := store.Transition(ctx, resolved.ID, approval.DecisionApproved, 3, "", time.Now().UTC())
	require.NoError(t, err)

	cur, err := store.ListPending(ctx, approval.PendingFilter{})
	require.NoError(t, err)
	all, err := approval.Collect(cur)
	require.NoError(t, err)

	require.Len(t, all, 3)
	assert.Equal(t, oldest.ID, all[0].ID)
	assert.Equal(t, po.ID, all[1].ID)
	assert.Equal(t, newest.ID, all[2].ID)

	cur, err = store.ListPending(ctx, approval.PendingFilter{EntityType: approval.EntityExpense})
	require.NoError(t, err)
	expenses, err := approval.Collect(cur)
	require.NoError(t, err)

	require.Len(t, expenses, 2)
	assert.Equal(t, oldest.ID, expenses[0].ID)
	assert.Equal(t, newest.ID, expenses[1].ID)

	// Restart: iterating again starts from the beginning.
	cur, err = store.ListPending(ctx, approval.PendingFilter{EntityType: approval.EntityExpense})
	require.NoError(t, err)
	again, err := approval.Collect(cur)
	require.NoError(t, err)
	assert.Equal(t, len(expenses), len(again))
	assert.Equal(t, expenses[0].ID, again[0].ID)
}

func TestListPending_CursorCloseEarly(t *testing.T) {
	// A consumer may stop mid-iteration; Close must release the rows.

	ctx := context.Background()
	store := newTestStore(t)

	for i := int64(1); i <= 3; i++ {
		_, err := store.Insert(ctx, pendingRequest(approval.EntityExpense, i))
		require.NoError(t, err)
	}

	cur, err := store.ListPending(ctx, approval.PendingFilter{})
	require.NoError(t, err)

	require.True(t, cur.Next())
	require.NoError(t, cur.Close())

	// The store remains usable afterwards.
	_, err = store.Insert(ctx, pendingRequest(approval.EntityExpense, 99))
	require.NoError(t, err)
}

func TestLatestByEntity(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.Insert(ctx, pendingRequest(approval.EntityPurchaseOrder, 42))
	require.NoError(t, err)
	_, err = store.Transition(ctx, first.ID, approval.DecisionRejected, 3, "", time.Now().UTC())
	require.NoError(t, err)

	second := pendingRequest(approval.EntityPurchaseOrder, 42)
	second.RequestDate = first.RequestDate.Add(time.Minute)
	stored, err := store.Insert(ctx, second)
	require.NoError(t, err)

	latest, err := store.LatestByEntity(ctx, approval.EntityPurchaseOrder, 42)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, stored.ID, latest.ID)

	none, err := store.LatestByEntity(ctx, approval.EntityExpense, 77)
	require.NoError(t, err)
	assert.Nil(t, none)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestRecord_RoundTripAndValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	stored, err := store.Record(ctx, ledger.Entry{
		Reference:      "PAY-001",
		Amount:         decimal.RequireFromString("10000.00"),
		AccountingType: ledger.Accountable,
		GSTAmount:      decimal.RequireFromString("1500.00"),
		PaidAt:         time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.NotZero(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())

	got, err := store.Entry(ctx, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "PAY-001", got.Reference)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(10000)))
	assert.True(t, got.GSTAmount.Equal(decimal.NewFromInt(1500)))

	// The invariant is checked before anything reaches the database.
	_, err = store.Record(ctx, ledger.Entry{
		Reference:      "PAY-002",
		Amount:         decimal.NewFromInt(500),
		AccountingType: ledger.NonAccountable,
		GSTAmount:      decimal.NewFromInt(50),
		PaidAt:         time.Now().UTC(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestReconcile_OverSQLite(t *testing.T) {
	// GIVEN: Corrupt rows seeded around compliant ones, bypassing Record
	// WHEN: Reconciliation runs twice
	// THEN: Only corrupt rows are zeroed, and the second run is a no-op

	ctx := context.Background()
	store := newTestStore(t)

	okID := seedPayment(t, store, "PAY-001", "accountable", "1500.00")
	corruptA := seedPayment(t, store, "PAY-002", "non_accountable", "500.00")
	cleanID := seedPayment(t, store, "PAY-003", "non_accountable", "0")
	corruptB := seedPayment(t, store, "PAY-004", "non_accountable", "0.01")

	ids, err := store.CorruptEntryIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{corruptA, corruptB}, ids)

	rec := ledger.NewReconciler(store, zerolog.Nop())

	report, err := rec.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ScannedCorrupt)
	assert.Equal(t, 2, report.Fixed)

	for _, id := range []int64{corruptA, corruptB} {
		e, err := store.Entry(ctx, id)
		require.NoError(t, err)
		assert.True(t, e.GSTAmount.IsZero(), "entry %d not fixed", id)
	}

	ok, err := store.Entry(ctx, okID)
	require.NoError(t, err)
	assert.True(t, ok.GSTAmount.Equal(decimal.NewFromInt(1500)))

	clean, err := store.Entry(ctx, cleanID)
	require.NoError(t, err)
	assert.True(t, clean.GSTAmount.IsZero())

	report, err = rec.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.Report{}, report)
}

func TestFixGST_RechecksPredicate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	okID := seedPayment(t, store, "PAY-001", "accountable", "1500.00")

	// A row that is not corrupt is never touched, even when asked.
	fixed, err := store.FixGST(ctx, okID)
	require.NoError(t, err)
	assert.False(t, fixed)

	fixed, err = store.FixGST(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, fixed)
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

func TestReconciliationRuns_SaveAndList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	started := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	completed := started.Add(3 * time.Second)

	run := sqlite.ReconciliationRun{
		ID:        "run-1",
		Status:    "running",
		StartedAt: &started,
		CreatedAt: started,
	}
	require.NoError(t, store.SaveReconciliationRun(ctx, run))

	// Upsert: the same run transitions to completed with its counters.
	run.Status = "completed"
	run.ScannedCorrupt = 3
	run.Fixed = 3
	run.CompletedAt = &completed
	require.NoError(t, store.SaveReconciliationRun(ctx, run))

	failed := sqlite.ReconciliationRun{
		ID:        "run-2",
		Status:    "failed",
		Error:     "ledger scan: disk I/O error",
		StartedAt: &completed,
		CreatedAt: started.Add(time.Hour),
	}
	require.NoError(t, store.SaveReconciliationRun(ctx, failed))

	runs, err := store.ListReconciliationRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID) // newest first
	assert.Equal(t, "run-1", runs[1].ID)
	assert.Equal(t, 3, runs[1].Fixed)
	require.NotNil(t, runs[1].CompletedAt)

	completedOnly, err := store.ListReconciliationRuns(ctx, "completed")
	require.NoError(t, err)
	require.Len(t, completedOnly, 1)
	assert.Equal(t, "run-1", completedOnly[0].ID)
}

// =============================================================================
// SCHEMA INTROSPECTION
// =============================================================================

func TestIntrospection(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, table := range []string{"approvals", "payments", "reconciliation_runs"} {
		exists, err := store.TableExists(ctx, table)
		require.NoError(t, err)
		assert.True(t, exists, "table %s missing", table)
	}

	exists, err := store.TableExists(ctx, "no_such_table")
	require.NoError(t, err)
	assert.False(t, exists)

	cols, err := store.TableColumns(ctx, "approvals")
	require.NoError(t, err)

	byName := make(map[string]sqlite.Column, len(cols))
	for _, c := range cols {
		byName[c.Name] = c
	}
	require.Contains(t, byName, "entity_type")
	assert.True(t, byName["entity_type"].NotNull)
	require.Contains(t, byName, "id")
	assert.True(t, byName["id"].PrimaryKey)
	require.Contains(t, byName, "amount")

	_, err = store.TableColumns(ctx, "approvals; DROP TABLE approvals")
	require.Error(t, err)

	require.NoError(t, store.VerifySchema(ctx))
}
