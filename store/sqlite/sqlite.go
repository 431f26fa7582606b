/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements approval.Store and ledger.Store over one SQLite database.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  approval.Store: Approval request persistence with atomic check-then-act
  ledger.Store:   Payment records and the single-row reconciliation fix

ATOMIC CHECK-THEN-ACT:
  The one-pending-per-entity invariant is NOT an application-level check
  followed by an insert (two statements = latent race). It is a partial
  unique index, so the existence check and the insert are one isolated
  unit inside the database:

      CREATE UNIQUE INDEX idx_approvals_one_pending
          ON approvals(entity_type, entity_id) WHERE status = 'pending'

  Decisions use a status-guarded UPDATE (WHERE id = ? AND status =
  'pending'); of two concurrent decisions exactly one changes a row, the
  other reads the resolved status and fails with InvalidState.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single pooled connection,
  which SQLite prefers. Cursors returned by ListPending hold the
  connection until Close; collect them before issuing further queries.

MIGRATION:
  Schema is applied via embedded goose migrations on New(). See
  migrate.go and migrations/.

SEE ALSO:
  - approval/store.go: Interface contract and atomicity requirements
  - ledger/ledger.go: Ledger interface contract
  - introspect.go: Table/column introspection and schema verification
  - store/memory: In-memory implementation for engine tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/atlaserp/approval-engine/approval"
	"github.com/atlaserp/approval-engine/ledger"
)

// Store implements the approval and ledger storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and applies pending
// migrations. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite allows a single writer, and :memory:
	// databases exist per-connection.
	db.SetMaxOpenConns(1)

	if err := Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for migration tooling and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// =============================================================================
// APPROVAL STORE (approval.Store interface)
// =============================================================================

const approvalColumns = `id, entity_type, entity_id, requester_id, status,
	request_date, action_date, actioned_by, comments, amount`

// Insert persists a new pending request. The partial unique index performs
// the existence-check-then-insert atomically; a constraint violation means
// a pending request already exists for the entity.
func (s *Store) Insert(ctx context.Context, req approval.ApprovalRequest) (*approval.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO approvals (entity_type, entity_id, requester_id, status, request_date, amount)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		string(req.EntityType),
		req.EntityID,
		req.RequesterID,
		string(req.Status),
		req.RequestDate.UTC(),
		req.AmountSnapshot.String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, &approval.ConflictError{EntityType: req.EntityType, EntityID: req.EntityID}
		}
		return nil, &approval.StoreError{Op: "insert", Err: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, &approval.StoreError{Op: "insert", Err: err}
	}

	return s.getRequest(ctx, s.db, id)
}

// Transition resolves a pending request. The status-guarded UPDATE and the
// not-found/resolved disambiguation run inside one database transaction.
func (s *Store) Transition(ctx context.Context, id int64, decision approval.Decision, actorID int64, comments string, at time.Time) (*approval.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &approval.StoreError{Op: "transition", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE approvals
		SET status = ?, action_date = ?, actioned_by = ?, comments = ?
		WHERE id = ? AND status = 'pending'
	`, string(decision.Status()), at.UTC(), actorID, nullString(comments), id)
	if err != nil {
		return nil, &approval.StoreError{Op: "transition", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, &approval.StoreError{Op: "transition", Err: err}
	}

	if affected == 0 {
		// Either the id is unknown or the request is already resolved.
		var status string
		err := tx.QueryRowContext(ctx, "SELECT status FROM approvals WHERE id = ?", id).Scan(&status)
		if err == sql.ErrNoRows {
			return nil, approval.ErrNotFound
		}
		if err != nil {
			return nil, &approval.StoreError{Op: "transition", Err: err}
		}
		return nil, &approval.InvalidStateError{RequestID: id, Status: approval.Status(status)}
	}

	updated, err := s.getRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, &approval.StoreError{Op: "transition", Err: err}
	}
	return updated, nil
}

// Get returns the request by id, or (nil, nil) if it does not exist.
func (s *Store) Get(ctx context.Context, id int64) (*approval.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, err := s.getRequest(ctx, s.db, id)
	if approval.IsNotFound(err) {
		return nil, nil
	}
	return req, err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getRequest(ctx context.Context, q querier, id int64) (*approval.ApprovalRequest, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+approvalColumns+" FROM approvals WHERE id = ?", id)

	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, approval.ErrNotFound
	}
	if err != nil {
		return nil, &approval.StoreError{Op: "get", Err: err}
	}
	return req, nil
}

// ListPending returns a lazy cursor over pending requests, oldest first.
// The cursor wraps sql.Rows: the scan is finite, driven row by row, and
// restartable by calling ListPending again.
func (s *Store) ListPending(ctx context.Context, filter approval.PendingFilter) (approval.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + approvalColumns + ` FROM approvals WHERE status = 'pending'`
	var args []any
	if filter.EntityType != "" {
		query += " AND entity_type = ?"
		args = append(args, string(filter.EntityType))
	}
	query += " ORDER BY request_date ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &approval.StoreError{Op: "list pending", Err: err}
	}
	return &rowsCursor{rows: rows}, nil
}

// LatestByEntity returns the most recent request for the entity regardless
// of status, or (nil, nil) if never requested.
func (s *Store) LatestByEntity(ctx context.Context, entityType approval.EntityType, entityID int64) (*approval.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+approvalColumns+` FROM approvals
		 WHERE entity_type = ? AND entity_id = ?
		 ORDER BY request_date DESC, id DESC
		 LIMIT 1`,
		string(entityType), entityID)

	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &approval.StoreError{Op: "latest by entity", Err: err}
	}
	return req, nil
}

// rowsCursor adapts sql.Rows to the approval.Cursor interface.
type rowsCursor struct {
	rows    *sql.Rows
	current approval.ApprovalRequest
	err     error
}

func (c *rowsCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	req, err := scanRequest(c.rows)
	if err != nil {
		c.err = err
		return false
	}
	c.current = *req
	return true
}

func (c *rowsCursor) Request() approval.ApprovalRequest { return c.current }

func (c *rowsCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *rowsCursor) Close() error { return c.rows.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*approval.ApprovalRequest, error) {
	var (
		req        approval.ApprovalRequest
		entityType string
		status     string
		actionDate sql.NullTime
		actionedBy sql.NullInt64
		comments   sql.NullString
		amount     sql.NullString
	)

	err := row.Scan(
		&req.ID, &entityType, &req.EntityID, &req.RequesterID, &status,
		&req.RequestDate, &actionDate, &actionedBy, &comments, &amount,
	)
	if err != nil {
		return nil, err
	}

	req.EntityType = approval.EntityType(entityType)
	req.Status = approval.Status(status)
	req.RequestDate = req.RequestDate.UTC()
	if actionDate.Valid {
		t := actionDate.Time.UTC()
		req.ActionDate = &t
	}
	if actionedBy.Valid {
		v := actionedBy.Int64
		req.ActionedBy = &v
	}
	req.Comments = comments.String
	req.AmountSnapshot = parseDecimal(amount.String)

	return &req, nil
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

const paymentColumns = `id, reference, amount, accounting_type, gst_amount, paid_at, created_at`

// Record persists a new payment. Entries written through this API must
// already satisfy the accounting invariant; only external writers and
// legacy rows can violate it.
func (s *Store) Record(ctx context.Context, e ledger.Entry) (*ledger.Entry, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (reference, amount, accounting_type, gst_amount, paid_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		nullString(e.Reference),
		e.Amount.String(),
		string(e.AccountingType),
		e.GSTAmount.String(),
		nullTime(e.PaidAt),
		createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}
	return s.getEntry(ctx, id)
}

// Entry returns the payment by id, or (nil, nil) if it does not exist.
func (s *Store) Entry(ctx context.Context, id int64) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEntry(ctx, id)
}

func (s *Store) getEntry(ctx context.Context, id int64) (*ledger.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)

	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return e, nil
}

// Entries returns all payments ordered by id.
func (s *Store) Entries(ctx context.Context) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// CorruptEntryIDs returns ids of payments violating the accounting invariant.
func (s *Store) CorruptEntryIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM payments
		WHERE accounting_type = 'non_accountable' AND gst_amount > 0
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan corrupt payments: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FixGST zeroes the gst amount on a payment if and only if it is still
// corrupt at update time. The predicate is re-checked inside the statement,
// so the fix is an independent, idempotent single-row update.
func (s *Store) FixGST(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET gst_amount = 0
		WHERE id = ? AND accounting_type = 'non_accountable' AND gst_amount > 0
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to fix payment %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanEntry(row rowScanner) (*ledger.Entry, error) {
	var (
		e         ledger.Entry
		reference sql.NullString
		amount    sql.NullString
		acctType  string
		gst       sql.NullString
		paidAt    sql.NullTime
	)

	err := row.Scan(&e.ID, &reference, &amount, &acctType, &gst, &paidAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	e.Reference = reference.String
	e.Amount = parseDecimal(amount.String)
	e.AccountingType = ledger.AccountingType(acctType)
	e.GSTAmount = parseDecimal(gst.String)
	if paidAt.Valid {
		e.PaidAt = paidAt.Time.UTC()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	return &e, nil
}

// =============================================================================
// RECONCILIATION RUNS STORE
// =============================================================================

// ReconciliationRun records one execution of the ledger reconciliation pass.
type ReconciliationRun struct {
	ID             string
	Status         string // running, completed, failed
	ScannedCorrupt int
	Fixed          int
	Error          string
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
}

// SaveReconciliationRun inserts or updates a run record.
func (s *Store) SaveReconciliationRun(ctx context.Context, r ReconciliationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO reconciliation_runs (id, status, scanned_corrupt, fixed, error, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			scanned_corrupt = excluded.scanned_corrupt,
			fixed = excluded.fixed,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Status, r.ScannedCorrupt, r.Fixed, nullString(r.Error),
		nullTimePtr(r.StartedAt), nullTimePtr(r.CompletedAt), r.CreatedAt.UTC(),
	)
	return err
}

// ListReconciliationRuns returns run records, newest first, optionally
// filtered by status.
func (s *Store) ListReconciliationRuns(ctx context.Context, status string) ([]ReconciliationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, status, scanned_corrupt, fixed, error, started_at, completed_at, created_at
		FROM reconciliation_runs
	`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ReconciliationRun
	for rows.Next() {
		var (
			r          ReconciliationRun
			errMsg     sql.NullString
			startedAt  sql.NullTime
			completedAt sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Status, &r.ScannedCorrupt, &r.Fixed,
			&errMsg, &startedAt, &completedAt, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Error = errMsg.String
		if startedAt.Valid {
			t := startedAt.Time.UTC()
			r.StartedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time.UTC()
			r.CompletedAt = &t
		}
		r.CreatedAt = r.CreatedAt.UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
