/*
Package ledger owns payment records and their accounting invariant.

PURPOSE:
  Every payment carries an accounting classification and a GST amount.
  The invariant this package exists to protect:

      accounting_type == non_accountable  ⇒  gst_amount == 0

  Legacy data and external writers can violate it, so it is ENFORCED by
  the reconciliation pass (reconcile.go), never assumed. This package's
  own Record API additionally rejects non-compliant writes outright, so
  new corruption can only come from outside.

KEY CONCEPTS IN THIS FILE (ledger.go):
  - AccountingType: tax-relevant (accountable) or not (non_accountable)
  - Entry: a single payment record
  - Store: persistence contract, including the single-row fix primitive

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for money, never float64
  2. Closed enumeration for the accounting type
  3. Row-at-a-time fixes: reconciliation never holds a long transaction

SEE ALSO:
  - reconcile.go: The corrective maintenance pass
  - store/sqlite: Production store over the payments table
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNTING TYPE
// =============================================================================

// AccountingType classifies a payment as tax-relevant or not.
type AccountingType string

const (
	Accountable    AccountingType = "accountable"
	NonAccountable AccountingType = "non_accountable"
)

// Valid reports whether the accounting type is one of the known values.
func (a AccountingType) Valid() bool {
	return a == Accountable || a == NonAccountable
}

// =============================================================================
// ENTRY - A payment record
// =============================================================================

// Entry is a single payment record in the ledger.
type Entry struct {
	ID             int64
	Reference      string
	Amount         decimal.Decimal
	AccountingType AccountingType
	GSTAmount      decimal.Decimal
	PaidAt         time.Time
	CreatedAt      time.Time
}

// ErrValidation is returned when an entry violates the accounting invariant
// or carries malformed values. Nothing is written.
var ErrValidation = errors.New("invalid ledger entry")

// Validate checks the entry against the accounting invariant. Record
// implementations call this before any write; external writers bypass it,
// which is exactly why reconciliation exists.
func (e Entry) Validate() error {
	if !e.AccountingType.Valid() {
		return fmt.Errorf("%w: unknown accounting type %q", ErrValidation, e.AccountingType)
	}
	if e.GSTAmount.IsNegative() {
		return fmt.Errorf("%w: gst amount must not be negative", ErrValidation)
	}
	if e.AccountingType == NonAccountable && e.GSTAmount.IsPositive() {
		return fmt.Errorf("%w: non-accountable payment must carry zero gst", ErrValidation)
	}
	return nil
}

// Corrupt reports whether the entry violates the accounting invariant.
func (e Entry) Corrupt() bool {
	return e.AccountingType == NonAccountable && e.GSTAmount.IsPositive()
}

// =============================================================================
// STORE - Persistence contract
// =============================================================================

// Store handles persistence of ledger entries.
//
// FixGST is the reconciliation primitive: an independent, idempotent
// single-row update that re-checks the corruption predicate inside the
// statement itself, so a concurrent writer or a repeated run can never
// double-fix or clobber a compliant row.
type Store interface {
	// Record persists a new entry and returns it with the store-assigned ID.
	// The entry must pass Validate.
	Record(ctx context.Context, e Entry) (*Entry, error)

	// Entry returns the entry by id, or (nil, nil) if it does not exist.
	Entry(ctx context.Context, id int64) (*Entry, error)

	// Entries returns all entries ordered by id ascending.
	Entries(ctx context.Context) ([]Entry, error)

	// CorruptEntryIDs returns the ids of entries currently violating the
	// accounting invariant (non_accountable with gst_amount > 0).
	CorruptEntryIDs(ctx context.Context) ([]int64, error)

	// FixGST zeroes the gst amount of the given entry if and only if it is
	// still corrupt at update time. Returns true when a row was changed.
	FixGST(ctx context.Context, id int64) (bool, error)
}
