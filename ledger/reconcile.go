/*
reconcile.go - Corrective maintenance pass over the payment ledger

PURPOSE:
  Restores the accounting invariant after it has been violated: every
  non-accountable payment found carrying GST is fixed back to zero GST.
  Rows where the invariant already holds are never touched; accountable
  rows are never touched regardless of their GST value.

DESIGN:
  - Scan produces the candidate ids, then each fix is applied as an
    independent single-row update re-checking the predicate. No long-held
    transaction; the pass never blocks unrelated ledger writes for more
    than one row update.
  - Idempotent: a second run immediately after a clean first run scans
    zero corrupt rows. A run interrupted mid-scan is safe to restart.
  - Designed for the maintenance path (scheduler, admin endpoint), not
    the request-serving path.

USAGE:
  rec := ledger.NewReconciler(store, log)
  report, err := rec.Reconcile(ctx)
  // report.ScannedCorrupt rows found, report.Fixed rows changed
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Report summarizes one reconciliation pass.
type Report struct {
	// ScannedCorrupt is the number of rows found violating the invariant.
	ScannedCorrupt int `json:"scanned_corrupt"`

	// Fixed is the number of rows actually changed. It can be lower than
	// ScannedCorrupt when a concurrent writer fixed a row first.
	Fixed int `json:"fixed"`
}

// Reconciler runs the corrective pass.
type Reconciler struct {
	store Store
	log   zerolog.Logger
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store Store, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

// Reconcile scans for entries violating the accounting invariant and zeroes
// their GST amount, one independent row update at a time. A store failure
// aborts the pass and is surfaced verbatim; rows already fixed stay fixed.
func (r *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	ids, err := r.store.CorruptEntryIDs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("scan corrupt entries: %w", err)
	}

	report := Report{ScannedCorrupt: len(ids)}
	for _, id := range ids {
		fixed, err := r.store.FixGST(ctx, id)
		if err != nil {
			return report, fmt.Errorf("fix entry %d: %w", id, err)
		}
		if fixed {
			report.Fixed++
			r.log.Info().Int64("entry_id", id).Msg("zeroed gst on non-accountable payment")
		}
	}

	if report.ScannedCorrupt > 0 {
		r.log.Info().
			Int("scanned_corrupt", report.ScannedCorrupt).
			Int("fixed", report.Fixed).
			Msg("ledger reconciliation completed")
	}

	return report, nil
}
