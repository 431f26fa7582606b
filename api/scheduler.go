/*
scheduler.go - Automated ledger reconciliation scheduler

PURPOSE:
  The GST invariant used to be restored by hand, whenever someone noticed
  corrupted rows. This scheduler makes it a repeatable maintenance
  operation: a background goroutine runs the reconciliation pass on a
  configurable interval and records every run for audit and the admin UI.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Each pass is idempotent, so overlapping with manual triggers is safe
  - Row fixes are independent single-row updates; the pass never blocks
    normal request traffic for more than one row update

USAGE:
  scheduler := NewReconciliationScheduler(handler, interval, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerReconciliation endpoint (manual pass)
  - ledger/reconcile.go: The pass itself
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ReconciliationScheduler runs the ledger reconciliation pass periodically.
type ReconciliationScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReconciliationScheduler creates a new scheduler.
func NewReconciliationScheduler(handler *Handler, interval time.Duration, log zerolog.Logger) *ReconciliationScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReconciliationScheduler{
		Handler:       handler,
		CheckInterval: interval,
		Enabled:       true,
		log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info().Msg("reconciliation scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)
	go rs.run()

	rs.log.Info().Dur("interval", rs.CheckInterval).Msg("reconciliation scheduler started")
}

// Stop stops the scheduler.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.log.Info().Msg("reconciliation scheduler stopped")
	}
}

func (rs *ReconciliationScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.runOnce()

	for {
		select {
		case <-rs.ticker.C:
			rs.runOnce()
		case <-rs.stop:
			return
		}
	}
}

func (rs *ReconciliationScheduler) runOnce() {
	ctx := context.Background()

	run, report, err := rs.Handler.ExecuteReconciliation(ctx)
	if err != nil {
		rs.log.Error().Err(err).Str("run_id", run.ID).Msg("scheduled reconciliation failed")
		return
	}

	if report.ScannedCorrupt > 0 {
		rs.log.Info().
			Str("run_id", run.ID).
			Int("scanned_corrupt", report.ScannedCorrupt).
			Int("fixed", report.Fixed).
			Msg("scheduled reconciliation completed")
	}
}

// RunNow triggers an immediate pass (for testing/admin).
func (rs *ReconciliationScheduler) RunNow() {
	rs.runOnce()
}
