/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the approval engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and environment configuration
  2. Build the structured logger
  3. Open the SQLite store (migrations apply automatically)
  4. Verify the schema the engines depend on
  5. Wire engines, metrics, handler, router
  6. Start the reconciliation scheduler
  7. Start the server with graceful shutdown

CONFIGURATION (environment, APPROVAL_ prefix):
  APPROVAL_PORT                 HTTP server port (default: 8080)
  APPROVAL_DB_PATH              SQLite database path (default: approvals.db)
  APPROVAL_LOG_LEVEL            zerolog level (default: info)
  APPROVAL_RECONCILE_ENABLED    background reconciliation (default: true)
  APPROVAL_RECONCILE_INTERVAL   pass interval (default: 1h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, close the database
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite: Database implementation and migrations
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/atlaserp/approval-engine/api"
	"github.com/atlaserp/approval-engine/approval"
	"github.com/atlaserp/approval-engine/config"
	"github.com/atlaserp/approval-engine/ledger"
	"github.com/atlaserp/approval-engine/logging"
	"github.com/atlaserp/approval-engine/metrics"
	"github.com/atlaserp/approval-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments export variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Options{
		ServiceName: "approval-engine",
		Level:       cfg.App.LogLevel,
	})

	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("failed to initialize database")
	}
	defer store.Close()

	if err := store.VerifySchema(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("schema verification failed")
	}

	// Decision events go to the log until the purchase-order/expense module
	// registers its own sink.
	sink := approval.SinkFunc(func(_ context.Context, ev approval.DecisionEvent) error {
		log.Info().
			Int64("request_id", ev.RequestID).
			Str("entity_type", string(ev.EntityType)).
			Int64("entity_id", ev.EntityID).
			Str("decision", string(ev.Decision)).
			Int64("actor_id", ev.ActorID).
			Msg("approval decision")
		return nil
	})

	workflow := approval.NewWorkflow(store, sink)
	reconciler := ledger.NewReconciler(store, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler := api.NewHandler(store, workflow, reconciler, log)
	handler.ApprovalMetrics = metrics.NewApprovalMetrics(reg)
	handler.ReconcileMetrics = metrics.NewReconcileMetrics(reg)

	scheduler := api.NewReconciliationScheduler(handler, cfg.Scheduler.Interval, log)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(handler, reg)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.App.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
