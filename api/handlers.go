/*
handlers.go - HTTP API handlers for the approval and ledger engines

PURPOSE:
  Exposes the engines via REST. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Approvals:
    POST   /api/approvals                      Create approval request
    GET    /api/approvals/pending              Pending queue (oldest first)
    GET    /api/approvals/{id}                 Get request by id
    POST   /api/approvals/{id}/approve         Approve pending request
    POST   /api/approvals/{id}/reject          Reject pending request
    GET    /api/approvals/entity/{type}/{id}   Latest request for an entity

  Ledger:
    POST   /api/payments                       Record payment
    GET    /api/payments                       List payments

  Reconciliation:
    POST   /api/reconciliation/run             Trigger reconciliation pass
    GET    /api/reconciliation/runs            List recorded passes

  Admin:
    GET    /api/admin/schema                   Live table/column layout
    GET    /api/health                         Liveness probe

ERROR HANDLING:
  Domain error kinds map to HTTP status:
  - 400: malformed input (validation)
  - 404: unknown request id / entity never requested
  - 409: duplicate pending request, decision on a resolved request
  - 500: persistence failures (surfaced, never retried)

SECURITY NOTE:
  No authentication middleware. Actor identity arrives in the request
  body from the upstream session layer, which owns authentication.

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Router setup and middleware
  - scheduler.go: Background reconciliation
*/
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/atlaserp/approval-engine/approval"
	"github.com/atlaserp/approval-engine/ledger"
	"github.com/atlaserp/approval-engine/metrics"
	"github.com/atlaserp/approval-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Workflow   *approval.Workflow
	Reconciler *ledger.Reconciler

	Log              zerolog.Logger
	ApprovalMetrics  *metrics.ApprovalMetrics
	ReconcileMetrics *metrics.ReconcileMetrics
}

// NewHandler creates a handler over the given store and engines.
func NewHandler(store *sqlite.Store, wf *approval.Workflow, rec *ledger.Reconciler, log zerolog.Logger) *Handler {
	return &Handler{
		Store:      store,
		Workflow:   wf,
		Reconciler: rec,
		Log:        log,
	}
}

// =============================================================================
// APPROVAL HANDLERS
// =============================================================================

// CreateApproval opens a pending approval request.
func (h *Handler) CreateApproval(w http.ResponseWriter, r *http.Request) {
	var req CreateApprovalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	created, err := h.Workflow.CreateRequest(r.Context(), approval.CreateInput{
		EntityType:     approval.EntityType(req.EntityType),
		EntityID:       req.EntityID,
		RequesterID:    req.RequesterID,
		AmountSnapshot: amount,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create approval request", err)
		return
	}

	h.ApprovalMetrics.IncCreated(req.EntityType)
	writeJSON(w, http.StatusCreated, toApprovalDTO(created))
}

// GetApproval returns a single approval request.
func (h *Handler) GetApproval(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request id", err)
		return
	}

	req, err := h.Workflow.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get approval request", err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalDTO(req))
}

// ListPendingApprovals returns the pending queue, oldest first.
func (h *Handler) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	filter := approval.PendingFilter{
		EntityType: approval.EntityType(r.URL.Query().Get("entity_type")),
	}

	cur, err := h.Workflow.ListPending(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, "Failed to list pending approvals", err)
		return
	}

	pending, err := approval.Collect(cur)
	if err != nil {
		h.writeDomainError(w, "Failed to list pending approvals", err)
		return
	}

	dtos := make([]ApprovalDTO, len(pending))
	for i := range pending {
		dtos[i] = toApprovalDTO(&pending[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": dtos})
}

// ApproveRequest approves a pending request.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, approval.DecisionApproved)
}

// RejectRequest rejects a pending request.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, approval.DecisionRejected)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, decision approval.Decision) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request id", err)
		return
	}

	var req DecideApprovalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	// The URL determines the decision; the body's decision field must agree
	// when present.
	if req.Decision != "" && req.Decision != string(decision) {
		writeError(w, http.StatusBadRequest, "Decision does not match endpoint", nil)
		return
	}

	updated, err := h.Workflow.Decide(r.Context(), id, approval.DecideInput{
		ActorID:  req.ActorID,
		Decision: decision,
		Comments: req.Comments,
	})
	if err != nil && updated == nil {
		h.writeDomainError(w, "Failed to decide approval request", err)
		return
	}
	if err != nil {
		// Decision committed, event delivery failed. The record is final;
		// log and return it.
		h.Log.Error().Err(err).Int64("request_id", id).Msg("decision event delivery failed")
	}

	h.ApprovalMetrics.IncDecided(string(updated.EntityType), string(decision))
	writeJSON(w, http.StatusOK, toApprovalDTO(updated))
}

// GetApprovalByEntity returns the latest request for an entity.
func (h *Handler) GetApprovalByEntity(w http.ResponseWriter, r *http.Request) {
	entityType := approval.EntityType(chi.URLParam(r, "type"))
	entityID, err := strconv.ParseInt(chi.URLParam(r, "entityID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entity id", err)
		return
	}

	req, err := h.Workflow.GetByEntity(r.Context(), entityType, entityID)
	if err != nil {
		h.writeDomainError(w, "Failed to get approval request", err)
		return
	}
	if req == nil {
		writeError(w, http.StatusNotFound, "No approval request for entity", nil)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalDTO(req))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// RecordPayment appends a payment to the ledger.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	gst := decimal.Zero
	if req.GSTAmount != "" {
		gst, err = decimal.NewFromString(req.GSTAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid gst amount", err)
			return
		}
	}

	entry := ledger.Entry{
		Reference:      req.Reference,
		Amount:         amount,
		AccountingType: ledger.AccountingType(req.AccountingType),
		GSTAmount:      gst,
	}
	if req.PaidAt != "" {
		entry.PaidAt, _ = time.Parse("2006-01-02", req.PaidAt)
	}

	recorded, err := h.Store.Record(r.Context(), entry)
	if err != nil {
		h.writeDomainError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(recorded))
}

// ListPayments returns all ledger entries.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.Entries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	dtos := make([]PaymentDTO, len(entries))
	for i := range entries {
		dtos[i] = toPaymentDTO(&entries[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": dtos})
}

// =============================================================================
// RECONCILIATION HANDLERS
// =============================================================================

// TriggerReconciliation runs one reconciliation pass and records it.
func (h *Handler) TriggerReconciliation(w http.ResponseWriter, r *http.Request) {
	run, report, err := h.ExecuteReconciliation(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Reconciliation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":          run.ID,
		"scanned_corrupt": report.ScannedCorrupt,
		"fixed":           report.Fixed,
	})
}

// ExecuteReconciliation runs the reconciler and persists a run record.
// Shared by the HTTP trigger and the background scheduler.
func (h *Handler) ExecuteReconciliation(ctx context.Context) (sqlite.ReconciliationRun, ledger.Report, error) {
	started := time.Now().UTC()
	run := sqlite.ReconciliationRun{
		ID:        uuid.NewString(),
		Status:    "running",
		StartedAt: &started,
		CreatedAt: started,
	}
	if err := h.Store.SaveReconciliationRun(ctx, run); err != nil {
		return run, ledger.Report{}, err
	}

	report, err := h.Reconciler.Reconcile(ctx)
	completed := time.Now().UTC()
	run.ScannedCorrupt = report.ScannedCorrupt
	run.Fixed = report.Fixed
	run.CompletedAt = &completed
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
	} else {
		run.Status = "completed"
	}

	h.ReconcileMetrics.ObserveRun(completed.Sub(started), report.Fixed, err)

	if saveErr := h.Store.SaveReconciliationRun(ctx, run); saveErr != nil {
		h.Log.Error().Err(saveErr).Str("run_id", run.ID).Msg("failed to update reconciliation run record")
	}
	return run, report, err
}

// ListReconciliationRuns returns recorded reconciliation passes.
func (h *Handler) ListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListReconciliationRuns(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reconciliation runs", err)
		return
	}

	dtos := make([]ReconciliationRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// SchemaInfo returns the live layout of the tables the engines depend on.
func (h *Handler) SchemaInfo(w http.ResponseWriter, r *http.Request) {
	tables := map[string]any{}
	for _, name := range []string{"approvals", "payments", "reconciliation_runs"} {
		exists, err := h.Store.TableExists(r.Context(), name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to inspect schema", err)
			return
		}
		if !exists {
			tables[name] = nil
			continue
		}
		cols, err := h.Store.TableColumns(r.Context(), name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to inspect schema", err)
			return
		}
		tables[name] = cols
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case approval.IsValidation(err) || errorsIsLedgerValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case approval.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case approval.IsConflict(err) || approval.IsInvalidState(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.Log.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
