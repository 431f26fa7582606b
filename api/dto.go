/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry validator tags and are checked by decodeJSON before
  any handler logic runs. Domain rules (duplicate pending, illegal
  transition) stay in the engines; only shape validation happens here.

SEE ALSO:
  - validate.go: JSON decoding and struct validation
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/atlaserp/approval-engine/approval"
	"github.com/atlaserp/approval-engine/ledger"
	"github.com/atlaserp/approval-engine/store/sqlite"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateApprovalRequest opens an approval request for an external entity.
type CreateApprovalRequest struct {
	EntityType  string `json:"entity_type" validate:"required,oneof=purchase_order expense"`
	EntityID    int64  `json:"entity_id" validate:"required,gt=0"`
	RequesterID int64  `json:"requester_id" validate:"required,gt=0"`
	Amount      string `json:"amount" validate:"required"`
}

// DecideApprovalRequest resolves a pending request.
type DecideApprovalRequest struct {
	ActorID  int64  `json:"actor_id" validate:"required,gt=0"`
	Decision string `json:"decision" validate:"omitempty,oneof=approved rejected"`
	Comments string `json:"comments" validate:"max=2000"`
}

// RecordPaymentRequest appends a payment to the ledger.
type RecordPaymentRequest struct {
	Reference      string `json:"reference" validate:"max=200"`
	Amount         string `json:"amount" validate:"required"`
	AccountingType string `json:"accounting_type" validate:"required,oneof=accountable non_accountable"`
	GSTAmount      string `json:"gst_amount"`
	PaidAt         string `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ApprovalDTO represents an approval request in API responses.
type ApprovalDTO struct {
	ID          int64  `json:"id"`
	EntityType  string `json:"entity_type"`
	EntityID    int64  `json:"entity_id"`
	RequesterID int64  `json:"requester_id"`
	Status      string `json:"status"`
	RequestDate string `json:"request_date"`
	ActionDate  string `json:"action_date,omitempty"`
	ActionedBy  *int64 `json:"actioned_by,omitempty"`
	Comments    string `json:"comments,omitempty"`
	Amount      string `json:"amount"`
}

func toApprovalDTO(r *approval.ApprovalRequest) ApprovalDTO {
	dto := ApprovalDTO{
		ID:          r.ID,
		EntityType:  string(r.EntityType),
		EntityID:    r.EntityID,
		RequesterID: r.RequesterID,
		Status:      string(r.Status),
		RequestDate: r.RequestDate.Format(time.RFC3339),
		ActionedBy:  r.ActionedBy,
		Comments:    r.Comments,
		Amount:      r.AmountSnapshot.StringFixed(2),
	}
	if r.ActionDate != nil {
		dto.ActionDate = r.ActionDate.Format(time.RFC3339)
	}
	return dto
}

// PaymentDTO represents a ledger entry in API responses.
type PaymentDTO struct {
	ID             int64  `json:"id"`
	Reference      string `json:"reference,omitempty"`
	Amount         string `json:"amount"`
	AccountingType string `json:"accounting_type"`
	GSTAmount      string `json:"gst_amount"`
	PaidAt         string `json:"paid_at,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toPaymentDTO(e *ledger.Entry) PaymentDTO {
	dto := PaymentDTO{
		ID:             e.ID,
		Reference:      e.Reference,
		Amount:         e.Amount.StringFixed(2),
		AccountingType: string(e.AccountingType),
		GSTAmount:      e.GSTAmount.StringFixed(2),
		CreatedAt:      e.CreatedAt.Format(time.RFC3339),
	}
	if !e.PaidAt.IsZero() {
		dto.PaidAt = e.PaidAt.Format("2006-01-02")
	}
	return dto
}

// ReconciliationRunDTO represents a recorded reconciliation pass.
type ReconciliationRunDTO struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	ScannedCorrupt int    `json:"scanned_corrupt"`
	Fixed          int    `json:"fixed"`
	Error          string `json:"error,omitempty"`
	StartedAt      string `json:"started_at,omitempty"`
	CompletedAt    string `json:"completed_at,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toRunDTO(r sqlite.ReconciliationRun) ReconciliationRunDTO {
	dto := ReconciliationRunDTO{
		ID:             r.ID,
		Status:         r.Status,
		ScannedCorrupt: r.ScannedCorrupt,
		Fixed:          r.Fixed,
		Error:          r.Error,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
	}
	if r.StartedAt != nil {
		dto.StartedAt = r.StartedAt.Format(time.RFC3339)
	}
	if r.CompletedAt != nil {
		dto.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
