package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApprovalRequest is a securities-sale approval. Status moves PENDING to one
// of the terminal states and never leaves it; ApproverID and ProcessedAt are
// set only by an approve/reject decision.
type ApprovalRequest struct {
	ApprovalID  uuid.UUID       `json:"approval_id"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	RequesterID uuid.UUID       `json:"requester_id"`
	ProductName string          `json:"product_name"`
	Amount      decimal.Decimal `json:"amount"`
	Comment     string          `json:"comment,omitempty"`
	Status      string          `json:"status"`
	ApproverID  *uuid.UUID      `json:"approver_id,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
