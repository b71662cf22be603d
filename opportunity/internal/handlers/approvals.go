package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"securities-sales-crm/opportunity/internal/approval"
	"securities-sales-crm/opportunity/internal/repos"
	"securities-sales-crm/shared/authx"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/httpx"
)

type approvalRequestBody struct {
	CustomerID  uuid.UUID       `json:"customer_id"`
	ProductName string          `json:"product_name"`
	Amount      decimal.Decimal `json:"amount"`
	Comment     string          `json:"comment"`
}

func (req *approvalRequestBody) validate() error {
	req.ProductName = strings.TrimSpace(req.ProductName)
	req.Comment = strings.TrimSpace(req.Comment)
	if req.ProductName == "" {
		return errors.New("product_name is required")
	}
	if !req.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	return nil
}

func (h *Handlers) createApproval(w http.ResponseWriter, r *http.Request) {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
		return
	}
	var req approvalRequestBody
	if err := decodeBody(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if req.CustomerID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "customer_id is required", nil)
		return
	}
	if err := req.validate(); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if !h.requireCustomer(w, r, req.CustomerID) {
		return
	}

	a, err := h.Approvals.CreateApproval(r.Context(), req.CustomerID, auth.UserID, req.ProductName, req.Amount, req.Comment)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create approval", nil)
		return
	}

	h.publishApprovalEvent(r, events.TypeApprovalRequested, a)
	httpx.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handlers) listApprovals(w http.ResponseWriter, r *http.Request) {
	customerID, err := optionalUUIDQuery(r, "customer_id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	requesterID, err := optionalUUIDQuery(r, "requester_id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && status != approval.StatusPending && !approval.Terminal(status) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid status filter", nil)
		return
	}
	limit, offset := pagination(r)

	approvals, err := h.Approvals.ListApprovals(r.Context(), customerID, requesterID, status, limit, offset)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list approvals", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"approvals": approvals})
}

func (h *Handlers) getApproval(w http.ResponseWriter, r *http.Request) {
	approvalID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid approval id", nil)
		return
	}
	a, err := h.Approvals.GetApprovalByID(r.Context(), approvalID)
	if err != nil {
		if errors.Is(err, repos.ErrApprovalNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "approval not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load approval", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *Handlers) approveApproval(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, approval.ActionApprove, events.TypeApprovalApproved)
}

func (h *Handlers) rejectApproval(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, approval.ActionReject, events.TypeApprovalRejected)
}

// decide enforces the requester/approver split, consults the state machine
// for a precise conflict, then relies on the conditional update to win or
// lose any race with another decision.
func (h *Handlers) decide(w http.ResponseWriter, r *http.Request, action approval.Action, eventType string) {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
		return
	}
	approvalID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid approval id", nil)
		return
	}

	current, err := h.Approvals.GetApprovalByID(r.Context(), approvalID)
	if err != nil {
		h.writeApprovalError(w, r, err, "failed to load approval")
		return
	}
	if current.RequesterID == auth.UserID {
		httpx.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "requester cannot decide their own approval", nil)
		return
	}
	if err := approval.Check(current.Status, action); err != nil {
		httpx.WriteError(w, r, http.StatusConflict, "CONFLICT", err.Error(), nil)
		return
	}

	decided, err := h.Approvals.Decide(r.Context(), approvalID, auth.UserID, approval.Next(action))
	if err != nil {
		h.writeApprovalError(w, r, err, "failed to decide approval")
		return
	}

	h.publishApprovalEvent(r, eventType, decided)
	httpx.WriteJSON(w, http.StatusOK, decided)
}

func (h *Handlers) recallApproval(w http.ResponseWriter, r *http.Request) {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
		return
	}
	approvalID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid approval id", nil)
		return
	}

	current, err := h.Approvals.GetApprovalByID(r.Context(), approvalID)
	if err != nil {
		h.writeApprovalError(w, r, err, "failed to load approval")
		return
	}
	if current.RequesterID != auth.UserID {
		httpx.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "only the requester can recall", nil)
		return
	}
	if err := approval.Check(current.Status, approval.ActionRecall); err != nil {
		httpx.WriteError(w, r, http.StatusConflict, "CONFLICT", err.Error(), nil)
		return
	}

	recalled, err := h.Approvals.Recall(r.Context(), approvalID)
	if err != nil {
		h.writeApprovalError(w, r, err, "failed to recall approval")
		return
	}

	h.publishApprovalEvent(r, events.TypeApprovalRecalled, recalled)
	httpx.WriteJSON(w, http.StatusOK, recalled)
}

// editApproval updates the mutable fields of a pending request. Edits emit no
// event.
func (h *Handlers) editApproval(w http.ResponseWriter, r *http.Request) {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
		return
	}
	approvalID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid approval id", nil)
		return
	}
	var req approvalRequestBody
	if err := decodeBody(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if err := req.validate(); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}

	current, err := h.Approvals.GetApprovalByID(r.Context(), approvalID)
	if err != nil {
		h.writeApprovalError(w, r, err, "failed to load approval")
		return
	}
	if current.RequesterID != auth.UserID {
		httpx.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "only the requester can edit", nil)
		return
	}
	if err := approval.Check(current.Status, approval.ActionEdit); err != nil {
		httpx.WriteError(w, r, http.StatusConflict, "CONFLICT", err.Error(), nil)
		return
	}

	updated, err := h.Approvals.UpdateFields(r.Context(), approvalID, req.ProductName, req.Amount, req.Comment)
	if err != nil {
		h.writeApprovalError(w, r, err, "failed to edit approval")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handlers) writeApprovalError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, repos.ErrApprovalNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "approval not found", nil)
	case errors.Is(err, repos.ErrApprovalNotPending):
		httpx.WriteError(w, r, http.StatusConflict, "CONFLICT", "approval is not pending", nil)
	default:
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", fallback, nil)
	}
}
