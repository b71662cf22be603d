// Package handlers implements the approval-request HTTP surface. Role checks
// and the requester/approver identity rule live here, ahead of the state
// machine; the repo's conditional updates close the race window behind them.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"securities-sales-crm/opportunity/internal/models"
	"securities-sales-crm/shared/authx"
	customerclient "securities-sales-crm/shared/clients/customer"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/httpx"
	"securities-sales-crm/shared/logx"
)

const maxBodyBytes = 1 << 20

type ApprovalStore interface {
	CreateApproval(ctx context.Context, customerID uuid.UUID, requesterID uuid.UUID, productName string, amount decimal.Decimal, comment string) (models.ApprovalRequest, error)
	GetApprovalByID(ctx context.Context, approvalID uuid.UUID) (models.ApprovalRequest, error)
	ListApprovals(ctx context.Context, customerID *uuid.UUID, requesterID *uuid.UUID, status string, limit int, offset int) ([]models.ApprovalRequest, error)
	Decide(ctx context.Context, approvalID uuid.UUID, approverID uuid.UUID, status string) (models.ApprovalRequest, error)
	Recall(ctx context.Context, approvalID uuid.UUID) (models.ApprovalRequest, error)
	UpdateFields(ctx context.Context, approvalID uuid.UUID, productName string, amount decimal.Decimal, comment string) (models.ApprovalRequest, error)
}

type CustomerChecker interface {
	Exists(ctx context.Context, bearerToken string, customerID uuid.UUID) (bool, error)
}

type EventPublisher interface {
	PublishBestEffort(ctx context.Context, topic string, env events.Envelope)
}

type Handlers struct {
	Logger    logx.Logger
	Approvals ApprovalStore
	Customers CustomerChecker
	Publisher EventPublisher
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /approvals", authx.RequireRoles(h.createApproval, authx.RoleSales))
	mux.HandleFunc("GET /approvals", h.listApprovals)
	mux.HandleFunc("GET /approvals/{id}", h.getApproval)
	mux.HandleFunc("PUT /approvals/{id}", h.editApproval)
	mux.HandleFunc("POST /approvals/{id}/approve", authx.RequireRoles(h.approveApproval, authx.RoleManager, authx.RoleCompliance))
	mux.HandleFunc("POST /approvals/{id}/reject", authx.RequireRoles(h.rejectApproval, authx.RoleManager, authx.RoleCompliance))
	mux.HandleFunc("POST /approvals/{id}/recall", h.recallApproval)
}

func (h *Handlers) requireCustomer(w http.ResponseWriter, r *http.Request, customerID uuid.UUID) bool {
	exists, err := h.Customers.Exists(r.Context(), authx.BearerToken(r), customerID)
	if err != nil {
		if errors.Is(err, customerclient.ErrUnavailable) {
			httpx.WriteError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "customer service unavailable", nil)
			return false
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to check customer", nil)
		return false
	}
	if !exists {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
		return false
	}
	return true
}

func (h *Handlers) publishApprovalEvent(r *http.Request, eventType string, a models.ApprovalRequest) {
	env, err := events.New(eventType, events.ApprovalData{
		ApprovalID:  a.ApprovalID,
		CustomerID:  a.CustomerID,
		RequesterID: a.RequesterID,
		ApproverID:  a.ApproverID,
		ProductName: a.ProductName,
		Amount:      a.Amount,
		Status:      a.Status,
	})
	if err != nil {
		h.Logger.Warn(r.Context(), "event_encode_failed", "failed to encode event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}
	h.Publisher.PublishBestEffort(r.Context(), events.TopicApprovalEvents, env)
}

func decodeBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		return errors.New("invalid json body")
	}
	return nil
}

func pagination(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func optionalUUIDQuery(r *http.Request, name string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, errors.New("invalid " + name)
	}
	return &id, nil
}
