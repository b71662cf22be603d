// Package handlers implements the customer service HTTP surface. Every
// state-changing endpoint publishes a customer.* event after the row is
// committed; publication is best-effort and never fails the request.
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

	"securities-sales-crm/customer/internal/models"
	"securities-sales-crm/customer/internal/repos"
	"securities-sales-crm/shared/authx"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/httpx"
	"securities-sales-crm/shared/logx"
)

const maxBodyBytes = 1 << 20

type CustomerStore interface {
	CreateCustomer(ctx context.Context, name string, email string, phone string, riskProfile string, ownerUserID uuid.UUID) (models.Customer, error)
	GetCustomerByID(ctx context.Context, customerID uuid.UUID) (models.Customer, error)
	ListCustomers(ctx context.Context, ownerUserID *uuid.UUID, limit int, offset int) ([]models.Customer, error)
	UpdateCustomer(ctx context.Context, customerID uuid.UUID, name string, email string, phone string, riskProfile string) (models.Customer, error)
	SoftDeleteCustomer(ctx context.Context, customerID uuid.UUID) (models.Customer, error)
	Exists(ctx context.Context, customerID uuid.UUID) (bool, error)
}

type EventPublisher interface {
	PublishBestEffort(ctx context.Context, topic string, env events.Envelope)
}

type Handlers struct {
	Logger    logx.Logger
	Customers CustomerStore
	Publisher EventPublisher
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /customers", h.createCustomer)
	mux.HandleFunc("GET /customers", h.listCustomers)
	mux.HandleFunc("GET /customers/{id}", h.getCustomer)
	mux.HandleFunc("PUT /customers/{id}", h.updateCustomer)
	mux.HandleFunc("DELETE /customers/{id}", h.deleteCustomer)
	mux.HandleFunc("GET /customers/{id}/exists", h.customerExists)
}

type customerRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	RiskProfile string `json:"risk_profile"`
}

func (req *customerRequest) validate() error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.RiskProfile = strings.ToUpper(strings.TrimSpace(req.RiskProfile))
	if req.Name == "" {
		return errors.New("name is required")
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		return errors.New("invalid email")
	}
	return nil
}

func (h *Handlers) createCustomer(w http.ResponseWriter, r *http.Request) {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
		return
	}
	var req customerRequest
	if err := decodeBody(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if err := req.validate(); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}

	customer, err := h.Customers.CreateCustomer(r.Context(), req.Name, req.Email, req.Phone, req.RiskProfile, auth.UserID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create customer", nil)
		return
	}

	h.publishCustomerEvent(r, events.TypeCustomerCreated, customer)
	httpx.WriteJSON(w, http.StatusCreated, customer)
}

func (h *Handlers) listCustomers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	var owner *uuid.UUID
	if raw := strings.TrimSpace(r.URL.Query().Get("owner_user_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid owner_user_id", nil)
			return
		}
		owner = &id
	}

	customers, err := h.Customers.ListCustomers(r.Context(), owner, limit, offset)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list customers", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (h *Handlers) getCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid customer id", nil)
		return
	}
	customer, err := h.Customers.GetCustomerByID(r.Context(), customerID)
	if err != nil {
		if errors.Is(err, repos.ErrCustomerNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load customer", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, customer)
}

func (h *Handlers) updateCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid customer id", nil)
		return
	}
	var req customerRequest
	if err := decodeBody(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if err := req.validate(); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}

	customer, err := h.Customers.UpdateCustomer(r.Context(), customerID, req.Name, req.Email, req.Phone, req.RiskProfile)
	if err != nil {
		if errors.Is(err, repos.ErrCustomerNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to update customer", nil)
		return
	}

	h.publishCustomerEvent(r, events.TypeCustomerUpdated, customer)
	httpx.WriteJSON(w, http.StatusOK, customer)
}

// deleteCustomer soft-deletes the row and publishes customer.deleted. The
// cascading recall of pending approvals and removal of meetings/tasks happens
// asynchronously in the consumers of other services; this response returns
// before any of that runs.
func (h *Handlers) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid customer id", nil)
		return
	}

	customer, err := h.Customers.SoftDeleteCustomer(r.Context(), customerID)
	if err != nil {
		if errors.Is(err, repos.ErrCustomerNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete customer", nil)
		return
	}

	h.publishCustomerEvent(r, events.TypeCustomerDeleted, customer)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) customerExists(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid customer id", nil)
		return
	}
	exists, err := h.Customers.Exists(r.Context(), customerID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to check customer", nil)
		return
	}
	if !exists {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"customer_id": customerID, "exists": true})
}

func (h *Handlers) publishCustomerEvent(r *http.Request, eventType string, customer models.Customer) {
	env, err := events.New(eventType, events.CustomerData{
		CustomerID:  customer.CustomerID,
		Name:        customer.Name,
		OwnerUserID: customer.OwnerUserID,
	})
	if err != nil {
		h.Logger.Warn(r.Context(), "event_encode_failed", "failed to encode event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}
	h.Publisher.PublishBestEffort(r.Context(), events.TopicCustomerEvents, env)
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
