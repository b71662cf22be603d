// Package handlers serves the cached analytics reports. Reads may be stale
// for up to the cache TTL minus whatever invalidation the consumer has
// already applied; that window is the documented cost of computing reports
// from other services' data.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"securities-sales-crm/analytics/internal/reports"
	"securities-sales-crm/shared/authx"
	"securities-sales-crm/shared/httpx"
	"securities-sales-crm/shared/logx"
)

type ReportCache interface {
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (any, error)) (json.RawMessage, error)
}

type ReportComputer interface {
	SalesSummary(ctx context.Context, bearerToken string) (reports.SalesSummary, error)
	ApprovalStats(ctx context.Context, bearerToken string) (reports.ApprovalStats, error)
	CustomerOverview(ctx context.Context, bearerToken string) (reports.CustomerOverview, error)
}

type Handlers struct {
	Logger   logx.Logger
	Cache    ReportCache
	Computer ReportComputer
	TTL      time.Duration
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /reports/sales-summary", h.salesSummary)
	mux.HandleFunc("GET /reports/approval-stats", h.approvalStats)
	mux.HandleFunc("GET /reports/customer-overview", h.customerOverview)
}

func (h *Handlers) salesSummary(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, reports.KeySalesSummary, func(ctx context.Context) (any, error) {
		return h.Computer.SalesSummary(ctx, authx.BearerToken(r))
	})
}

func (h *Handlers) approvalStats(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, reports.KeyApprovalStats, func(ctx context.Context) (any, error) {
		return h.Computer.ApprovalStats(ctx, authx.BearerToken(r))
	})
}

func (h *Handlers) customerOverview(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, reports.KeyCustomerOverview, func(ctx context.Context) (any, error) {
		return h.Computer.CustomerOverview(ctx, authx.BearerToken(r))
	})
}

func (h *Handlers) serve(w http.ResponseWriter, r *http.Request, key string, compute func(context.Context) (any, error)) {
	raw, err := h.Cache.GetOrCompute(r.Context(), key, h.TTL, compute)
	if err != nil {
		if errors.Is(err, reports.ErrUpstreamUnavailable) {
			httpx.WriteError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "report upstream unavailable", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to compute report", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
