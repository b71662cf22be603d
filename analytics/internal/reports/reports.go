// Package reports computes the analytics read models by fanning out to the
// services that own the underlying rows. Analytics holds no tables of its
// own; a report is only as fresh as the last cache invalidation.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"securities-sales-crm/shared/config"
	"securities-sales-crm/shared/metricsx"
)

const (
	KeySalesSummary     = "reports:sales-summary"
	KeyApprovalStats    = "reports:approval-stats"
	KeyCustomerOverview = "reports:customer-overview"
)

const pageSize = 200

var ErrUpstreamUnavailable = errors.New("report upstream unavailable")

type SalesSummary struct {
	TotalMeetings  int       `json:"total_meetings"`
	TotalTasks     int       `json:"total_tasks"`
	OpenTasks      int       `json:"open_tasks"`
	CompletedTasks int       `json:"completed_tasks"`
	GeneratedAt    time.Time `json:"generated_at"`
}

type ApprovalStats struct {
	Total          int             `json:"total"`
	Pending        int             `json:"pending"`
	Approved       int             `json:"approved"`
	Rejected       int             `json:"rejected"`
	Recalled       int             `json:"recalled"`
	ApprovedAmount decimal.Decimal `json:"approved_amount"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

type CustomerOverview struct {
	TotalCustomers int            `json:"total_customers"`
	ByRiskProfile  map[string]int `json:"by_risk_profile"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

type Computer struct {
	customerURL    string
	salesURL       string
	opportunityURL string
	http           *http.Client
}

func NewComputer(cfg config.Config) (*Computer, error) {
	if cfg.CustomerURL == "" || cfg.SalesURL == "" || cfg.OpportunityURL == "" {
		return nil, errors.New("CUSTOMER_URL, SALES_URL and OPPORTUNITY_URL are required")
	}
	timeout := time.Duration(cfg.UpstreamTimeoutMS) * time.Millisecond
	return &Computer{
		customerURL:    cfg.CustomerURL,
		salesURL:       cfg.SalesURL,
		opportunityURL: cfg.OpportunityURL,
		http:           &http.Client{Timeout: timeout},
	}, nil
}

type meetingItem struct {
	MeetingID string `json:"meeting_id"`
}

type taskItem struct {
	Status string `json:"status"`
}

type approvalItem struct {
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

type customerItem struct {
	RiskProfile string `json:"risk_profile"`
}

func (c *Computer) SalesSummary(ctx context.Context, bearerToken string) (SalesSummary, error) {
	meetings, err := collectPages[meetingItem](ctx, c, bearerToken, c.salesURL, "/meetings", "meetings")
	if err != nil {
		return SalesSummary{}, err
	}
	tasks, err := collectPages[taskItem](ctx, c, bearerToken, c.salesURL, "/tasks", "tasks")
	if err != nil {
		return SalesSummary{}, err
	}

	summary := SalesSummary{
		TotalMeetings: len(meetings),
		TotalTasks:    len(tasks),
		GeneratedAt:   time.Now().UTC(),
	}
	for _, t := range tasks {
		switch t.Status {
		case "OPEN":
			summary.OpenTasks++
		case "COMPLETED":
			summary.CompletedTasks++
		}
	}
	return summary, nil
}

func (c *Computer) ApprovalStats(ctx context.Context, bearerToken string) (ApprovalStats, error) {
	approvals, err := collectPages[approvalItem](ctx, c, bearerToken, c.opportunityURL, "/approvals", "approvals")
	if err != nil {
		return ApprovalStats{}, err
	}

	stats := ApprovalStats{
		Total:          len(approvals),
		ApprovedAmount: decimal.Zero,
		GeneratedAt:    time.Now().UTC(),
	}
	for _, a := range approvals {
		switch a.Status {
		case "PENDING":
			stats.Pending++
		case "APPROVED":
			stats.Approved++
			stats.ApprovedAmount = stats.ApprovedAmount.Add(a.Amount)
		case "REJECTED":
			stats.Rejected++
		case "RECALLED":
			stats.Recalled++
		}
	}
	return stats, nil
}

func (c *Computer) CustomerOverview(ctx context.Context, bearerToken string) (CustomerOverview, error) {
	customers, err := collectPages[customerItem](ctx, c, bearerToken, c.customerURL, "/customers", "customers")
	if err != nil {
		return CustomerOverview{}, err
	}

	overview := CustomerOverview{
		TotalCustomers: len(customers),
		ByRiskProfile:  map[string]int{},
		GeneratedAt:    time.Now().UTC(),
	}
	for _, cust := range customers {
		profile := cust.RiskProfile
		if profile == "" {
			profile = "UNSPECIFIED"
		}
		overview.ByRiskProfile[profile]++
	}
	return overview, nil
}

// collectPages pages through a list endpoint until a short page.
func collectPages[T any](ctx context.Context, c *Computer, bearerToken string, base string, path string, listKey string) ([]T, error) {
	var out []T
	for offset := 0; ; offset += pageSize {
		page, err := fetchPage[T](ctx, c, bearerToken, base, path, listKey, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
	}
}

func fetchPage[T any](ctx context.Context, c *Computer, bearerToken string, base string, path string, listKey string, offset int) ([]T, error) {
	u := base + path + "?" + url.Values{
		"limit":  []string{strconv.Itoa(pageSize)},
		"offset": []string{strconv.Itoa(offset)},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metricsx.IncUpstreamRequest(serviceLabel(base, c), "failure")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metricsx.IncUpstreamRequest(serviceLabel(base, c), "failure")
		return nil, fmt.Errorf("%w: %s returned %d", ErrUpstreamUnavailable, path, resp.StatusCode)
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrUpstreamUnavailable, path, err)
	}
	var items []T
	if raw, ok := body[listKey]; ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: decoding %s items: %v", ErrUpstreamUnavailable, path, err)
		}
	}

	metricsx.IncUpstreamRequest(serviceLabel(base, c), "success")
	metricsx.ObserveUpstreamLatency(serviceLabel(base, c), time.Since(start))
	return items, nil
}

func serviceLabel(base string, c *Computer) string {
	switch base {
	case c.customerURL:
		return "customer"
	case c.salesURL:
		return "salesactivity"
	case c.opportunityURL:
		return "opportunity"
	default:
		return "unknown"
	}
}
