package customer

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"securities-sales-crm/shared/config"
	"securities-sales-crm/shared/metricsx"
)

var ErrUnavailable = errors.New("customer service unavailable")

// Client checks customer existence before a meeting, task, or approval
// request is written against a customer id owned by another service.
type Client struct {
	baseURL  string
	timeout  time.Duration
	retryMax int
	http     *http.Client
}

func New(cfg config.Config) (*Client, error) {
	if cfg.CustomerURL == "" {
		return nil, errors.New("CUSTOMER_URL is required")
	}
	timeout := time.Duration(cfg.UpstreamTimeoutMS) * time.Millisecond
	return &Client{
		baseURL:  cfg.CustomerURL,
		timeout:  timeout,
		retryMax: cfg.UpstreamRetryMax,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// Exists reports whether the customer id refers to a live (not soft-deleted)
// customer. Transport failures map to ErrUnavailable; callers answer 502
// rather than guessing.
func (c *Client) Exists(ctx context.Context, bearerToken string, customerID uuid.UUID) (bool, error) {
	if c == nil || c.http == nil {
		return false, errors.New("customer client not initialized")
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/customers/"+customerID.String()+"/exists", nil)
		if err != nil {
			return false, err
		}
		if bearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+bearerToken)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			metricsx.IncUpstreamRequest("customer", "success")
			metricsx.ObserveUpstreamLatency("customer", time.Since(start))
			return true, nil
		case resp.StatusCode == http.StatusNotFound:
			metricsx.IncUpstreamRequest("customer", "success")
			metricsx.ObserveUpstreamLatency("customer", time.Since(start))
			return false, nil
		case resp.StatusCode >= 500:
			lastErr = ErrUnavailable
			continue
		default:
			metricsx.IncUpstreamRequest("customer", "failure")
			return false, ErrUnavailable
		}
	}

	metricsx.IncUpstreamRequest("customer", "failure")
	if lastErr == nil {
		lastErr = ErrUnavailable
	}
	if !errors.Is(lastErr, ErrUnavailable) {
		lastErr = errors.Join(ErrUnavailable, lastErr)
	}
	return false, lastErr
}
