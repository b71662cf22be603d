package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"securities-sales-crm/shared/config"
	"securities-sales-crm/shared/metricsx"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnavailable     = errors.New("identity service unavailable")
)

// Principal is the identity service's view of the caller, as returned by
// GET /auth/me.
type Principal struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Roles  []string  `json:"roles"`
}

type Client struct {
	baseURL  string
	timeout  time.Duration
	retryMax int
	http     *http.Client
	breaker  *circuitBreaker
}

func New(cfg config.Config) (*Client, error) {
	if cfg.IdentityURL == "" {
		return nil, errors.New("IDENTITY_URL is required")
	}
	timeout := time.Duration(cfg.UpstreamTimeoutMS) * time.Millisecond
	return &Client{
		baseURL:  cfg.IdentityURL,
		timeout:  timeout,
		retryMax: cfg.UpstreamRetryMax,
		http:     &http.Client{Timeout: timeout},
		breaker:  newCircuitBreaker(5, 30*time.Second),
	}, nil
}

// Me resolves the bearer token to a principal. A 401 from the identity
// service maps to ErrUnauthenticated; transport failures and 5xx map to
// ErrUnavailable so the gateway can answer 502 instead of 401.
func (c *Client) Me(ctx context.Context, bearerToken string) (Principal, error) {
	if c == nil || c.http == nil {
		return Principal{}, errors.New("identity client not initialized")
	}
	if c.breaker.Open() {
		metricsx.IncUpstreamRequest("identity", "circuit_open")
		return Principal{}, ErrUnavailable
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
		if err != nil {
			return Principal{}, err
		}
		req.Header.Set("Authorization", "Bearer "+bearerToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.breaker.Fail()
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			var out Principal
			err := json.NewDecoder(resp.Body).Decode(&out)
			resp.Body.Close()
			if err != nil {
				c.breaker.Fail()
				metricsx.IncUpstreamRequest("identity", "failure")
				return Principal{}, ErrUnavailable
			}
			c.breaker.Success()
			metricsx.IncUpstreamRequest("identity", "success")
			metricsx.ObserveUpstreamLatency("identity", time.Since(start))
			return out, nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			c.breaker.Success()
			metricsx.IncUpstreamRequest("identity", "unauthenticated")
			return Principal{}, ErrUnauthenticated
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = ErrUnavailable
			c.breaker.Fail()
			continue
		default:
			resp.Body.Close()
			metricsx.IncUpstreamRequest("identity", "failure")
			return Principal{}, ErrUnavailable
		}
	}

	metricsx.IncUpstreamRequest("identity", "failure")
	if lastErr == nil {
		lastErr = ErrUnavailable
	}
	if !errors.Is(lastErr, ErrUnavailable) {
		lastErr = errors.Join(ErrUnavailable, lastErr)
	}
	return Principal{}, lastErr
}

type circuitBreaker struct {
	mu            sync.Mutex
	failures      int
	openUntil     time.Time
	threshold     int
	resetDuration time.Duration
}

func newCircuitBreaker(threshold int, reset time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, resetDuration: reset}
}

func (b *circuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return false
	}
	if time.Now().After(b.openUntil) {
		b.openUntil = time.Time{}
		b.failures = 0
		return false
	}
	return true
}

func (b *circuitBreaker) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = time.Now().Add(b.resetDuration)
	}
}

func (b *circuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}
