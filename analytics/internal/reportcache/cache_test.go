package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"securities-sales-crm/shared/logx"
)

type memoryBackend struct {
	entries map[string][]byte
	getErr  error
	setErr  error
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{entries: map[string][]byte{}}
}

func (m *memoryBackend) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	if m.getErr != nil {
		return false, m.getErr
	}
	raw, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memoryBackend) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, key string) error {
	delete(m.entries, key)
	return nil
}

type report struct {
	Total int `json:"total"`
}

func newTestCache(backend Backend) *Cache {
	return &Cache{Logger: logx.New("analytics", "test", "", "error"), Backend: backend}
}

func TestGetOrComputeCachesResult(t *testing.T) {
	backend := newMemoryBackend()
	c := newTestCache(backend)
	computes := 0
	compute := func(context.Context) (any, error) {
		computes++
		return report{Total: 7}, nil
	}

	raw, err := c.GetOrCompute(context.Background(), "reports:sales-summary", time.Minute, compute)
	require.NoError(t, err)
	require.JSONEq(t, `{"total":7}`, string(raw))
	require.Equal(t, 1, computes)

	raw, err = c.GetOrCompute(context.Background(), "reports:sales-summary", time.Minute, compute)
	require.NoError(t, err)
	require.JSONEq(t, `{"total":7}`, string(raw))
	require.Equal(t, 1, computes)
}

func TestInvalidateForcesRecompute(t *testing.T) {
	backend := newMemoryBackend()
	c := newTestCache(backend)
	total := 1
	compute := func(context.Context) (any, error) {
		defer func() { total++ }()
		return report{Total: total}, nil
	}

	raw, err := c.GetOrCompute(context.Background(), "reports:approval-stats", time.Minute, compute)
	require.NoError(t, err)
	require.JSONEq(t, `{"total":1}`, string(raw))

	require.NoError(t, c.Invalidate(context.Background(), "reports:approval-stats"))
	// deleting an absent key is fine
	require.NoError(t, c.Invalidate(context.Background(), "reports:approval-stats"))

	raw, err = c.GetOrCompute(context.Background(), "reports:approval-stats", time.Minute, compute)
	require.NoError(t, err)
	require.JSONEq(t, `{"total":2}`, string(raw))
}

func TestBackendOutageDegradesToCompute(t *testing.T) {
	backend := newMemoryBackend()
	backend.getErr = errors.New("redis down")
	backend.setErr = errors.New("redis down")
	c := newTestCache(backend)

	raw, err := c.GetOrCompute(context.Background(), "reports:customer-overview", time.Minute, func(context.Context) (any, error) {
		return report{Total: 3}, nil
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"total":3}`, string(raw))
}

func TestComputeErrorPropagates(t *testing.T) {
	c := newTestCache(newMemoryBackend())

	_, err := c.GetOrCompute(context.Background(), "reports:sales-summary", time.Minute, func(context.Context) (any, error) {
		return nil, errors.New("sales service unavailable")
	})
	require.Error(t, err)
}
