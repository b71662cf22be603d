package consumer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"securities-sales-crm/opportunity/internal/approval"
	"securities-sales-crm/opportunity/internal/models"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/logx"
)

type fakeApprovals struct {
	byID map[uuid.UUID]models.ApprovalRequest
}

func newFakeApprovals(approvals ...models.ApprovalRequest) *fakeApprovals {
	f := &fakeApprovals{byID: map[uuid.UUID]models.ApprovalRequest{}}
	for _, a := range approvals {
		f.byID[a.ApprovalID] = a
	}
	return f
}

func (f *fakeApprovals) RecallPendingByCustomer(_ context.Context, customerID uuid.UUID, cause string) ([]models.ApprovalRequest, error) {
	return f.recall(func(a models.ApprovalRequest) bool { return a.CustomerID == customerID }, cause), nil
}

func (f *fakeApprovals) RecallPendingByRequester(_ context.Context, requesterID uuid.UUID, cause string) ([]models.ApprovalRequest, error) {
	return f.recall(func(a models.ApprovalRequest) bool { return a.RequesterID == requesterID }, cause), nil
}

func (f *fakeApprovals) recall(match func(models.ApprovalRequest) bool, cause string) []models.ApprovalRequest {
	var recalled []models.ApprovalRequest
	for id, a := range f.byID {
		if a.Status != approval.StatusPending || !match(a) {
			continue
		}
		a.Status = approval.StatusRecalled
		a.Comment = strings.TrimSpace(a.Comment + " " + cause)
		f.byID[id] = a
		recalled = append(recalled, a)
	}
	return recalled
}

type fakeDedup struct {
	seen map[uuid.UUID]bool
}

func (f *fakeDedup) MarkProcessed(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	if f.seen == nil {
		f.seen = map[uuid.UUID]bool{}
	}
	if f.seen[eventID] {
		return false, nil
	}
	f.seen[eventID] = true
	return true, nil
}

func newTestConsumer(store *fakeApprovals) *Consumer {
	return &Consumer{
		Logger:    logx.New("opportunity-consumer", "test", "", "error"),
		Approvals: store,
		Processed: &fakeDedup{},
	}
}

func pendingApproval(customerID uuid.UUID, requesterID uuid.UUID) models.ApprovalRequest {
	return models.ApprovalRequest{
		ApprovalID:  uuid.New(),
		CustomerID:  customerID,
		RequesterID: requesterID,
		ProductName: "Corporate bond",
		Status:      approval.StatusPending,
	}
}

func mustEnvelope(t *testing.T, eventType string, data any) events.Envelope {
	t.Helper()
	env, err := events.New(eventType, data)
	require.NoError(t, err)
	return env
}

func TestCustomerDeletedRecallsPendingWithCause(t *testing.T) {
	customerID := uuid.New()
	pending := pendingApproval(customerID, uuid.New())
	approved := pendingApproval(customerID, uuid.New())
	approved.Status = approval.StatusApproved
	other := pendingApproval(uuid.New(), uuid.New())
	store := newFakeApprovals(pending, approved, other)
	c := newTestConsumer(store)

	env := mustEnvelope(t, events.TypeCustomerDeleted, events.CustomerData{CustomerID: customerID})
	require.NoError(t, c.HandleCustomerEvent(context.Background(), env))

	recalled := store.byID[pending.ApprovalID]
	require.Equal(t, approval.StatusRecalled, recalled.Status)
	require.Contains(t, recalled.Comment, "customer deleted")

	// terminal and unrelated rows untouched
	require.Equal(t, approval.StatusApproved, store.byID[approved.ApprovalID].Status)
	require.Equal(t, approval.StatusPending, store.byID[other.ApprovalID].Status)
}

func TestUserDeletedRecallsTheirPendingRequests(t *testing.T) {
	requesterID := uuid.New()
	mine := pendingApproval(uuid.New(), requesterID)
	theirs := pendingApproval(uuid.New(), uuid.New())
	store := newFakeApprovals(mine, theirs)
	c := newTestConsumer(store)

	env := mustEnvelope(t, events.TypeUserDeleted, events.UserData{UserID: requesterID})
	require.NoError(t, c.HandleUserEvent(context.Background(), env))

	require.Equal(t, approval.StatusRecalled, store.byID[mine.ApprovalID].Status)
	require.Contains(t, store.byID[mine.ApprovalID].Comment, "requester deleted")
	require.Equal(t, approval.StatusPending, store.byID[theirs.ApprovalID].Status)
}

func TestCustomerDeletedRedeliveryIsIdempotent(t *testing.T) {
	customerID := uuid.New()
	pending := pendingApproval(customerID, uuid.New())
	store := newFakeApprovals(pending)
	c := newTestConsumer(store)

	env := mustEnvelope(t, events.TypeCustomerDeleted, events.CustomerData{CustomerID: customerID})
	require.NoError(t, c.HandleCustomerEvent(context.Background(), env))
	first := store.byID[pending.ApprovalID]

	require.NoError(t, c.HandleCustomerEvent(context.Background(), env))
	require.Equal(t, first, store.byID[pending.ApprovalID])
}

func TestStaleCustomerUpdateDoesNotReopen(t *testing.T) {
	customerID := uuid.New()
	pending := pendingApproval(customerID, uuid.New())
	store := newFakeApprovals(pending)
	c := newTestConsumer(store)

	deleted := mustEnvelope(t, events.TypeCustomerDeleted, events.CustomerData{CustomerID: customerID})
	require.NoError(t, c.HandleCustomerEvent(context.Background(), deleted))
	require.Equal(t, approval.StatusRecalled, store.byID[pending.ApprovalID].Status)

	stale := mustEnvelope(t, events.TypeCustomerUpdated, events.CustomerData{CustomerID: customerID, Name: "Renamed"})
	require.NoError(t, c.HandleCustomerEvent(context.Background(), stale))
	require.Equal(t, approval.StatusRecalled, store.byID[pending.ApprovalID].Status)
}

type flakyApprovals struct {
	*fakeApprovals
	failuresLeft int
}

func (f *flakyApprovals) RecallPendingByCustomer(ctx context.Context, customerID uuid.UUID, cause string) ([]models.ApprovalRequest, error) {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, errors.New("connection reset by peer")
	}
	return f.fakeApprovals.RecallPendingByCustomer(ctx, customerID, cause)
}

func TestRecallRetriedAfterTransientFailure(t *testing.T) {
	customerID := uuid.New()
	pending := pendingApproval(customerID, uuid.New())
	store := newFakeApprovals(pending)
	c := newTestConsumer(store)
	c.Approvals = &flakyApprovals{fakeApprovals: store, failuresLeft: 1}

	env := mustEnvelope(t, events.TypeCustomerDeleted, events.CustomerData{CustomerID: customerID})
	require.Error(t, c.HandleCustomerEvent(context.Background(), env))
	require.Equal(t, approval.StatusPending, store.byID[pending.ApprovalID].Status)

	// the failed delivery must not count as processed; redelivery applies
	// the recall
	require.NoError(t, c.HandleCustomerEvent(context.Background(), env))
	require.Equal(t, approval.StatusRecalled, store.byID[pending.ApprovalID].Status)
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	pending := pendingApproval(uuid.New(), uuid.New())
	store := newFakeApprovals(pending)
	c := newTestConsumer(store)

	env := mustEnvelope(t, "customer.merged", events.CustomerData{CustomerID: pending.CustomerID})
	require.NoError(t, c.HandleCustomerEvent(context.Background(), env))
	require.Equal(t, approval.StatusPending, store.byID[pending.ApprovalID].Status)
}
