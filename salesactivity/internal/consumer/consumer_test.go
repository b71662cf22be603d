package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/logx"
)

type activityRow struct {
	CustomerID uuid.UUID
	UserID     uuid.UUID
}

type fakeMeetingPurger struct {
	rows []activityRow
}

func (f *fakeMeetingPurger) DeleteByCustomer(_ context.Context, customerID uuid.UUID) (int64, error) {
	return f.purge(func(r activityRow) bool { return r.CustomerID == customerID }), nil
}

func (f *fakeMeetingPurger) DeleteByOwner(_ context.Context, ownerUserID uuid.UUID) (int64, error) {
	return f.purge(func(r activityRow) bool { return r.UserID == ownerUserID }), nil
}

func (f *fakeMeetingPurger) purge(match func(activityRow) bool) int64 {
	var kept []activityRow
	var removed int64
	for _, r := range f.rows {
		if match(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return removed
}

type fakeTaskPurger struct {
	fakeMeetingPurger
}

func (f *fakeTaskPurger) DeleteByAssignee(ctx context.Context, assigneeUserID uuid.UUID) (int64, error) {
	return f.DeleteByOwner(ctx, assigneeUserID)
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

func newTestConsumer(meetings *fakeMeetingPurger, tasks *fakeTaskPurger) *Consumer {
	return &Consumer{
		Logger:    logx.New("salesactivity-consumer", "test", "", "error"),
		Meetings:  meetings,
		Tasks:     tasks,
		Processed: &fakeDedup{},
	}
}

func mustEnvelope(t *testing.T, eventType string, data any) events.Envelope {
	t.Helper()
	env, err := events.New(eventType, data)
	require.NoError(t, err)
	return env
}

func TestCustomerDeletedCascadesToMeetingsAndTasks(t *testing.T) {
	customerID := uuid.New()
	otherCustomer := uuid.New()
	meetings := &fakeMeetingPurger{rows: []activityRow{
		{CustomerID: customerID, UserID: uuid.New()},
		{CustomerID: customerID, UserID: uuid.New()},
		{CustomerID: otherCustomer, UserID: uuid.New()},
	}}
	tasks := &fakeTaskPurger{fakeMeetingPurger{rows: []activityRow{
		{CustomerID: customerID, UserID: uuid.New()},
		{CustomerID: otherCustomer, UserID: uuid.New()},
	}}}
	c := newTestConsumer(meetings, tasks)

	env := mustEnvelope(t, events.TypeCustomerDeleted, events.CustomerData{CustomerID: customerID})
	require.NoError(t, c.HandleCustomerEvent(context.Background(), env))

	require.Len(t, meetings.rows, 1)
	require.Equal(t, otherCustomer, meetings.rows[0].CustomerID)
	require.Len(t, tasks.rows, 1)
	require.Equal(t, otherCustomer, tasks.rows[0].CustomerID)
}

func TestCustomerUpdateAfterDeleteDoesNotResurrect(t *testing.T) {
	customerID := uuid.New()
	meetings := &fakeMeetingPurger{rows: []activityRow{{CustomerID: customerID}}}
	tasks := &fakeTaskPurger{fakeMeetingPurger{rows: []activityRow{{CustomerID: customerID}}}}
	c := newTestConsumer(meetings, tasks)

	deleted := mustEnvelope(t, events.TypeCustomerDeleted, events.CustomerData{CustomerID: customerID})
	require.NoError(t, c.HandleCustomerEvent(context.Background(), deleted))
	require.Empty(t, meetings.rows)
	require.Empty(t, tasks.rows)

	// an update published before the delete but delivered after it
	stale := mustEnvelope(t, events.TypeCustomerUpdated, events.CustomerData{CustomerID: customerID, Name: "Renamed"})
	require.NoError(t, c.HandleCustomerEvent(context.Background(), stale))
	require.Empty(t, meetings.rows)
	require.Empty(t, tasks.rows)
}

func TestUserDeletedCascadesToOwnedActivity(t *testing.T) {
	userID := uuid.New()
	otherUser := uuid.New()
	meetings := &fakeMeetingPurger{rows: []activityRow{
		{CustomerID: uuid.New(), UserID: userID},
		{CustomerID: uuid.New(), UserID: otherUser},
	}}
	tasks := &fakeTaskPurger{fakeMeetingPurger{rows: []activityRow{
		{CustomerID: uuid.New(), UserID: userID},
		{CustomerID: uuid.New(), UserID: userID},
		{CustomerID: uuid.New(), UserID: otherUser},
	}}}
	c := newTestConsumer(meetings, tasks)

	env := mustEnvelope(t, events.TypeUserDeleted, events.UserData{UserID: userID})
	require.NoError(t, c.HandleUserEvent(context.Background(), env))

	require.Len(t, meetings.rows, 1)
	require.Equal(t, otherUser, meetings.rows[0].UserID)
	require.Len(t, tasks.rows, 1)
	require.Equal(t, otherUser, tasks.rows[0].UserID)
}

func TestCascadeRedeliveryIsIdempotent(t *testing.T) {
	customerID := uuid.New()
	meetings := &fakeMeetingPurger{rows: []activityRow{{CustomerID: customerID}}}
	tasks := &fakeTaskPurger{}
	c := newTestConsumer(meetings, tasks)

	env := mustEnvelope(t, events.TypeCustomerDeleted, events.CustomerData{CustomerID: customerID})
	require.NoError(t, c.HandleCustomerEvent(context.Background(), env))
	require.Empty(t, meetings.rows)

	// the replayed delete matches nothing
	require.NoError(t, c.HandleCustomerEvent(context.Background(), env))
	require.Empty(t, meetings.rows)
}

type flakyMeetingPurger struct {
	fakeMeetingPurger
	failuresLeft int
}

func (f *flakyMeetingPurger) DeleteByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return 0, errors.New("connection reset by peer")
	}
	return f.fakeMeetingPurger.DeleteByCustomer(ctx, customerID)
}

func TestCascadeRetriedAfterTransientFailure(t *testing.T) {
	customerID := uuid.New()
	meetings := &flakyMeetingPurger{
		fakeMeetingPurger: fakeMeetingPurger{rows: []activityRow{{CustomerID: customerID}}},
		failuresLeft:      1,
	}
	tasks := &fakeTaskPurger{fakeMeetingPurger{rows: []activityRow{{CustomerID: customerID}}}}
	c := &Consumer{
		Logger:    logx.New("salesactivity-consumer", "test", "", "error"),
		Meetings:  meetings,
		Tasks:     tasks,
		Processed: &fakeDedup{},
	}

	env := mustEnvelope(t, events.TypeCustomerDeleted, events.CustomerData{CustomerID: customerID})
	require.Error(t, c.HandleCustomerEvent(context.Background(), env))
	require.Len(t, meetings.rows, 1)
	require.Len(t, tasks.rows, 1)

	// the failed delivery must not count as processed; redelivery finishes
	// the cascade
	require.NoError(t, c.HandleCustomerEvent(context.Background(), env))
	require.Empty(t, meetings.rows)
	require.Empty(t, tasks.rows)
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	meetings := &fakeMeetingPurger{rows: []activityRow{{CustomerID: uuid.New()}}}
	tasks := &fakeTaskPurger{}
	c := newTestConsumer(meetings, tasks)

	env := mustEnvelope(t, "customer.archived", events.CustomerData{CustomerID: uuid.New()})
	require.NoError(t, c.HandleCustomerEvent(context.Background(), env))
	require.Len(t, meetings.rows, 1)
}
