package consumer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"securities-sales-crm/analytics/internal/reports"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/logx"
)

type recordingInvalidator struct {
	keys []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, key string) error {
	r.keys = append(r.keys, key)
	return nil
}

func newTestConsumer() (*Consumer, *recordingInvalidator) {
	inv := &recordingInvalidator{}
	return &Consumer{Logger: logx.New("analytics-consumer", "test", "", "error"), Cache: inv}, inv
}

func envelope(t *testing.T, eventType string) events.Envelope {
	t.Helper()
	env, err := events.New(eventType, map[string]string{})
	require.NoError(t, err)
	return env
}

func TestEveryDataChangingEventInvalidatesItsReports(t *testing.T) {
	cases := []struct {
		eventType string
		handle    func(*Consumer, context.Context, events.Envelope) error
		want      []string
	}{
		{events.TypeCustomerCreated, (*Consumer).HandleCustomerEvent, []string{reports.KeyCustomerOverview}},
		{events.TypeCustomerUpdated, (*Consumer).HandleCustomerEvent, []string{reports.KeyCustomerOverview}},
		{events.TypeCustomerDeleted, (*Consumer).HandleCustomerEvent, []string{reports.KeyCustomerOverview, reports.KeySalesSummary, reports.KeyApprovalStats}},
		{events.TypeUserDeleted, (*Consumer).HandleUserEvent, []string{reports.KeySalesSummary, reports.KeyApprovalStats}},
		{events.TypeMeetingCreated, (*Consumer).HandleSalesEvent, []string{reports.KeySalesSummary}},
		{events.TypeMeetingDeleted, (*Consumer).HandleSalesEvent, []string{reports.KeySalesSummary}},
		{events.TypeTaskCreated, (*Consumer).HandleSalesEvent, []string{reports.KeySalesSummary}},
		{events.TypeTaskCompleted, (*Consumer).HandleSalesEvent, []string{reports.KeySalesSummary}},
		{events.TypeApprovalRequested, (*Consumer).HandleApprovalEvent, []string{reports.KeyApprovalStats}},
		{events.TypeApprovalApproved, (*Consumer).HandleApprovalEvent, []string{reports.KeyApprovalStats}},
		{events.TypeApprovalRejected, (*Consumer).HandleApprovalEvent, []string{reports.KeyApprovalStats}},
		{events.TypeApprovalRecalled, (*Consumer).HandleApprovalEvent, []string{reports.KeyApprovalStats}},
	}
	for _, tc := range cases {
		t.Run(tc.eventType, func(t *testing.T) {
			c, inv := newTestConsumer()
			require.NoError(t, tc.handle(c, context.Background(), envelope(t, tc.eventType)))
			require.Equal(t, tc.want, inv.keys)
		})
	}
}

func TestNonDataEventsInvalidateNothing(t *testing.T) {
	c, inv := newTestConsumer()

	require.NoError(t, c.HandleUserEvent(context.Background(), envelope(t, events.TypeUserCreated)))
	require.NoError(t, c.HandleSalesEvent(context.Background(), envelope(t, events.TypeTaskDueSoon)))
	require.Empty(t, inv.keys)
}

func TestInvalidationMapsCoverEveryKnownEventType(t *testing.T) {
	// each per-topic map must carry an explicit entry for every enum value;
	// a missing entry would silently serve stale reports
	userKinds := []events.UserEvent{events.UserCreated, events.UserUpdated, events.UserDeleted}
	for _, k := range userKinds {
		_, ok := userInvalidations[k]
		require.True(t, ok, "user event %d has no invalidation entry", k)
	}
	customerKinds := []events.CustomerEvent{events.CustomerCreated, events.CustomerUpdated, events.CustomerDeleted}
	for _, k := range customerKinds {
		_, ok := customerInvalidations[k]
		require.True(t, ok, "customer event %d has no invalidation entry", k)
	}
	salesKinds := []events.SalesEvent{
		events.MeetingCreated, events.MeetingUpdated, events.MeetingDeleted,
		events.TaskCreated, events.TaskUpdated, events.TaskCompleted, events.TaskDueSoon,
	}
	for _, k := range salesKinds {
		_, ok := salesInvalidations[k]
		require.True(t, ok, "sales event %d has no invalidation entry", k)
	}
	approvalKinds := []events.ApprovalEvent{
		events.ApprovalRequested, events.ApprovalApproved, events.ApprovalRejected, events.ApprovalRecalled,
	}
	for _, k := range approvalKinds {
		_, ok := approvalInvalidations[k]
		require.True(t, ok, "approval event %d has no invalidation entry", k)
	}
}

func TestRepeatedInvalidationIsIdempotent(t *testing.T) {
	c, inv := newTestConsumer()
	env := envelope(t, events.TypeApprovalApproved)

	require.NoError(t, c.HandleApprovalEvent(context.Background(), env))
	require.NoError(t, c.HandleApprovalEvent(context.Background(), env))
	require.Equal(t, []string{reports.KeyApprovalStats, reports.KeyApprovalStats}, inv.keys)
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	c, inv := newTestConsumer()
	require.NoError(t, c.HandleSalesEvent(context.Background(), envelope(t, "meeting.archived")))
	require.Empty(t, inv.keys)
}
