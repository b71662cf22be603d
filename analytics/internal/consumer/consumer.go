// Package consumer keeps the report cache honest: every event that changes
// data feeding a report invalidates that report's key. A data-changing event
// with no entry in the invalidation map is a staleness bug, so the map is
// written out exhaustively per topic rather than matched ad hoc.
package consumer

import (
	"context"
	"log/slog"

	"securities-sales-crm/analytics/internal/reports"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/logx"
)

const Group = "analytics-consumer"

type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

type Consumer struct {
	Logger logx.Logger
	Cache  Invalidator
}

// userInvalidations: user deletion cascades into sales activity and
// approvals, so those reports go stale too. Creates and updates touch no
// report input.
var userInvalidations = map[events.UserEvent][]string{
	events.UserCreated: nil,
	events.UserUpdated: nil,
	events.UserDeleted: {reports.KeySalesSummary, reports.KeyApprovalStats},
}

// customerInvalidations: every customer change moves the overview; deletion
// additionally cascades into sales activity and approvals.
var customerInvalidations = map[events.CustomerEvent][]string{
	events.CustomerCreated: {reports.KeyCustomerOverview},
	events.CustomerUpdated: {reports.KeyCustomerOverview},
	events.CustomerDeleted: {reports.KeyCustomerOverview, reports.KeySalesSummary, reports.KeyApprovalStats},
}

// salesInvalidations: task.due_soon only flips an internal scanner flag, so
// it invalidates nothing.
var salesInvalidations = map[events.SalesEvent][]string{
	events.MeetingCreated: {reports.KeySalesSummary},
	events.MeetingUpdated: {reports.KeySalesSummary},
	events.MeetingDeleted: {reports.KeySalesSummary},
	events.TaskCreated:    {reports.KeySalesSummary},
	events.TaskUpdated:    {reports.KeySalesSummary},
	events.TaskCompleted:  {reports.KeySalesSummary},
	events.TaskDueSoon:    nil,
}

var approvalInvalidations = map[events.ApprovalEvent][]string{
	events.ApprovalRequested: {reports.KeyApprovalStats},
	events.ApprovalApproved:  {reports.KeyApprovalStats},
	events.ApprovalRejected:  {reports.KeyApprovalStats},
	events.ApprovalRecalled:  {reports.KeyApprovalStats},
}

func (c *Consumer) HandleUserEvent(ctx context.Context, env events.Envelope) error {
	kind := events.ParseUserEvent(env.EventType)
	if kind == events.UserUnknown {
		c.skipUnknown(ctx, env)
		return nil
	}
	return c.invalidate(ctx, env, userInvalidations[kind])
}

func (c *Consumer) HandleCustomerEvent(ctx context.Context, env events.Envelope) error {
	kind := events.ParseCustomerEvent(env.EventType)
	if kind == events.CustomerUnknown {
		c.skipUnknown(ctx, env)
		return nil
	}
	return c.invalidate(ctx, env, customerInvalidations[kind])
}

func (c *Consumer) HandleSalesEvent(ctx context.Context, env events.Envelope) error {
	kind := events.ParseSalesEvent(env.EventType)
	if kind == events.SalesUnknown {
		c.skipUnknown(ctx, env)
		return nil
	}
	return c.invalidate(ctx, env, salesInvalidations[kind])
}

func (c *Consumer) HandleApprovalEvent(ctx context.Context, env events.Envelope) error {
	kind := events.ParseApprovalEvent(env.EventType)
	if kind == events.ApprovalUnknown {
		c.skipUnknown(ctx, env)
		return nil
	}
	return c.invalidate(ctx, env, approvalInvalidations[kind])
}

// invalidate needs no dedup table: deleting a cache key twice is a no-op, so
// redelivery is inherently safe.
func (c *Consumer) invalidate(ctx context.Context, env events.Envelope, keys []string) error {
	for _, key := range keys {
		if err := c.Cache.Invalidate(ctx, key); err != nil {
			return err
		}
		c.Logger.Debug(ctx, "report_invalidated", "report cache key invalidated",
			slog.String("key", key),
			slog.String("event_type", env.EventType),
		)
	}
	return nil
}

func (c *Consumer) skipUnknown(ctx context.Context, env events.Envelope) {
	c.Logger.Warn(ctx, "event_type_unknown", "ignoring unknown event type",
		slog.String("event_type", env.EventType),
		slog.String("event_id", env.EventID.String()),
	)
}
