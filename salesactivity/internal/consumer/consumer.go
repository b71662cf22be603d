// Package consumer applies cross-service cascades to sales activity: when a
// customer or user disappears elsewhere, their meetings and tasks go too.
// Cascades are hard deletes and deleting an absent row is a no-op, so
// redelivery and out-of-order arrival are both safe.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/logx"
)

const Group = "salesactivity-consumer"

type MeetingPurger interface {
	DeleteByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error)
	DeleteByOwner(ctx context.Context, ownerUserID uuid.UUID) (int64, error)
}

type TaskPurger interface {
	DeleteByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error)
	DeleteByAssignee(ctx context.Context, assigneeUserID uuid.UUID) (int64, error)
}

type Dedup interface {
	MarkProcessed(ctx context.Context, consumerGroup string, eventID uuid.UUID) (bool, error)
}

type Consumer struct {
	Logger    logx.Logger
	Meetings  MeetingPurger
	Tasks     TaskPurger
	Processed Dedup
}

// HandleCustomerEvent cascades customer deletion into meetings and tasks.
// Creates and updates carry no state here, so a customer.updated that lands
// after the customer.deleted cannot resurrect anything.
func (c *Consumer) HandleCustomerEvent(ctx context.Context, env events.Envelope) error {
	kind := events.ParseCustomerEvent(env.EventType)
	switch kind {
	case events.CustomerDeleted:
	case events.CustomerUnknown:
		c.skipUnknown(ctx, env)
		return nil
	default:
		return nil
	}

	var data events.CustomerData
	if err := decode(env, &data); err != nil {
		return err
	}

	meetings, err := c.Meetings.DeleteByCustomer(ctx, data.CustomerID)
	if err != nil {
		return err
	}
	tasks, err := c.Tasks.DeleteByCustomer(ctx, data.CustomerID)
	if err != nil {
		return err
	}
	if err := c.markProcessed(ctx, env); err != nil {
		return err
	}
	c.logCascade(ctx, env, "customer_id", data.CustomerID, meetings, tasks)
	return nil
}

// HandleUserEvent cascades user deletion: the user's meetings and assigned
// tasks are removed.
func (c *Consumer) HandleUserEvent(ctx context.Context, env events.Envelope) error {
	kind := events.ParseUserEvent(env.EventType)
	switch kind {
	case events.UserDeleted:
	case events.UserUnknown:
		c.skipUnknown(ctx, env)
		return nil
	default:
		return nil
	}

	var data events.UserData
	if err := decode(env, &data); err != nil {
		return err
	}

	meetings, err := c.Meetings.DeleteByOwner(ctx, data.UserID)
	if err != nil {
		return err
	}
	tasks, err := c.Tasks.DeleteByAssignee(ctx, data.UserID)
	if err != nil {
		return err
	}
	if err := c.markProcessed(ctx, env); err != nil {
		return err
	}
	c.logCascade(ctx, env, "user_id", data.UserID, meetings, tasks)
	return nil
}

// markProcessed records completion only after the cascade succeeded: a failed
// delete must stay unmarked so redelivery retries it. The deletes themselves
// match nothing on a re-run, so a crash-before-mark replays harmlessly.
func (c *Consumer) markProcessed(ctx context.Context, env events.Envelope) error {
	first, err := c.Processed.MarkProcessed(ctx, Group, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		c.Logger.Debug(ctx, "event_replayed", "event already processed",
			slog.String("event_type", env.EventType),
			slog.String("event_id", env.EventID.String()),
		)
	}
	return nil
}

func (c *Consumer) logCascade(ctx context.Context, env events.Envelope, idKey string, id uuid.UUID, meetings int64, tasks int64) {
	if meetings == 0 && tasks == 0 {
		return
	}
	c.Logger.Info(ctx, "cascade_applied", "removed dependent sales activity",
		slog.String("event_type", env.EventType),
		slog.String(idKey, id.String()),
		slog.Int64("meetings_removed", meetings),
		slog.Int64("tasks_removed", tasks),
	)
}

func (c *Consumer) skipUnknown(ctx context.Context, env events.Envelope) {
	c.Logger.Warn(ctx, "event_type_unknown", "ignoring unknown event type",
		slog.String("event_type", env.EventType),
		slog.String("event_id", env.EventID.String()),
	)
}

func decode(env events.Envelope, dest any) error {
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return nil
}
