// Package consumer turns approval and sales events into notification rows.
// Handlers are idempotent: the notification table is keyed by
// (event_id, recipient, type), so redelivered events upsert into no-ops.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"securities-sales-crm/identity/internal/models"
	"securities-sales-crm/shared/authx"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/logx"
)

const Group = "identity-consumer"

type NotificationWriter interface {
	Upsert(ctx context.Context, n models.Notification) (bool, error)
	DeleteForUser(ctx context.Context, recipientUserID uuid.UUID) (int64, error)
}

type ApproverDirectory interface {
	ListUserIDsByRoles(ctx context.Context, roles []string) ([]uuid.UUID, error)
}

type Dedup interface {
	MarkProcessed(ctx context.Context, consumerGroup string, eventID uuid.UUID) (bool, error)
}

type Consumer struct {
	Logger        logx.Logger
	Notifications NotificationWriter
	Users         ApproverDirectory
	Processed     Dedup
}

// HandleApprovalEvent notifies the requester about decisions on their
// request and fans approval.requested out to every active approver.
func (c *Consumer) HandleApprovalEvent(ctx context.Context, env events.Envelope) error {
	kind := events.ParseApprovalEvent(env.EventType)
	if kind == events.ApprovalUnknown {
		c.skipUnknown(ctx, env)
		return nil
	}

	var data events.ApprovalData
	if err := decode(env, &data); err != nil {
		return err
	}

	switch kind {
	case events.ApprovalRequested:
		approvers, err := c.Users.ListUserIDsByRoles(ctx, []string{authx.RoleManager, authx.RoleCompliance})
		if err != nil {
			return err
		}
		for _, approverID := range approvers {
			if approverID == data.RequesterID {
				continue
			}
			if err := c.upsert(ctx, env, approverID, fmt.Sprintf("Approval requested for %s", data.ProductName), data); err != nil {
				return err
			}
		}
	case events.ApprovalApproved, events.ApprovalRejected, events.ApprovalRecalled:
		if err := c.upsert(ctx, env, data.RequesterID, fmt.Sprintf("Approval request %s", data.Status), data); err != nil {
			return err
		}
	default:
		return nil
	}
	return c.markProcessed(ctx, env)
}

// HandleSalesEvent notifies assignees of tasks coming due. All other sales
// events carry no notification semantics here.
func (c *Consumer) HandleSalesEvent(ctx context.Context, env events.Envelope) error {
	kind := events.ParseSalesEvent(env.EventType)
	switch kind {
	case events.TaskDueSoon:
	case events.SalesUnknown:
		c.skipUnknown(ctx, env)
		return nil
	default:
		return nil
	}

	var data events.TaskData
	if err := decode(env, &data); err != nil {
		return err
	}

	if err := c.upsert(ctx, env, data.AssigneeUserID, fmt.Sprintf("Task due soon: %s", data.Title), data); err != nil {
		return err
	}
	return c.markProcessed(ctx, env)
}

// markProcessed records completion only after the notification writes
// succeeded: a failed write must stay unmarked so redelivery retries it. The
// (event_id, recipient, type) key makes a replayed write a no-op.
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

// HandleUserEvent prunes the notification inbox of a deleted user. Deleting
// twice is a no-op.
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
	removed, err := c.Notifications.DeleteForUser(ctx, data.UserID)
	if err != nil {
		return err
	}
	if removed > 0 {
		c.Logger.Info(ctx, "notifications_pruned", "removed notifications of deleted user",
			slog.String("user_id", data.UserID.String()),
			slog.Int64("removed", removed),
		)
	}
	return nil
}

func (c *Consumer) upsert(ctx context.Context, env events.Envelope, recipient uuid.UUID, title string, payload any) error {
	if recipient == uuid.Nil {
		return nil
	}
	body, _ := json.Marshal(payload)
	_, err := c.Notifications.Upsert(ctx, models.Notification{
		EventID:         env.EventID,
		RecipientUserID: recipient,
		Type:            env.EventType,
		Title:           title,
		Body:            string(body),
		CreatedAt:       env.Timestamp,
	})
	return err
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
