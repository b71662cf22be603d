// Package consumer performs system recall: when the customer an approval is
// written against, or the user who requested it, is deleted elsewhere, every
// PENDING request is recalled with the cause recorded in its comment.
// Terminal requests are never touched, so replay and out-of-order delivery
// are no-ops.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"securities-sales-crm/opportunity/internal/models"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/logx"
)

const Group = "opportunity-consumer"

const (
	causeCustomerDeleted  = "recalled by system: customer deleted"
	causeRequesterDeleted = "recalled by system: requester deleted"
)

type ApprovalRecaller interface {
	RecallPendingByCustomer(ctx context.Context, customerID uuid.UUID, cause string) ([]models.ApprovalRequest, error)
	RecallPendingByRequester(ctx context.Context, requesterID uuid.UUID, cause string) ([]models.ApprovalRequest, error)
}

type Dedup interface {
	MarkProcessed(ctx context.Context, consumerGroup string, eventID uuid.UUID) (bool, error)
}

type Consumer struct {
	Logger    logx.Logger
	Approvals ApprovalRecaller
	Processed Dedup
}

// HandleCustomerEvent recalls pending approvals of a deleted customer.
// Creates and updates are ignored, so a customer.updated landing after the
// customer.deleted cannot reopen anything.
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

	recalled, err := c.Approvals.RecallPendingByCustomer(ctx, data.CustomerID, causeCustomerDeleted)
	if err != nil {
		return err
	}
	if err := c.markProcessed(ctx, env); err != nil {
		return err
	}
	c.logRecall(ctx, env, "customer_id", data.CustomerID, recalled)
	return nil
}

// HandleUserEvent recalls the pending requests of a deleted requester.
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

	recalled, err := c.Approvals.RecallPendingByRequester(ctx, data.UserID, causeRequesterDeleted)
	if err != nil {
		return err
	}
	if err := c.markProcessed(ctx, env); err != nil {
		return err
	}
	c.logRecall(ctx, env, "user_id", data.UserID, recalled)
	return nil
}

// markProcessed records completion only after the recall succeeded: a failed
// recall must stay unmarked so redelivery retries it. The recall itself only
// touches PENDING rows, so re-running it after a crash-before-mark is a no-op.
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

func (c *Consumer) logRecall(ctx context.Context, env events.Envelope, idKey string, id uuid.UUID, recalled []models.ApprovalRequest) {
	if len(recalled) == 0 {
		return
	}
	c.Logger.Info(ctx, "approvals_recalled", "system recall of pending approvals",
		slog.String("event_type", env.EventType),
		slog.String(idKey, id.String()),
		slog.Int("recalled", len(recalled)),
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
