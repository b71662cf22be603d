package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"securities-sales-crm/identity/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

type NotificationsRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationsRepo(pool *pgxpool.Pool) *NotificationsRepo {
	return &NotificationsRepo{pool: pool}
}

// Upsert inserts at most one row per (event_id, recipient, type). A
// redelivered event hits the conflict clause and reports created=false.
func (r *NotificationsRepo) Upsert(ctx context.Context, n models.Notification) (bool, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.NotificationID == uuid.Nil {
		n.NotificationID = uuid.New()
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (notification_id, event_id, recipient_user_id, type, title, body, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (event_id, recipient_user_id, type) DO NOTHING
	`, n.NotificationID, n.EventID, n.RecipientUserID, n.Type, n.Title, n.Body, n.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *NotificationsRepo) ListForUser(ctx context.Context, recipientUserID uuid.UUID, unreadOnly bool, limit int, offset int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT notification_id, event_id, recipient_user_id, type, title, body, is_read, read_at, created_at
		FROM notifications
		WHERE recipient_user_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += `
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, recipientUserID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.NotificationID, &n.EventID, &n.RecipientUserID, &n.Type, &n.Title, &n.Body, &n.IsRead, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// MarkRead flips is_read for the recipient only; another user's id simply
// matches no row.
func (r *NotificationsRepo) MarkRead(ctx context.Context, notificationID uuid.UUID, recipientUserID uuid.UUID) (models.Notification, error) {
	var n models.Notification
	err := r.pool.QueryRow(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE notification_id = $1 AND recipient_user_id = $2
		RETURNING notification_id, event_id, recipient_user_id, type, title, body, is_read, read_at, created_at
	`, notificationID, recipientUserID, time.Now().UTC()).
		Scan(&n.NotificationID, &n.EventID, &n.RecipientUserID, &n.Type, &n.Title, &n.Body, &n.IsRead, &n.ReadAt, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Notification{}, ErrNotificationNotFound
	}
	return n, err
}

// DeleteForUser removes a user's notifications after user.deleted. Deleting
// for an unknown user is a no-op.
func (r *NotificationsRepo) DeleteForUser(ctx context.Context, recipientUserID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE recipient_user_id = $1`, recipientUserID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
