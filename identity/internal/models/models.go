package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	UserID      uuid.UUID  `json:"user_id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	// never serialized
	PasswordHash string `json:"-"`
}

// Notification rows are keyed by (event_id, recipient_user_id, type) so a
// redelivered event upserts instead of duplicating.
type Notification struct {
	NotificationID  uuid.UUID  `json:"notification_id"`
	EventID         uuid.UUID  `json:"event_id"`
	RecipientUserID uuid.UUID  `json:"recipient_user_id"`
	Type            string     `json:"type"`
	Title           string     `json:"title"`
	Body            string     `json:"body,omitempty"`
	IsRead          bool       `json:"is_read"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type AuditLog struct {
	AuditID     int64
	OccurredAt  time.Time
	ActorUserID *uuid.UUID
	Email       string
	Action      string
	RequestID   string
	ClientIP    string
	UserAgent   string
	Details     []byte
}
