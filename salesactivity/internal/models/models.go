package models

import (
	"time"

	"github.com/google/uuid"
)

type Meeting struct {
	MeetingID   uuid.UUID `json:"meeting_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	OwnerUserID uuid.UUID `json:"owner_user_id"`
	Title       string    `json:"title"`
	Notes       string    `json:"notes,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	TaskStatusOpen      = "OPEN"
	TaskStatusCompleted = "COMPLETED"
)

// Task rows are hard-deleted by the consumer cascades; DueSoonNotifiedAt
// keeps the hourly scanner from emitting task.due_soon twice for one task.
type Task struct {
	TaskID            uuid.UUID  `json:"task_id"`
	CustomerID        uuid.UUID  `json:"customer_id"`
	AssigneeUserID    uuid.UUID  `json:"assignee_user_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Status            string     `json:"status"`
	DueAt             *time.Time `json:"due_at,omitempty"`
	DueSoonNotifiedAt *time.Time `json:"due_soon_notified_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
