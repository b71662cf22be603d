package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Envelope is the wire format for every domain event. Events are immutable
// once published; EventID doubles as the partition key and the consumer-side
// deduplication key.
type Envelope struct {
	EventID   uuid.UUID       `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

const (
	TopicUserEvents     = "user.events"
	TopicCustomerEvents = "customer.events"
	TopicSalesEvents    = "sales.events"
	TopicApprovalEvents = "approval.events"
)

const (
	TypeUserCreated = "user.created"
	TypeUserUpdated = "user.updated"
	TypeUserDeleted = "user.deleted"

	TypeCustomerCreated = "customer.created"
	TypeCustomerUpdated = "customer.updated"
	TypeCustomerDeleted = "customer.deleted"

	TypeMeetingCreated = "meeting.created"
	TypeMeetingUpdated = "meeting.updated"
	TypeMeetingDeleted = "meeting.deleted"

	TypeTaskCreated   = "task.created"
	TypeTaskUpdated   = "task.updated"
	TypeTaskCompleted = "task.completed"
	TypeTaskDueSoon   = "task.due_soon"

	TypeApprovalRequested = "approval.requested"
	TypeApprovalApproved  = "approval.approved"
	TypeApprovalRejected  = "approval.rejected"
	TypeApprovalRecalled  = "approval.recalled"
)

// New builds an envelope around a payload. Payloads carry every identifier a
// consumer needs so handlers never call back to the producing service.
func New(eventType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:   uuid.New(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

type UserData struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role,omitempty"`
}

type CustomerData struct {
	CustomerID  uuid.UUID `json:"customer_id"`
	Name        string    `json:"name,omitempty"`
	OwnerUserID uuid.UUID `json:"owner_user_id,omitempty"`
}

type MeetingData struct {
	MeetingID   uuid.UUID `json:"meeting_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	OwnerUserID uuid.UUID `json:"owner_user_id"`
	Title       string    `json:"title,omitempty"`
}

type TaskData struct {
	TaskID         uuid.UUID  `json:"task_id"`
	CustomerID     uuid.UUID  `json:"customer_id"`
	AssigneeUserID uuid.UUID  `json:"assignee_user_id"`
	Title          string     `json:"title,omitempty"`
	DueAt          *time.Time `json:"due_at,omitempty"`
}

type ApprovalData struct {
	ApprovalID  uuid.UUID       `json:"approval_id"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	RequesterID uuid.UUID       `json:"requester_id"`
	ApproverID  *uuid.UUID      `json:"approver_id,omitempty"`
	ProductName string          `json:"product_name,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status,omitempty"`
}
