package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer rows are soft-deleted: DeletedAt set, row retained. Dependent
// rows in other services are cleaned up by their consumers, not here.
type Customer struct {
	CustomerID  uuid.UUID  `json:"customer_id"`
	Name        string     `json:"name"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	RiskProfile string     `json:"risk_profile,omitempty"`
	OwnerUserID uuid.UUID  `json:"owner_user_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}
