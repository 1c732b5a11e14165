package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type ConsultantStatus string

const (
	StatusActive   ConsultantStatus = "active"
	StatusInactive ConsultantStatus = "inactive"
	StatusVacation ConsultantStatus = "vacation"
)

// Consultant is an account manager who receives follow-up reminders for
// the customers assigned to them.
type Consultant struct {
	ID        snowflake.ID     `gorm:"primaryKey" json:"id"`
	Name      string           `gorm:"not null" json:"name"`
	Email     string           `gorm:"not null;uniqueIndex" json:"email"`
	Status    ConsultantStatus `gorm:"not null;default:'active'" json:"status"`
	CreatedAt time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// CustomerAssignment links a customer (internal id form) to a consultant.
// History is append-only; the newest row wins.
type CustomerAssignment struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID   int64        `gorm:"column:customer_id;not null;index" json:"customer_id"`
	ConsultantID snowflake.ID `gorm:"column:consultant_id;not null;index" json:"consultant_id"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}
