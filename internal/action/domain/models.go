package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DeliveryStatus is the terminal (or retryable) outcome of a delivery
// attempt. The zero value means the action is still pending.
type DeliveryStatus string

const (
	StatusPending            DeliveryStatus = ""
	StatusSent               DeliveryStatus = "sent"
	StatusFailed             DeliveryStatus = "failed"
	StatusSkippedPaid        DeliveryStatus = "skipped_paid"
	StatusSkippedNoRecipient DeliveryStatus = "skipped_no_recipient"
	StatusExpired            DeliveryStatus = "expired"
)

// System is the author and kind stamped onto generator-created actions.
const (
	SystemActor = "System"
	SystemKind  = "System"
)

// DefaultExclusions are the statuses SelectDue skips on a normal run.
// failed is absent on purpose: transport failures retry next run.
func DefaultExclusions() []DeliveryStatus {
	return []DeliveryStatus{StatusSkippedPaid, StatusExpired, StatusSkippedNoRecipient}
}

// FollowUpAction is one unit of planned or completed outreach for an
// overdue invoice. Both customer-id forms are stored at creation time so
// reads never have to guess the formatting.
type FollowUpAction struct {
	ID                 snowflake.ID   `gorm:"primaryKey" json:"id"`
	CustomerExternalID string         `gorm:"column:customer_external_id;not null;index" json:"customer_external_id"`
	CustomerInternalID int64          `gorm:"column:customer_internal_id;not null;index" json:"customer_internal_id"`
	InvoiceType        string         `gorm:"column:invoice_type;not null" json:"invoice_type"`
	InvoiceNumber      string         `gorm:"column:invoice_number;not null" json:"invoice_number"`
	ActionKind         string         `gorm:"column:action_kind" json:"action_kind,omitempty"`
	Description        string         `gorm:"column:description" json:"description,omitempty"`
	DueAt              *time.Time     `gorm:"column:due_at;index" json:"due_at,omitempty"`
	CreatedBy          string         `gorm:"column:created_by;not null" json:"created_by"`
	ConsultantID       snowflake.ID   `gorm:"column:consultant_id" json:"consultant_id,omitempty"`
	Recipient          string         `gorm:"column:recipient" json:"recipient,omitempty"`
	DeliveryStatus     DeliveryStatus `gorm:"column:delivery_status" json:"delivery_status,omitempty"`
	SentAt             *time.Time     `gorm:"column:sent_at" json:"sent_at,omitempty"`
	BatchID            snowflake.ID   `gorm:"column:batch_id;index" json:"batch_id,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	ModifiedBy         string         `gorm:"column:modified_by" json:"modified_by,omitempty"`
	ModifiedAt         time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"modified_at"`
}

// InvoiceRef identifies one ledger line within a customer's account.
type InvoiceRef struct {
	Type   string `json:"invoice_type"`
	Number string `json:"invoice_number"`
}

func (r InvoiceRef) String() string {
	return r.Type + "-" + r.Number
}

// Ref returns the action's invoice reference.
func (a *FollowUpAction) Ref() InvoiceRef {
	return InvoiceRef{Type: a.InvoiceType, Number: a.InvoiceNumber}
}

// Placeholder reports whether the action is a batch placeholder that has
// not been filled in yet. Placeholders are never due.
func (a *FollowUpAction) Placeholder() bool {
	return a.ActionKind == ""
}

// EditableAt reports whether the action may still be changed or removed
// at the given instant. Once a delivery attempt stamped sent_at, or once
// the due date is today or past, the action is locked.
func (a *FollowUpAction) EditableAt(now time.Time) bool {
	if a.SentAt != nil {
		return false
	}
	if a.DueAt == nil {
		return true
	}
	due := dateOf(*a.DueAt)
	today := dateOf(now)
	return due.After(today)
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
