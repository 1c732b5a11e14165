package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/collecta/pkg/db/pagination"
)

type CreateActionRequest struct {
	CustomerID    string // external form, zero padding preserved
	InvoiceType   string
	InvoiceNumber string
	Kind          string
	Description   string
	DueAt         *time.Time
	ConsultantID  snowflake.ID
	Recipient     string
	CreatedBy     string
}

type UpdateActionRequest struct {
	ID           string
	Kind         *string
	Description  *string
	DueAt        *time.Time
	ConsultantID *snowflake.ID
	Recipient    *string
	ModifiedBy   string
}

type DeleteActionRequest struct {
	ID string
}

type CreateBatchRequest struct {
	CustomerID string
	Invoices   []InvoiceRef
	CreatedBy  string
}

type CreateBatchResponse struct {
	BatchID snowflake.ID
	Actions []FollowUpAction
}

// FillBatchRequest sets the shared content on every placeholder of a
// batch. Refs absent from the batch are created; batch members whose ref
// is absent here are deleted.
type FillBatchRequest struct {
	BatchID      string
	Kind         string
	Description  string
	DueAt        *time.Time
	ConsultantID snowflake.ID
	Refs         []InvoiceRef
	ModifiedBy   string
}

type MarkOutcomeRequest struct {
	IDs          []snowflake.ID
	Status       DeliveryStatus
	SentAt       *time.Time
	Recipient    string
	ConsultantID snowflake.ID
}

type GetActionRequest struct {
	ID string
}

type ListActionsRequest struct {
	PageToken     string
	PageSize      int32
	CustomerID    string
	InvoiceType   string
	InvoiceNumber string
	BatchID       string
	Status        *DeliveryStatus
}

type ListActionsResponse struct {
	pagination.PageInfo
	Actions []FollowUpAction `json:"actions"`
}

type FindSystemActionRequest struct {
	InvoiceType   string
	InvoiceNumber string
	Level         int
}

type Service interface {
	Create(context.Context, CreateActionRequest) (FollowUpAction, error)
	Update(context.Context, UpdateActionRequest) error
	Delete(context.Context, DeleteActionRequest) error
	CreateBatch(context.Context, CreateBatchRequest) (CreateBatchResponse, error)
	FillBatch(context.Context, FillBatchRequest) error
	SelectDue(ctx context.Context, asOf time.Time, excluded []DeliveryStatus) ([]FollowUpAction, error)
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)
	MarkOutcome(context.Context, MarkOutcomeRequest) error
	Get(context.Context, GetActionRequest) (FollowUpAction, error)
	List(context.Context, ListActionsRequest) (ListActionsResponse, error)
	FindSystemAction(context.Context, FindSystemActionRequest) (*FollowUpAction, error)
}

var (
	ErrNotEditable       = errors.New("not_editable")
	ErrNotFound          = errors.New("not_found")
	ErrInvalidInvoiceRef = errors.New("invalid_invoice_ref")
	ErrInvalidCustomer   = errors.New("invalid_customer")
	ErrEmptyBatch        = errors.New("empty_batch")
	ErrInvalidID         = errors.New("invalid_id")
)
