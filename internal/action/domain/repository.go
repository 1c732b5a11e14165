package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/collecta/pkg/db/pagination"
	"gorm.io/gorm"
)

// OutcomePatch is the delivery-state writeback applied by MarkOutcome.
// Zero fields are left untouched on the row.
type OutcomePatch struct {
	Status       DeliveryStatus
	SentAt       *time.Time
	Recipient    string
	ConsultantID snowflake.ID
	ModifiedBy   string
	ModifiedAt   time.Time
}

type ListActionFilter struct {
	CustomerInternalID int64
	InvoiceType        string
	InvoiceNumber      string
	BatchID            snowflake.ID
	Status             *DeliveryStatus
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, action *FollowUpAction) error
	Update(ctx context.Context, db *gorm.DB, action *FollowUpAction) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FollowUpAction, error)
	FindByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*FollowUpAction, error)
	List(ctx context.Context, db *gorm.DB, filter ListActionFilter, page pagination.Pagination) ([]*FollowUpAction, error)
	SelectDue(ctx context.Context, db *gorm.DB, asOf time.Time, excluded []DeliveryStatus) ([]*FollowUpAction, error)
	ExpireBefore(ctx context.Context, db *gorm.DB, cutoff, now time.Time) (int64, error)
	MarkOutcome(ctx context.Context, db *gorm.DB, ids []snowflake.ID, patch OutcomePatch) error
	FindSystemAction(ctx context.Context, db *gorm.DB, invoiceType, invoiceNumber string, level int) (*FollowUpAction, error)
}
