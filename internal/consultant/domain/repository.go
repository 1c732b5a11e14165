package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, consultant *Consultant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Consultant, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Consultant, error)
	List(ctx context.Context, db *gorm.DB) ([]*Consultant, error)
	InsertAssignment(ctx context.Context, db *gorm.DB, assignment *CustomerAssignment) error
	LatestAssignment(ctx context.Context, db *gorm.DB, customerID int64) (*CustomerAssignment, error)
}
