package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/collecta/internal/consultant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, consultant *domain.Consultant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO consultants (id, name, email, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		consultant.ID,
		consultant.Name,
		consultant.Email,
		string(consultant.Status),
		consultant.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Consultant, error) {
	var consultant domain.Consultant
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, status, created_at
		 FROM consultants WHERE id = ?`, id,
	).Scan(&consultant).Error
	if err != nil {
		return nil, err
	}
	if consultant.ID == 0 {
		return nil, nil
	}
	return &consultant, nil
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Consultant, error) {
	var consultant domain.Consultant
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, status, created_at
		 FROM consultants WHERE email = ?`, email,
	).Scan(&consultant).Error
	if err != nil {
		return nil, err
	}
	if consultant.ID == 0 {
		return nil, nil
	}
	return &consultant, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]*domain.Consultant, error) {
	var consultants []*domain.Consultant
	err := db.WithContext(ctx).
		Model(&domain.Consultant{}).
		Order("CASE WHEN status = 'active' THEN 0 ELSE 1 END, name asc").
		Find(&consultants).Error
	if err != nil {
		return nil, err
	}
	return consultants, nil
}

func (r *repo) InsertAssignment(ctx context.Context, db *gorm.DB, assignment *domain.CustomerAssignment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO customer_assignments (id, customer_id, consultant_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		assignment.ID,
		assignment.CustomerID,
		assignment.ConsultantID,
		assignment.CreatedAt,
	).Error
}

func (r *repo) LatestAssignment(ctx context.Context, db *gorm.DB, customerID int64) (*domain.CustomerAssignment, error) {
	var assignment domain.CustomerAssignment
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, consultant_id, created_at
		 FROM customer_assignments
		 WHERE customer_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, customerID,
	).Scan(&assignment).Error
	if err != nil {
		return nil, err
	}
	if assignment.ID == 0 {
		return nil, nil
	}
	return &assignment, nil
}
