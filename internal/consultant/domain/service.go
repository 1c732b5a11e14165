package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateConsultantRequest struct {
	Name   string
	Email  string
	Status string
}

type AssignCustomerRequest struct {
	CustomerID   string // external or internal form
	ConsultantID string
}

type Service interface {
	Create(context.Context, CreateConsultantRequest) (Consultant, error)
	Assign(context.Context, AssignCustomerRequest) (CustomerAssignment, error)
	List(context.Context) ([]Consultant, error)

	// ResolveEmail returns "" when the consultant is unknown or has no
	// address; it never fails on a plain miss.
	ResolveEmail(ctx context.Context, consultantID snowflake.ID) (string, error)

	// ResolveAssigned returns the consultant behind the latest assignment
	// for a customer, or nil when the customer has none.
	ResolveAssigned(ctx context.Context, customerInternalID int64) (*Consultant, error)
}

var (
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidEmail  = errors.New("invalid_email")
	ErrInvalidStatus = errors.New("invalid_status")
	ErrAlreadyExists = errors.New("already_exists")
	ErrNotFound      = errors.New("not_found")
	ErrInvalidID     = errors.New("invalid_id")
)
