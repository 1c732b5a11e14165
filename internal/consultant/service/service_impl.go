package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	actiondomain "github.com/smallbiznis/collecta/internal/action/domain"
	"github.com/smallbiznis/collecta/internal/clock"
	"github.com/smallbiznis/collecta/internal/consultant/domain"
	"github.com/smallbiznis/collecta/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("consultant.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateConsultantRequest) (domain.Consultant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Consultant{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Consultant{}, domain.ErrInvalidEmail
	}

	status := domain.ConsultantStatus(strings.TrimSpace(strings.ToLower(req.Status)))
	if status == "" {
		status = domain.StatusActive
	}
	switch status {
	case domain.StatusActive, domain.StatusInactive, domain.StatusVacation:
	default:
		return domain.Consultant{}, domain.ErrInvalidStatus
	}

	consultant := domain.Consultant{
		ID:        s.genID.Generate(),
		Name:      name,
		Email:     email,
		Status:    status,
		CreatedAt: s.clock.Now(),
	}

	if err := s.repo.Insert(ctx, s.db, &consultant); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Consultant{}, domain.ErrAlreadyExists
		}
		return domain.Consultant{}, err
	}

	return consultant, nil
}

func (s *Service) Assign(ctx context.Context, req domain.AssignCustomerRequest) (domain.CustomerAssignment, error) {
	customerID, err := actiondomain.CustomerInternalID(req.CustomerID)
	if err != nil {
		return domain.CustomerAssignment{}, domain.ErrInvalidID
	}

	consultantID, err := s.parseID(req.ConsultantID)
	if err != nil {
		return domain.CustomerAssignment{}, err
	}

	consultant, err := s.repo.FindByID(ctx, s.db, consultantID)
	if err != nil {
		return domain.CustomerAssignment{}, err
	}
	if consultant == nil {
		return domain.CustomerAssignment{}, domain.ErrNotFound
	}

	assignment := domain.CustomerAssignment{
		ID:           s.genID.Generate(),
		CustomerID:   customerID,
		ConsultantID: consultantID,
		CreatedAt:    s.clock.Now(),
	}

	if err := s.repo.InsertAssignment(ctx, s.db, &assignment); err != nil {
		return domain.CustomerAssignment{}, err
	}

	return assignment, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Consultant, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	consultants := make([]domain.Consultant, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		consultants = append(consultants, *item)
	}
	return consultants, nil
}

func (s *Service) ResolveEmail(ctx context.Context, consultantID snowflake.ID) (string, error) {
	if consultantID == 0 {
		return "", nil
	}
	consultant, err := s.repo.FindByID(ctx, s.db, consultantID)
	if err != nil {
		return "", err
	}
	if consultant == nil {
		return "", nil
	}
	return consultant.Email, nil
}

func (s *Service) ResolveAssigned(ctx context.Context, customerInternalID int64) (*domain.Consultant, error) {
	if customerInternalID == 0 {
		return nil, nil
	}
	assignment, err := s.repo.LatestAssignment(ctx, s.db, customerInternalID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, nil
	}
	return s.repo.FindByID(ctx, s.db, assignment.ConsultantID)
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
