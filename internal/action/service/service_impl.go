package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/collecta/internal/action/domain"
	"github.com/smallbiznis/collecta/internal/clock"
	consultantdomain "github.com/smallbiznis/collecta/internal/consultant/domain"
	"github.com/smallbiznis/collecta/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Directory consultantdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	directory consultantdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("action.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		directory: p.Directory,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateActionRequest) (domain.FollowUpAction, error) {
	ref, err := validateRef(domain.InvoiceRef{Type: req.InvoiceType, Number: req.InvoiceNumber})
	if err != nil {
		return domain.FollowUpAction{}, err
	}

	externalID := strings.TrimSpace(req.CustomerID)
	internalID, err := domain.CustomerInternalID(externalID)
	if err != nil {
		return domain.FollowUpAction{}, err
	}

	createdBy := strings.TrimSpace(req.CreatedBy)
	if createdBy == "" {
		createdBy = domain.SystemActor
	}

	consultantID := req.ConsultantID
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		consultantID, recipient = s.resolveRecipient(ctx, consultantID, internalID)
	}

	now := s.clock.Now()
	action := domain.FollowUpAction{
		ID:                 s.genID.Generate(),
		CustomerExternalID: externalID,
		CustomerInternalID: internalID,
		InvoiceType:        ref.Type,
		InvoiceNumber:      ref.Number,
		ActionKind:         strings.TrimSpace(req.Kind),
		Description:        req.Description,
		DueAt:              req.DueAt,
		CreatedBy:          createdBy,
		ConsultantID:       consultantID,
		Recipient:          recipient,
		CreatedAt:          now,
		ModifiedBy:         createdBy,
		ModifiedAt:         now,
	}

	if err := s.repo.Insert(ctx, s.db, &action); err != nil {
		return domain.FollowUpAction{}, err
	}

	return action, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateActionRequest) error {
	id, err := s.parseID(req.ID)
	if err != nil {
		return err
	}

	action, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if action == nil {
		return domain.ErrNotFound
	}
	if !action.EditableAt(s.clock.Now()) {
		return domain.ErrNotEditable
	}

	if req.Kind != nil {
		action.ActionKind = strings.TrimSpace(*req.Kind)
	}
	if req.Description != nil {
		action.Description = *req.Description
	}
	if req.DueAt != nil {
		action.DueAt = req.DueAt
	}
	if req.ConsultantID != nil {
		action.ConsultantID = *req.ConsultantID
	}
	if req.Recipient != nil {
		action.Recipient = strings.TrimSpace(*req.Recipient)
	}

	action.ModifiedBy = modifier(req.ModifiedBy)
	action.ModifiedAt = s.clock.Now()

	return s.repo.Update(ctx, s.db, action)
}

func (s *Service) Delete(ctx context.Context, req domain.DeleteActionRequest) error {
	id, err := s.parseID(req.ID)
	if err != nil {
		return err
	}

	action, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if action == nil {
		return domain.ErrNotFound
	}
	if !action.EditableAt(s.clock.Now()) {
		return domain.ErrNotEditable
	}

	return s.repo.Delete(ctx, s.db, id)
}

func (s *Service) CreateBatch(ctx context.Context, req domain.CreateBatchRequest) (domain.CreateBatchResponse, error) {
	externalID := strings.TrimSpace(req.CustomerID)
	internalID, err := domain.CustomerInternalID(externalID)
	if err != nil {
		return domain.CreateBatchResponse{}, err
	}
	if len(req.Invoices) == 0 {
		return domain.CreateBatchResponse{}, domain.ErrEmptyBatch
	}

	refs := make([]domain.InvoiceRef, 0, len(req.Invoices))
	for _, raw := range req.Invoices {
		ref, err := validateRef(raw)
		if err != nil {
			return domain.CreateBatchResponse{}, err
		}
		refs = append(refs, ref)
	}

	createdBy := strings.TrimSpace(req.CreatedBy)
	if createdBy == "" {
		createdBy = domain.SystemActor
	}

	now := s.clock.Now()
	batchID := s.genID.Generate()
	actions := make([]domain.FollowUpAction, 0, len(refs))
	for _, ref := range refs {
		actions = append(actions, domain.FollowUpAction{
			ID:                 s.genID.Generate(),
			CustomerExternalID: externalID,
			CustomerInternalID: internalID,
			InvoiceType:        ref.Type,
			InvoiceNumber:      ref.Number,
			CreatedBy:          createdBy,
			BatchID:            batchID,
			CreatedAt:          now,
			ModifiedBy:         createdBy,
			ModifiedAt:         now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range actions {
			if err := s.repo.Insert(ctx, tx, &actions[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.CreateBatchResponse{}, err
	}

	return domain.CreateBatchResponse{BatchID: batchID, Actions: actions}, nil
}

func (s *Service) FillBatch(ctx context.Context, req domain.FillBatchRequest) error {
	batchID, err := s.parseID(req.BatchID)
	if err != nil {
		return err
	}

	refs := make([]domain.InvoiceRef, 0, len(req.Refs))
	for _, raw := range req.Refs {
		ref, err := validateRef(raw)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}

	existing, err := s.repo.FindByBatch(ctx, s.db, batchID)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return domain.ErrNotFound
	}
	for _, action := range existing {
		if action.SentAt != nil {
			return domain.ErrNotEditable
		}
	}

	recipient := ""
	if req.ConsultantID != 0 {
		email, err := s.directory.ResolveEmail(ctx, req.ConsultantID)
		if err != nil {
			s.log.Warn("action.recipient.resolve_failed",
				zap.String("consultant_id", req.ConsultantID.String()),
				zap.Error(err),
			)
		}
		recipient = email
	}

	modifiedBy := modifier(req.ModifiedBy)
	now := s.clock.Now()
	kind := strings.TrimSpace(req.Kind)

	byRef := make(map[string]*domain.FollowUpAction, len(existing))
	for _, action := range existing {
		byRef[action.Ref().String()] = action
	}
	wanted := make(map[string]struct{}, len(refs))

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, ref := range refs {
			wanted[ref.String()] = struct{}{}

			if action, ok := byRef[ref.String()]; ok {
				action.ActionKind = kind
				action.Description = req.Description
				action.DueAt = req.DueAt
				if req.ConsultantID != 0 {
					action.ConsultantID = req.ConsultantID
				}
				if recipient != "" {
					action.Recipient = recipient
				}
				action.ModifiedBy = modifiedBy
				action.ModifiedAt = now
				if err := s.repo.Update(ctx, tx, action); err != nil {
					return err
				}
				continue
			}

			seed := existing[0]
			if err := s.repo.Insert(ctx, tx, &domain.FollowUpAction{
				ID:                 s.genID.Generate(),
				CustomerExternalID: seed.CustomerExternalID,
				CustomerInternalID: seed.CustomerInternalID,
				InvoiceType:        ref.Type,
				InvoiceNumber:      ref.Number,
				ActionKind:         kind,
				Description:        req.Description,
				DueAt:              req.DueAt,
				CreatedBy:          modifiedBy,
				ConsultantID:       req.ConsultantID,
				Recipient:          recipient,
				BatchID:            batchID,
				CreatedAt:          now,
				ModifiedBy:         modifiedBy,
				ModifiedAt:         now,
			}); err != nil {
				return err
			}
		}

		for key, action := range byRef {
			if _, ok := wanted[key]; ok {
				continue
			}
			if err := s.repo.Delete(ctx, tx, action.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) SelectDue(ctx context.Context, asOf time.Time, excluded []domain.DeliveryStatus) ([]domain.FollowUpAction, error) {
	items, err := s.repo.SelectDue(ctx, s.db, asOf, excluded)
	if err != nil {
		return nil, err
	}

	actions := make([]domain.FollowUpAction, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		actions = append(actions, *item)
	}
	return actions, nil
}

func (s *Service) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.ExpireBefore(ctx, s.db, cutoff, s.clock.Now())
}

func (s *Service) MarkOutcome(ctx context.Context, req domain.MarkOutcomeRequest) error {
	if len(req.IDs) == 0 {
		return nil
	}
	return s.repo.MarkOutcome(ctx, s.db, req.IDs, domain.OutcomePatch{
		Status:       req.Status,
		SentAt:       req.SentAt,
		Recipient:    strings.TrimSpace(req.Recipient),
		ConsultantID: req.ConsultantID,
		ModifiedBy:   domain.SystemActor,
		ModifiedAt:   s.clock.Now(),
	})
}

func (s *Service) Get(ctx context.Context, req domain.GetActionRequest) (domain.FollowUpAction, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.FollowUpAction{}, err
	}

	action, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.FollowUpAction{}, err
	}
	if action == nil {
		return domain.FollowUpAction{}, domain.ErrNotFound
	}

	return *action, nil
}

func (s *Service) List(ctx context.Context, req domain.ListActionsRequest) (domain.ListActionsResponse, error) {
	filter := domain.ListActionFilter{
		InvoiceType:   strings.TrimSpace(req.InvoiceType),
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		Status:        req.Status,
	}
	if customerID := strings.TrimSpace(req.CustomerID); customerID != "" {
		internalID, err := domain.CustomerInternalID(customerID)
		if err != nil {
			return domain.ListActionsResponse{}, err
		}
		filter.CustomerInternalID = internalID
	}
	if batchID := strings.TrimSpace(req.BatchID); batchID != "" {
		id, err := s.parseID(batchID)
		if err != nil {
			return domain.ListActionsResponse{}, err
		}
		filter.BatchID = id
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListActionsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(action *domain.FollowUpAction) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        action.ID.String(),
			CreatedAt: action.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	actions := make([]domain.FollowUpAction, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		actions = append(actions, *item)
	}

	resp := domain.ListActionsResponse{Actions: actions}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) FindSystemAction(ctx context.Context, req domain.FindSystemActionRequest) (*domain.FollowUpAction, error) {
	ref, err := validateRef(domain.InvoiceRef{Type: req.InvoiceType, Number: req.InvoiceNumber})
	if err != nil {
		return nil, err
	}
	if req.Level <= 0 {
		return nil, domain.ErrInvalidID
	}
	return s.repo.FindSystemAction(ctx, s.db, ref.Type, ref.Number, req.Level)
}

// resolveRecipient derives the delivery address at creation time so a
// later send does not depend on directory state. Misses stay empty; the
// dispatcher re-resolves at send time as a fallback.
func (s *Service) resolveRecipient(ctx context.Context, consultantID snowflake.ID, customerInternalID int64) (snowflake.ID, string) {
	if consultantID != 0 {
		email, err := s.directory.ResolveEmail(ctx, consultantID)
		if err != nil {
			s.log.Warn("action.recipient.resolve_failed",
				zap.String("consultant_id", consultantID.String()),
				zap.Error(err),
			)
			return consultantID, ""
		}
		return consultantID, email
	}

	consultant, err := s.directory.ResolveAssigned(ctx, customerInternalID)
	if err != nil {
		s.log.Warn("action.recipient.resolve_failed",
			zap.Int64("customer_id", customerInternalID),
			zap.Error(err),
		)
		return 0, ""
	}
	if consultant == nil {
		return 0, ""
	}
	return consultant.ID, consultant.Email
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func validateRef(raw domain.InvoiceRef) (domain.InvoiceRef, error) {
	ref := domain.InvoiceRef{
		Type:   strings.TrimSpace(raw.Type),
		Number: strings.TrimSpace(raw.Number),
	}
	if ref.Type == "" || ref.Number == "" {
		return domain.InvoiceRef{}, domain.ErrInvalidInvoiceRef
	}
	return ref, nil
}

func modifier(value string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return domain.SystemActor
}
