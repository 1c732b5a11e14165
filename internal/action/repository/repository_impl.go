package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/collecta/internal/action/domain"
	"github.com/smallbiznis/collecta/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, action *domain.FollowUpAction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO follow_up_actions (
			id, customer_external_id, customer_internal_id, invoice_type, invoice_number,
			action_kind, description, due_at, created_by, consultant_id, recipient,
			delivery_status, sent_at, batch_id, created_at, modified_by, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action.ID,
		action.CustomerExternalID,
		action.CustomerInternalID,
		action.InvoiceType,
		action.InvoiceNumber,
		action.ActionKind,
		action.Description,
		action.DueAt,
		action.CreatedBy,
		action.ConsultantID,
		action.Recipient,
		string(action.DeliveryStatus),
		action.SentAt,
		action.BatchID,
		action.CreatedAt,
		action.ModifiedBy,
		action.ModifiedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, action *domain.FollowUpAction) error {
	return db.WithContext(ctx).Exec(
		`UPDATE follow_up_actions
		 SET action_kind = ?, description = ?, due_at = ?, consultant_id = ?,
		     recipient = ?, modified_by = ?, modified_at = ?
		 WHERE id = ?`,
		action.ActionKind,
		action.Description,
		action.DueAt,
		action.ConsultantID,
		action.Recipient,
		action.ModifiedBy,
		action.ModifiedAt,
		action.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM follow_up_actions WHERE id = ?`, id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.FollowUpAction, error) {
	var action domain.FollowUpAction
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM follow_up_actions WHERE id = ?`, id,
	).Scan(&action).Error
	if err != nil {
		return nil, err
	}
	if action.ID == 0 {
		return nil, nil
	}
	return &action, nil
}

func (r *repo) FindByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*domain.FollowUpAction, error) {
	var actions []*domain.FollowUpAction
	err := db.WithContext(ctx).
		Model(&domain.FollowUpAction{}).
		Where("batch_id = ?", batchID).
		Order("id asc").
		Find(&actions).Error
	if err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListActionFilter, page pagination.Pagination) ([]*domain.FollowUpAction, error) {
	var actions []*domain.FollowUpAction
	stmt := db.WithContext(ctx).Model(&domain.FollowUpAction{})
	if filter.CustomerInternalID != 0 {
		stmt = stmt.Where("customer_internal_id = ?", filter.CustomerInternalID)
	}
	if filter.InvoiceType != "" {
		stmt = stmt.Where("invoice_type = ?", filter.InvoiceType)
	}
	if filter.InvoiceNumber != "" {
		stmt = stmt.Where("invoice_number = ?", filter.InvoiceNumber)
	}
	if filter.BatchID != 0 {
		stmt = stmt.Where("batch_id = ?", filter.BatchID)
	}
	if filter.Status != nil {
		if *filter.Status == domain.StatusPending {
			stmt = stmt.Where("(delivery_status IS NULL OR delivery_status = '')")
		} else {
			stmt = stmt.Where("delivery_status = ?", string(*filter.Status))
		}
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		createdAt, err := time.Parse(time.RFC3339, cursor.CreatedAt)
		if err != nil {
			return nil, err
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("created_at < ? OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
	}
	limit := page.PageSize
	if limit <= 0 {
		limit = 50
	}
	err := stmt.
		Order("created_at desc, id desc").
		Limit(limit + 1).
		Find(&actions).Error
	if err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *repo) SelectDue(ctx context.Context, db *gorm.DB, asOf time.Time, excluded []domain.DeliveryStatus) ([]*domain.FollowUpAction, error) {
	var actions []*domain.FollowUpAction
	stmt := db.WithContext(ctx).
		Model(&domain.FollowUpAction{}).
		Where("due_at IS NOT NULL AND due_at <= ?", asOf).
		Where("sent_at IS NULL").
		Where("action_kind IS NOT NULL AND action_kind <> ''")
	if len(excluded) > 0 {
		statuses := make([]string, 0, len(excluded))
		for _, status := range excluded {
			statuses = append(statuses, string(status))
		}
		stmt = stmt.Where("(delivery_status IS NULL OR delivery_status = '' OR delivery_status NOT IN ?)", statuses)
	}
	err := stmt.
		Order("due_at asc, id asc").
		Find(&actions).Error
	if err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *repo) ExpireBefore(ctx context.Context, db *gorm.DB, cutoff, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE follow_up_actions
		 SET delivery_status = ?, sent_at = ?, modified_by = ?, modified_at = ?
		 WHERE sent_at IS NULL
		   AND action_kind IS NOT NULL AND action_kind <> ''
		   AND due_at IS NOT NULL AND due_at < ?`,
		string(domain.StatusExpired),
		now,
		domain.SystemActor,
		now,
		cutoff,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkOutcome(ctx context.Context, db *gorm.DB, ids []snowflake.ID, patch domain.OutcomePatch) error {
	if len(ids) == 0 {
		return nil
	}
	updates := map[string]interface{}{
		"delivery_status": string(patch.Status),
		"modified_by":     patch.ModifiedBy,
		"modified_at":     patch.ModifiedAt,
	}
	if patch.SentAt != nil {
		updates["sent_at"] = *patch.SentAt
	}
	if patch.Recipient != "" {
		updates["recipient"] = patch.Recipient
	}
	if patch.ConsultantID != 0 {
		updates["consultant_id"] = patch.ConsultantID
	}
	return db.WithContext(ctx).
		Model(&domain.FollowUpAction{}).
		Where("id IN ?", ids).
		Updates(updates).Error
}

func (r *repo) FindSystemAction(ctx context.Context, db *gorm.DB, invoiceType, invoiceNumber string, level int) (*domain.FollowUpAction, error) {
	var action domain.FollowUpAction
	pattern := "%level " + strconv.Itoa(level) + "%"
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM follow_up_actions
		 WHERE created_by = ? AND action_kind = ?
		   AND invoice_type = ? AND invoice_number = ?
		   AND description LIKE ?
		 ORDER BY id ASC
		 LIMIT 1`,
		domain.SystemActor,
		domain.SystemKind,
		invoiceType,
		invoiceNumber,
		pattern,
	).Scan(&action).Error
	if err != nil {
		return nil, err
	}
	if action.ID == 0 {
		return nil, nil
	}
	return &action, nil
}
