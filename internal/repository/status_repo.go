package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jobalert/notifier/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListParams struct {
	Status   *domain.Status
	Channel  *domain.Channel
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// StatusRepository persists the per-message delivery status trail. Updates
// are key-based upserts: the intake process creates rows, the worker
// transitions them, and neither holds in-memory state about the other.
type StatusRepository interface {
	Create(ctx context.Context, record *domain.StatusRecord) error
	GetByID(ctx context.Context, messageID string) (*domain.StatusRecord, error)
	List(ctx context.Context, params ListParams) ([]domain.StatusRecord, int64, error)
	UpdateStatus(ctx context.Context, messageID string, status domain.Status, errText string) error
	SetProviderMessageID(ctx context.Context, messageID string, providerMsgID string) error
}

type GormStatusRepo struct {
	db *gorm.DB
}

func NewGormStatusRepo(db *gorm.DB) *GormStatusRepo {
	return &GormStatusRepo{db: db}
}

func (r *GormStatusRepo) Create(ctx context.Context, record *domain.StatusRecord) error {
	model := statusModelFromDomain(record)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "type", "recipient", "updated_at"}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}
	if record != nil {
		*record = *statusModelToDomain(model)
	}
	return nil
}

func (r *GormStatusRepo) GetByID(ctx context.Context, messageID string) (*domain.StatusRecord, error) {
	var model StatusModel
	err := r.db.WithContext(ctx).First(&model, "message_id = ?", messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return statusModelToDomain(&model), nil
}

func (r *GormStatusRepo) List(ctx context.Context, params ListParams) ([]domain.StatusRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&StatusModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Channel != nil {
		query = query.Where("type = ?", *params.Channel)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []StatusModel
	err := query.
		Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]domain.StatusRecord, 0, len(models))
	for i := range models {
		records = append(records, *statusModelToDomain(&models[i]))
	}

	return records, total, nil
}

// UpdateStatus overwrites the status for a message id, stamping updated_at.
// An empty errText clears the error column so stale failure text never
// survives a later transition.
func (r *GormStatusRepo) UpdateStatus(ctx context.Context, messageID string, status domain.Status, errText string) error {
	values := map[string]any{
		"status": status,
		"error":  nil,
	}
	if errText != "" {
		values["error"] = errText
	}

	result := r.db.WithContext(ctx).
		Model(&StatusModel{}).
		Where("message_id = ?", messageID).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}

	// The row may have been created by another process, or not at all if the
	// intake write raced; upsert semantics mean we create it here.
	if result.RowsAffected == 0 {
		model := &StatusModel{
			MessageID: messageID,
			Status:    status,
		}
		if errText != "" {
			model.Error = &errText
		}
		return r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "message_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"status", "error", "updated_at"}),
			}).
			Create(model).Error
	}

	return nil
}

func (r *GormStatusRepo) SetProviderMessageID(ctx context.Context, messageID string, providerMsgID string) error {
	return r.db.WithContext(ctx).
		Model(&StatusModel{}).
		Where("message_id = ?", messageID).
		Update("provider_message_id", providerMsgID).Error
}
