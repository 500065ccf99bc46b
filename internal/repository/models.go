package repository

import (
	"time"

	"github.com/jobalert/notifier/internal/domain"
)

// StatusModel is the persistence model for the delivery_statuses table.
// The id column is text rather than uuid: broker messages may carry any
// caller-supplied id and a cast error on the primary key would poison
// every status write for that message.
type StatusModel struct {
	MessageID         string         `gorm:"type:varchar(255);primaryKey;column:message_id"`
	Status            domain.Status  `gorm:"type:varchar(20);not null"`
	Type              domain.Channel `gorm:"type:varchar(10);not null"`
	Recipient         string         `gorm:"type:varchar(255);not null"`
	Error             *string        `gorm:"type:text"`
	ProviderMessageID *string        `gorm:"type:varchar(255)"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (StatusModel) TableName() string {
	return "delivery_statuses"
}

func statusModelFromDomain(r *domain.StatusRecord) *StatusModel {
	if r == nil {
		return nil
	}

	return &StatusModel{
		MessageID:         r.MessageID,
		Status:            r.Status,
		Type:              r.Type,
		Recipient:         r.Recipient,
		Error:             r.Error,
		ProviderMessageID: r.ProviderMessageID,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func statusModelToDomain(m *StatusModel) *domain.StatusRecord {
	if m == nil {
		return nil
	}

	return &domain.StatusRecord{
		MessageID:         m.MessageID,
		Status:            m.Status,
		Type:              m.Type,
		Recipient:         m.Recipient,
		Error:             m.Error,
		ProviderMessageID: m.ProviderMessageID,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}
