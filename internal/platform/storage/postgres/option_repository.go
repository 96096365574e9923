package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
)

// OptionRepository persists the options attached to a poll using GORM.
type OptionRepository struct {
	db *gorm.DB
}

func NewOptionRepository(db *gorm.DB) *OptionRepository {
	return &OptionRepository{db: db}
}

type optionModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	PollID       string    `gorm:"column:poll_id;index"`
	Label        string    `gorm:"column:label"`
	DisplayOrder int       `gorm:"column:display_order"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (optionModel) TableName() string {
	return "options"
}

func (m optionModel) toDomain() domain.Option {
	return domain.Option{
		ID:           domain.OptionID(m.ID),
		PollID:       domain.PollID(m.PollID),
		Label:        m.Label,
		DisplayOrder: m.DisplayOrder,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func fromDomainOption(o domain.Option) optionModel {
	return optionModel{
		ID:           string(o.ID),
		PollID:       string(o.PollID),
		Label:        o.Label,
		DisplayOrder: o.DisplayOrder,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func (r *OptionRepository) BulkCreate(ctx context.Context, pollID domain.PollID, options []domain.Option) error {
	if len(options) == 0 {
		return nil
	}

	// A single Create with the full slice avoids one round-trip per option.
	models := make([]optionModel, len(options))
	for i, opt := range options {
		if opt.PollID == "" {
			opt.PollID = pollID
		}
		models[i] = fromDomainOption(opt)
	}

	if err := r.db.WithContext(ctx).Create(&models).Error; err != nil {
		return fmt.Errorf("gorm option: bulk create: %w", err)
	}
	return nil
}

func (r *OptionRepository) ListByPoll(ctx context.Context, pollID domain.PollID) ([]domain.Option, error) {
	var models []optionModel
	if err := r.db.WithContext(ctx).
		// Display order drives both the vote form and the results fallback
		// order for unrated options.
		Where("poll_id = ?", pollID).
		Order("display_order ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("gorm option: list: %w", err)
	}

	result := make([]domain.Option, len(models))
	for i, model := range models {
		result[i] = model.toDomain()
	}
	return result, nil
}

var _ domain.OptionRepository = (*OptionRepository)(nil)
