package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
)

// PollRepository maps the poll aggregate to GORM tables.
type PollRepository struct {
	db *gorm.DB
}

func NewPollRepository(db *gorm.DB) *PollRepository {
	return &PollRepository{db: db}
}

type pollModel struct {
	ID          string        `gorm:"column:id;primaryKey"`
	Title       string        `gorm:"column:title"`
	Description string        `gorm:"column:description"`
	OpensAt     time.Time     `gorm:"column:opens_at"`
	ClosesAt    time.Time     `gorm:"column:closes_at"`
	Active      bool          `gorm:"column:active"`
	CreatedAt   time.Time     `gorm:"column:created_at"`
	UpdatedAt   time.Time     `gorm:"column:updated_at"`
	Options     []optionModel `gorm:"foreignKey:PollID;references:ID"`
}

func (pollModel) TableName() string {
	return "polls"
}

func (m pollModel) toDomain(includeOptions bool) domain.Poll {
	p := domain.Poll{
		ID:          domain.PollID(m.ID),
		Title:       m.Title,
		Description: m.Description,
		OpensAt:     m.OpensAt,
		ClosesAt:    m.ClosesAt,
		Active:      m.Active,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}

	if includeOptions {
		options := make([]domain.Option, len(m.Options))
		for i, opt := range m.Options {
			options[i] = opt.toDomain()
		}
		p.Options = options
	}

	return p
}

func fromDomainPoll(p domain.Poll) pollModel {
	model := pollModel{
		ID:          string(p.ID),
		Title:       p.Title,
		Description: p.Description,
		OpensAt:     p.OpensAt,
		ClosesAt:    p.ClosesAt,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}

	if len(p.Options) > 0 {
		model.Options = make([]optionModel, len(p.Options))
		for i, opt := range p.Options {
			model.Options[i] = fromDomainOption(opt)
		}
	}

	return model
}

func (r *PollRepository) Create(ctx context.Context, p domain.Poll) error {
	model := fromDomainPoll(p)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("gorm poll: insert: %w", err)
	}
	return nil
}

func (r *PollRepository) Update(ctx context.Context, p domain.Poll) error {
	model := fromDomainPoll(p)
	if err := r.db.WithContext(ctx).Model(&pollModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]any{
			"title":       model.Title,
			"description": model.Description,
			"opens_at":    model.OpensAt,
			"closes_at":   model.ClosesAt,
			"active":      model.Active,
			"updated_at":  model.UpdatedAt,
		}).Error; err != nil {
		return fmt.Errorf("gorm poll: update: %w", err)
	}
	return nil
}

func (r *PollRepository) FindByID(ctx context.Context, id domain.PollID) (domain.Poll, error) {
	var model pollModel
	if err := r.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC")
		}).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Poll{}, domain.ErrNotFound
		}
		return domain.Poll{}, fmt.Errorf("gorm poll: find by id: %w", err)
	}
	return model.toDomain(true), nil
}

func (r *PollRepository) ListOpen(ctx context.Context) ([]domain.Poll, error) {
	var models []pollModel
	if err := r.db.WithContext(ctx).
		// Same rule the domain layer applies when accepting ballots.
		Where("active = ? AND opens_at <= NOW() AND closes_at >= NOW()", true).
		Order("opens_at ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("gorm poll: list open: %w", err)
	}

	result := make([]domain.Poll, len(models))
	for i, model := range models {
		result[i] = model.toDomain(false)
	}
	return result, nil
}

var _ domain.PollRepository = (*PollRepository)(nil)
