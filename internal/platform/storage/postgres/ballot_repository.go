package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
)

// BallotRepository stores ballots and their ratings and exposes the aggregate
// queries the service and the worker need.
type BallotRepository struct {
	db *gorm.DB
}

func NewBallotRepository(db *gorm.DB) *BallotRepository {
	return &BallotRepository{db: db}
}

type ballotModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	PollID    string    `gorm:"column:poll_id;index;uniqueIndex:idx_ballots_poll_voter"`
	VoterName string    `gorm:"column:voter_name"`
	VoterKey  string    `gorm:"column:voter_key;uniqueIndex:idx_ballots_poll_voter"`
	OriginIP  string    `gorm:"column:origin_ip"`
	UserAgent string    `gorm:"column:user_agent"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (ballotModel) TableName() string {
	return "ballots"
}

type ballotRatingModel struct {
	BallotID string `gorm:"column:ballot_id;primaryKey"`
	OptionID string `gorm:"column:option_id;primaryKey"`
	Value    int16  `gorm:"column:value"`
}

func (ballotRatingModel) TableName() string {
	return "ballot_ratings"
}

func fromDomainBallot(b domain.Ballot) (ballotModel, []ballotRatingModel) {
	model := ballotModel{
		ID:        string(b.ID),
		PollID:    string(b.PollID),
		VoterName: b.VoterName,
		VoterKey:  b.VoterKey,
		OriginIP:  b.OriginIP,
		UserAgent: b.UserAgent,
		CreatedAt: b.CreatedAt,
	}

	ratings := make([]ballotRatingModel, 0, len(b.Ratings))
	for optionID, rating := range b.Ratings {
		ratings = append(ratings, ballotRatingModel{
			BallotID: model.ID,
			OptionID: string(optionID),
			Value:    int16(rating),
		})
	}

	return model, ratings
}

// Insert writes the ballot row and all its rating rows in one transaction, so
// a ballot is either fully visible or absent. The (poll_id, voter_key) unique
// index makes concurrent duplicate submissions lose at commit time; there is
// no check-then-insert window.
func (r *BallotRepository) Insert(ctx context.Context, ballot domain.Ballot) error {
	model, ratings := fromDomainBallot(ballot)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if len(ratings) > 0 {
			if err := tx.Create(&ratings).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateBallot
		}
		return fmt.Errorf("gorm ballot: insert: %w", err)
	}
	return nil
}

func (r *BallotRepository) ListByPoll(ctx context.Context, pollID domain.PollID) ([]domain.Ballot, error) {
	var models []ballotModel
	if err := r.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("gorm ballot: list: %w", err)
	}

	if len(models) == 0 {
		return nil, nil
	}

	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}

	var ratingRows []ballotRatingModel
	if err := r.db.WithContext(ctx).
		Where("ballot_id IN ?", ids).
		Find(&ratingRows).Error; err != nil {
		return nil, fmt.Errorf("gorm ballot: list ratings: %w", err)
	}

	ratingsByBallot := make(map[string]map[domain.OptionID]domain.Rating, len(models))
	for _, row := range ratingRows {
		if ratingsByBallot[row.BallotID] == nil {
			ratingsByBallot[row.BallotID] = make(map[domain.OptionID]domain.Rating)
		}
		ratingsByBallot[row.BallotID][domain.OptionID(row.OptionID)] = domain.Rating(row.Value)
	}

	ballots := make([]domain.Ballot, len(models))
	for i, m := range models {
		ballots[i] = domain.Ballot{
			ID:        domain.BallotID(m.ID),
			PollID:    domain.PollID(m.PollID),
			VoterName: m.VoterName,
			VoterKey:  m.VoterKey,
			OriginIP:  m.OriginIP,
			UserAgent: m.UserAgent,
			CreatedAt: m.CreatedAt,
			Ratings:   ratingsByBallot[m.ID],
		}
	}
	return ballots, nil
}

func (r *BallotRepository) CountByPoll(ctx context.Context, pollID domain.PollID) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&ballotModel{}).
		Where("poll_id = ?", pollID).
		Count(&total).Error; err != nil {
		return 0, fmt.Errorf("gorm ballot: count: %w", err)
	}
	return total, nil
}

// TallyByOption is the SQL twin of the in-memory aggregation: COUNT and SUM
// per option, grouped in the database. Used for reconciling redis counters
// and by the operator view.
func (r *BallotRepository) TallyByOption(ctx context.Context, pollID domain.PollID) (map[domain.OptionID]domain.Tally, error) {
	type row struct {
		OptionID string
		Count    int64
		Sum      int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&ballotRatingModel{}).
		Select("ballot_ratings.option_id AS option_id, COUNT(*) AS count, COALESCE(SUM(ballot_ratings.value), 0) AS sum").
		Joins("JOIN ballots ON ballots.id = ballot_ratings.ballot_id").
		Where("ballots.poll_id = ?", pollID).
		Group("ballot_ratings.option_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("gorm ballot: tally by option: %w", err)
	}

	tallies := make(map[domain.OptionID]domain.Tally, len(rows))
	for _, item := range rows {
		tallies[domain.OptionID(item.OptionID)] = domain.Tally{Count: item.Count, Sum: item.Sum}
	}
	return tallies, nil
}

func (r *BallotRepository) CountByHour(ctx context.Context, pollID domain.PollID) ([]domain.HourlyCount, error) {
	type row struct {
		Hour  time.Time
		Total int64
	}

	var rows []row
	if err := r.db.WithContext(ctx).
		// Raw SQL leans on Postgres date_trunc instead of bucketing by hand.
		Raw(`
            SELECT date_trunc('hour', created_at) AS hour, COUNT(*) AS total
            FROM ballots
            WHERE poll_id = ?
            GROUP BY hour
            ORDER BY hour ASC
        `, pollID).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("gorm ballot: count by hour: %w", err)
	}

	counts := make([]domain.HourlyCount, len(rows))
	for i, item := range rows {
		counts[i] = domain.HourlyCount{
			PollID: pollID,
			Hour:   item.Hour,
			Total:  item.Total,
		}
	}
	return counts, nil
}

var _ domain.BallotRepository = (*BallotRepository)(nil)
