package domain

import (
	"errors"
	"fmt"
	"time"
)

type (
	PollID   string
	OptionID string
	BallotID string
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicateBallot  = errors.New("ballot already submitted for this voter")
	ErrRatingOutOfRange = errors.New("rating out of range")
)

// Rating is a value-vote score on the fixed [-2, +2] scale.
type Rating int8

const (
	RatingMin Rating = -2
	RatingMax Rating = 2
)

// NewRating validates the scale boundary once, so an out-of-range value never
// enters the domain type.
func NewRating(value int) (Rating, error) {
	if value < int(RatingMin) || value > int(RatingMax) {
		return 0, fmt.Errorf("%w: %d", ErrRatingOutOfRange, value)
	}
	return Rating(value), nil
}

// Valid reports whether a rating loaded from storage still respects the scale.
func (r Rating) Valid() bool {
	return r >= RatingMin && r <= RatingMax
}

type Poll struct {
	ID          PollID    `gorm:"column:id;type:char(26);primaryKey" json:"id"`
	Title       string    `gorm:"column:title;type:text;not null" json:"title"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	OpensAt     time.Time `gorm:"column:opens_at;not null" json:"opens_at"`
	ClosesAt    time.Time `gorm:"column:closes_at;not null" json:"closes_at"`
	Options     []Option  `gorm:"foreignKey:PollID;constraint:OnDelete:CASCADE" json:"options"`
	Active      bool      `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

type Option struct {
	ID           OptionID  `gorm:"column:id;type:char(26);primaryKey" json:"id"`
	PollID       PollID    `gorm:"column:poll_id;type:char(26);not null;index" json:"poll_id"`
	Label        string    `gorm:"column:label;type:text;not null" json:"label"`
	DisplayOrder int       `gorm:"column:display_order;not null;default:0" json:"display_order"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Ballot is one voter's complete submission: a rating for every option of the
// poll. VoterKey exists only for duplicate prevention and never leaves the API.
type Ballot struct {
	ID        BallotID            `gorm:"column:id;type:char(26);primaryKey" json:"id"`
	PollID    PollID              `gorm:"column:poll_id;type:char(26);not null;index:idx_ballots_poll;uniqueIndex:idx_ballots_poll_voter,priority:1" json:"poll_id"`
	VoterName string              `gorm:"column:voter_name;type:text" json:"voter_name"`
	VoterKey  string              `gorm:"column:voter_key;type:text;not null;uniqueIndex:idx_ballots_poll_voter,priority:2" json:"-"`
	OriginIP  string              `gorm:"column:origin_ip;type:inet" json:"-"`
	UserAgent string              `gorm:"column:user_agent;type:text" json:"-"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	Ratings   map[OptionID]Rating `gorm:"-" json:"ratings"`
}

// BallotRating is the persisted row behind one entry of Ballot.Ratings.
type BallotRating struct {
	BallotID BallotID `gorm:"column:ballot_id;type:char(26);primaryKey"`
	OptionID OptionID `gorm:"column:option_id;type:char(26);primaryKey;index:idx_ballot_ratings_option"`
	Value    Rating   `gorm:"column:value;type:smallint;not null"`
}

// OptionResult carries the derived statistics for one option. Average is nil
// when no ballot rated the option; zero would misread "no data" as "neutral".
type OptionResult struct {
	OptionID OptionID `json:"option_id"`
	Label    string   `json:"label"`
	Count    int64    `json:"count"`
	Sum      int64    `json:"sum"`
	Average  *float64 `json:"average"`
	Rank     int      `json:"rank"`
}

// ResultSummary is recomputed on demand, never persisted.
type ResultSummary struct {
	PollID         PollID         `json:"poll_id"`
	BallotCount    int64          `json:"ballot_count"`
	Options        []OptionResult `json:"options"`
	UnknownEntries int64          `json:"unknown_entries"`
}

// Tally mirrors the SQL COUNT/SUM aggregate per option.
type Tally struct {
	Count int64
	Sum   int64
}

type HourlyCount struct {
	PollID PollID    `json:"poll_id"`
	Hour   time.Time `json:"hour"`
	Total  int64     `json:"total"`
}

func (Poll) TableName() string { return "polls" }

func (Option) TableName() string { return "options" }

func (Ballot) TableName() string { return "ballots" }

func (BallotRating) TableName() string { return "ballot_ratings" }
