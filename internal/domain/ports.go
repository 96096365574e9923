package domain

import (
	"context"
	"time"
)

type PollRepository interface {
	Create(ctx context.Context, p Poll) error
	Update(ctx context.Context, p Poll) error
	FindByID(ctx context.Context, id PollID) (Poll, error)
	ListOpen(ctx context.Context) ([]Poll, error)
}

type OptionRepository interface {
	BulkCreate(ctx context.Context, pollID PollID, options []Option) error
	ListByPoll(ctx context.Context, pollID PollID) ([]Option, error)
}

// BallotRepository persists complete ballots. Insert is atomic: either the
// ballot and all its ratings land, or nothing does, and a second ballot for
// the same (poll, voter key) pair fails with ErrDuplicateBallot.
type BallotRepository interface {
	Insert(ctx context.Context, ballot Ballot) error
	ListByPoll(ctx context.Context, pollID PollID) ([]Ballot, error)
	CountByPoll(ctx context.Context, pollID PollID) (int64, error)
	TallyByOption(ctx context.Context, pollID PollID) (map[OptionID]Tally, error)
	CountByHour(ctx context.Context, pollID PollID) ([]HourlyCount, error)
}

type Counter interface {
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	GetMany(ctx context.Context, keys []string) (map[string]int64, error)
}

type Queue interface {
	PublishBallot(ctx context.Context, ballot Ballot) error
	ConsumeBallots(ctx context.Context, handler func(context.Context, Ballot) error) error
}

type Antifraud interface {
	Check(ctx context.Context, ballot Ballot) error
}

type Clock interface {
	Now() time.Time
}

type VotingService interface {
	CreatePoll(ctx context.Context, poll Poll, options []Option) (Poll, error)
	ListOpen(ctx context.Context) ([]Poll, error)
	SubmitBallot(ctx context.Context, ballot Ballot) error
	Results(ctx context.Context, id PollID) (ResultSummary, error)
	BallotsByHour(ctx context.Context, id PollID) ([]HourlyCount, error)
}
