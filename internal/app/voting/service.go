// Package voting implements the business rules of value voting: poll
// creation, ballot submission and result reads.
package voting

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/vlebourl/cardinal-vote-sub000/internal/app/results"
	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/ids"
)

var (
	ErrPollInvalid      = errors.New("invalid poll")
	ErrPollClosed       = errors.New("poll closed")
	ErrPollNotFound     = errors.New("poll not found")
	ErrUnknownOption    = errors.New("unknown option")
	ErrIncompleteBallot = errors.New("ballot must rate every option")
	ErrAlreadyVoted     = errors.New("voter already submitted a ballot")
)

// Service concentrates the voting rules and delegates persistence to the
// repositories and, in async mode, to the queue.
type Service struct {
	polls     domain.PollRepository
	options   domain.OptionRepository
	ballots   domain.BallotRepository
	counter   domain.Counter
	queue     domain.Queue
	antifraud domain.Antifraud
	clock     domain.Clock
	ids       *ids.Generator
}

func NewService(
	polls domain.PollRepository,
	options domain.OptionRepository,
	ballots domain.BallotRepository,
	counter domain.Counter,
	queue domain.Queue,
	antifraud domain.Antifraud,
	clock domain.Clock,
	idsGen *ids.Generator,
) *Service {
	if idsGen == nil {
		idsGen = ids.DefaultGenerator()
	}
	return &Service{
		polls:     polls,
		options:   options,
		ballots:   ballots,
		counter:   counter,
		queue:     queue,
		antifraud: antifraud,
		clock:     clock,
		ids:       idsGen,
	}
}

// CreatePoll validates and creates the poll and its options as one logical
// unit. Options are immutable after creation; ballots rely on that.
func (s *Service) CreatePoll(ctx context.Context, p domain.Poll, options []domain.Option) (domain.Poll, error) {
	if err := validatePoll(p, options); err != nil {
		return domain.Poll{}, err
	}
	now := s.clock.Now()

	p.ID = domain.PollID(s.ids.New())
	if p.OpensAt.IsZero() {
		p.OpensAt = now
	}
	if p.ClosesAt.IsZero() || p.ClosesAt.Before(p.OpensAt) {
		return domain.Poll{}, fmt.Errorf("%w: invalid voting window", ErrPollInvalid)
	}
	p.Active = true
	p.CreatedAt = now
	p.UpdatedAt = now

	created := make([]domain.Option, len(options))
	for i, opt := range options {
		opt.ID = domain.OptionID(s.ids.New())
		opt.PollID = p.ID
		opt.DisplayOrder = i
		opt.CreatedAt = now
		opt.UpdatedAt = now
		created[i] = opt
	}

	if err := s.polls.Create(ctx, p); err != nil {
		return domain.Poll{}, err
	}

	if err := s.options.BulkCreate(ctx, p.ID, created); err != nil {
		return domain.Poll{}, err
	}

	p.Options = created
	return p, nil
}

func (s *Service) ListOpen(ctx context.Context) ([]domain.Poll, error) {
	polls, err := s.polls.ListOpen(ctx)
	if err != nil {
		return nil, err
	}

	for i := range polls {
		options, oErr := s.options.ListByPoll(ctx, polls[i].ID)
		if oErr != nil {
			return nil, oErr
		}
		polls[i].Options = options
	}

	return polls, nil
}

// SubmitBallot applies all submission rules, then either publishes to the
// queue (async mode) or inserts directly. Completeness and the rating range
// are checked here, at the boundary; the aggregation engine can assume both.
func (s *Service) SubmitBallot(ctx context.Context, ballot domain.Ballot) error {
	if ballot.PollID == "" {
		return ErrPollNotFound
	}
	poll, err := s.polls.FindByID(ctx, ballot.PollID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrPollNotFound
		}
		return err
	}

	now := s.clock.Now()
	if !poll.Active || now.Before(poll.OpensAt) || now.After(poll.ClosesAt) {
		return ErrPollClosed
	}

	options, err := s.options.ListByPoll(ctx, ballot.PollID)
	if err != nil {
		return err
	}

	if err := validateRatings(ballot, options); err != nil {
		return err
	}

	if s.antifraud != nil {
		if err := s.antifraud.Check(ctx, ballot); err != nil {
			return err
		}
	}

	ballot.ID = domain.BallotID(s.ids.New())
	ballot.CreatedAt = now
	if ballot.VoterKey == "" {
		ballot.VoterKey = VoterKey(ballot)
	}

	if s.queue != nil {
		// Async mode only publishes; the worker persists and bumps counters.
		// A duplicate is then detected by the insert, not reported here.
		return s.queue.PublishBallot(ctx, ballot)
	}

	if err := s.ballots.Insert(ctx, ballot); err != nil {
		if errors.Is(err, domain.ErrDuplicateBallot) {
			return ErrAlreadyVoted
		}
		return err
	}

	if s.counter != nil {
		if err := bumpCounters(ctx, s.counter, ballot); err != nil {
			return err
		}
	}

	return nil
}

// Results reads a snapshot of ballots and options from storage and hands it
// to the aggregation engine. Postgres stays the source of truth; redis
// counters only serve the live totals on the web pages.
func (s *Service) Results(ctx context.Context, pollID domain.PollID) (domain.ResultSummary, error) {
	_, err := s.polls.FindByID(ctx, pollID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ResultSummary{}, ErrPollNotFound
		}
		return domain.ResultSummary{}, err
	}

	options, err := s.options.ListByPoll(ctx, pollID)
	if err != nil {
		return domain.ResultSummary{}, err
	}

	ballots, err := s.ballots.ListByPoll(ctx, pollID)
	if err != nil {
		return domain.ResultSummary{}, err
	}

	return results.Compute(pollID, options, ballots)
}

func (s *Service) BallotsByHour(ctx context.Context, pollID domain.PollID) ([]domain.HourlyCount, error) {
	_, err := s.polls.FindByID(ctx, pollID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, err
	}
	return s.ballots.CountByHour(ctx, pollID)
}

// VoterKey derives the duplicate-prevention key: the normalized voter name
// when one was given, otherwise a hash of IP and user agent so anonymous
// voters are deduplicated without storing their identity in the key.
func VoterKey(ballot domain.Ballot) string {
	if name := strings.ToLower(strings.TrimSpace(ballot.VoterName)); name != "" {
		return "name:" + name
	}
	sum := sha1.Sum([]byte(ballot.OriginIP + "|" + ballot.UserAgent))
	return "anon:" + hex.EncodeToString(sum[:])
}

func bumpCounters(ctx context.Context, counter domain.Counter, ballot domain.Ballot) error {
	if _, err := counter.Increment(ctx, CounterKeyBallots(ballot.PollID), 1); err != nil {
		return err
	}
	for optionID, rating := range ballot.Ratings {
		if _, err := counter.Increment(ctx, CounterKeyOptionCount(ballot.PollID, optionID), 1); err != nil {
			return err
		}
		if _, err := counter.Increment(ctx, CounterKeyOptionSum(ballot.PollID, optionID), int64(rating)); err != nil {
			return err
		}
	}
	return nil
}

func validatePoll(p domain.Poll, options []domain.Option) error {
	if p.Title == "" {
		return fmt.Errorf("%w: title required", ErrPollInvalid)
	}
	if len(options) < 2 {
		return fmt.Errorf("%w: at least two options", ErrPollInvalid)
	}
	for _, opt := range options {
		if opt.Label == "" {
			return fmt.Errorf("%w: option label required", ErrPollInvalid)
		}
	}
	return nil
}

// validateRatings rejects partial ballots at submission time, so the "every
// ballot rates every option" invariant holds before anything is persisted.
func validateRatings(ballot domain.Ballot, options []domain.Option) error {
	known := make(map[domain.OptionID]bool, len(options))
	for _, opt := range options {
		known[opt.ID] = true
		if _, ok := ballot.Ratings[opt.ID]; !ok {
			return fmt.Errorf("%w: missing rating for %s", ErrIncompleteBallot, opt.ID)
		}
	}
	for optionID, rating := range ballot.Ratings {
		if !known[optionID] {
			return fmt.Errorf("%w: %s", ErrUnknownOption, optionID)
		}
		if !rating.Valid() {
			return fmt.Errorf("%w: %d for %s", domain.ErrRatingOutOfRange, rating, optionID)
		}
	}
	return nil
}
