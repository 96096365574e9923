// Package worker contains the async processing of ballots coming off the
// Redis queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vlebourl/cardinal-vote-sub000/internal/app/voting"
	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/metrics"
)

// BallotProcessor writes queued ballots to the repository and keeps the redis
// counters and metrics in step.
type BallotProcessor struct {
	repo    domain.BallotRepository
	counter domain.Counter
	clock   domain.Clock
}

func NewBallotProcessor(repo domain.BallotRepository, counter domain.Counter, clock domain.Clock) *BallotProcessor {
	return &BallotProcessor{
		repo:    repo,
		counter: counter,
		clock:   clock,
	}
}

func (p *BallotProcessor) Process(ctx context.Context, ballot domain.Ballot) error {
	start := time.Now()

	// A ballot that arrived off the queue without a timestamp gets stamped on
	// arrival at the worker.
	if ballot.CreatedAt.IsZero() {
		ballot.CreatedAt = p.clock.Now()
	}
	if ballot.VoterKey == "" {
		ballot.VoterKey = voting.VoterKey(ballot)
	}

	if err := p.repo.Insert(ctx, ballot); err != nil {
		if errors.Is(err, domain.ErrDuplicateBallot) {
			// The unique index already protects the count invariant; a
			// duplicate off the queue is dropped, not retried.
			metrics.IncBallotDuplicate()
			return nil
		}
		return fmt.Errorf("worker: insert ballot %s: %w", ballot.ID, err)
	}

	if p.counter == nil {
		metrics.IncBallotProcessed()
		metrics.ObserveProcessingDuration(time.Since(start).Seconds())
		return nil
	}

	if _, err := p.counter.Increment(ctx, voting.CounterKeyBallots(ballot.PollID), 1); err != nil {
		return fmt.Errorf("worker: increment ballot counter %s: %w", ballot.PollID, err)
	}

	for optionID, rating := range ballot.Ratings {
		if _, err := p.counter.Increment(ctx, voting.CounterKeyOptionCount(ballot.PollID, optionID), 1); err != nil {
			return fmt.Errorf("worker: increment option count %s/%s: %w", ballot.PollID, optionID, err)
		}
		if _, err := p.counter.Increment(ctx, voting.CounterKeyOptionSum(ballot.PollID, optionID), int64(rating)); err != nil {
			return fmt.Errorf("worker: increment option sum %s/%s: %w", ballot.PollID, optionID, err)
		}
	}

	metrics.IncBallotProcessed()
	metrics.ObserveProcessingDuration(time.Since(start).Seconds())

	return nil
}
