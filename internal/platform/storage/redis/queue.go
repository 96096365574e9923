// Package redis implements the ballot queue and the counters on top of Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
)

// queuedBallot is the wire form of a ballot on the queue. Ratings travel as
// plain ints keyed by option id; VoterKey must survive the trip because the
// uniqueness check happens at insert time in the worker.
type queuedBallot struct {
	ID        string         `json:"id"`
	PollID    string         `json:"poll_id"`
	VoterName string         `json:"voter_name"`
	VoterKey  string         `json:"voter_key"`
	OriginIP  string         `json:"origin_ip"`
	UserAgent string         `json:"user_agent"`
	CreatedAt time.Time      `json:"created_at"`
	Ratings   map[string]int `json:"ratings"`
}

func toQueued(b domain.Ballot) queuedBallot {
	q := queuedBallot{
		ID:        string(b.ID),
		PollID:    string(b.PollID),
		VoterName: b.VoterName,
		VoterKey:  b.VoterKey,
		OriginIP:  b.OriginIP,
		UserAgent: b.UserAgent,
		CreatedAt: b.CreatedAt,
		Ratings:   make(map[string]int, len(b.Ratings)),
	}
	for optionID, rating := range b.Ratings {
		q.Ratings[string(optionID)] = int(rating)
	}
	return q
}

func (q queuedBallot) toDomain() domain.Ballot {
	b := domain.Ballot{
		ID:        domain.BallotID(q.ID),
		PollID:    domain.PollID(q.PollID),
		VoterName: q.VoterName,
		VoterKey:  q.VoterKey,
		OriginIP:  q.OriginIP,
		UserAgent: q.UserAgent,
		CreatedAt: q.CreatedAt,
		Ratings:   make(map[domain.OptionID]domain.Rating, len(q.Ratings)),
	}
	for optionID, value := range q.Ratings {
		b.Ratings[domain.OptionID(optionID)] = domain.Rating(value)
	}
	return b
}

// Queue uses Redis lists to publish and consume ballots.
type Queue struct {
	client *redis.Client
	key    string
}

func NewQueue(client *redis.Client, key string) *Queue {
	return &Queue{
		client: client,
		key:    key,
	}
}

func (q *Queue) PublishBallot(ctx context.Context, ballot domain.Ballot) error {
	payload, err := json.Marshal(toQueued(ballot))
	if err != nil {
		return fmt.Errorf("redis queue: marshal ballot: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("redis queue: push ballot: %w", err)
	}
	return nil
}

func (q *Queue) ConsumeBallots(ctx context.Context, handler func(context.Context, domain.Ballot) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// BRPOP blocks with a short timeout so the context stays honored.
		res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("redis queue: pop ballot: %w", err)
		}

		if len(res) != 2 {
			continue
		}

		var queued queuedBallot
		if err := json.Unmarshal([]byte(res[1]), &queued); err != nil {
			return fmt.Errorf("redis queue: invalid payload: %w", err)
		}

		// The handler decides whether the ballot sticks; an error stops the
		// consume loop.
		if err := handler(ctx, queued.toDomain()); err != nil {
			return err
		}
	}
}

var _ domain.Queue = (*Queue)(nil)
