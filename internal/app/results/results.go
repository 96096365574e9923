// Package results turns a snapshot of ballots into the ranked per-option
// summary shown on the results page and API.
package results

import (
	"fmt"
	"sort"

	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
)

type accumulator struct {
	option domain.Option
	count  int64
	sum    int64
}

// Compute aggregates every rating of every ballot into count/sum/average per
// option and assigns dense ranks by descending average. It is a pure function:
// same inputs, same output, no mutation of either argument.
//
// Out-of-range ratings abort the whole computation with ErrRatingOutOfRange:
// a persisted rating outside [-2, +2] means the submission validator is broken
// and masking that with a clamp would hide the bug. Ratings referencing an
// option the poll does not have are skipped per entry and reported through
// UnknownEntries so operators can spot drift between configuration and data.
func Compute(pollID domain.PollID, options []domain.Option, ballots []domain.Ballot) (domain.ResultSummary, error) {
	accs := make([]accumulator, len(options))
	index := make(map[domain.OptionID]int, len(options))
	for i, opt := range options {
		accs[i] = accumulator{option: opt}
		index[opt.ID] = i
	}

	var unknown int64
	for _, ballot := range ballots {
		for optionID, rating := range ballot.Ratings {
			i, ok := index[optionID]
			if !ok {
				unknown++
				continue
			}
			if !rating.Valid() {
				return domain.ResultSummary{}, fmt.Errorf(
					"results: ballot %s option %s: %w: %d",
					ballot.ID, optionID, domain.ErrRatingOutOfRange, rating,
				)
			}
			accs[i].count++
			accs[i].sum += int64(rating)
		}
	}

	order := make([]int, len(accs))
	for i := range order {
		order[i] = i
	}
	// Unrated options sink below every rated one; among themselves they keep
	// display order, which the stable sort preserves.
	sort.SliceStable(order, func(a, b int) bool {
		return lessAverage(accs[order[b]], accs[order[a]])
	})

	summary := domain.ResultSummary{
		PollID:         pollID,
		BallotCount:    int64(len(ballots)),
		Options:        make([]domain.OptionResult, 0, len(accs)),
		UnknownEntries: unknown,
	}

	rank := 0
	for pos, i := range order {
		if pos == 0 || !sameAverage(accs[order[pos-1]], accs[i]) {
			// Dense ranking: ties share a rank, the next distinct average
			// gets rank+1 rather than skipping past the tied block.
			rank++
		}
		res := domain.OptionResult{
			OptionID: accs[i].option.ID,
			Label:    accs[i].option.Label,
			Count:    accs[i].count,
			Sum:      accs[i].sum,
			Rank:     rank,
		}
		if accs[i].count > 0 {
			avg := float64(accs[i].sum) / float64(accs[i].count)
			res.Average = &avg
		}
		summary.Options = append(summary.Options, res)
	}

	return summary, nil
}

// lessAverage orders a below b. Averages are compared as exact rationals via
// cross multiplication (a.sum/a.count < b.sum/b.count iff a.sum*b.count <
// b.sum*a.count, counts being positive), so floating point rounding can never
// split or invent a tie.
func lessAverage(a, b accumulator) bool {
	if a.count == 0 {
		return b.count > 0
	}
	if b.count == 0 {
		return false
	}
	return a.sum*b.count < b.sum*a.count
}

func sameAverage(a, b accumulator) bool {
	if a.count == 0 || b.count == 0 {
		return a.count == 0 && b.count == 0
	}
	return a.sum*b.count == b.sum*a.count
}
