package results

import (
	"errors"
	"reflect"
	"testing"

	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
)

func threeOptions() []domain.Option {
	return []domain.Option{
		{ID: "opt-a", PollID: "poll-1", Label: "A", DisplayOrder: 0},
		{ID: "opt-b", PollID: "poll-1", Label: "B", DisplayOrder: 1},
		{ID: "opt-c", PollID: "poll-1", Label: "C", DisplayOrder: 2},
	}
}

func ballot(id string, ratings map[domain.OptionID]domain.Rating) domain.Ballot {
	return domain.Ballot{ID: domain.BallotID(id), PollID: "poll-1", Ratings: ratings}
}

func findOption(t *testing.T, summary domain.ResultSummary, id domain.OptionID) domain.OptionResult {
	t.Helper()
	for _, res := range summary.Options {
		if res.OptionID == id {
			return res
		}
	}
	t.Fatalf("option %s missing from summary", id)
	return domain.OptionResult{}
}

func TestComputeRankedSummary(t *testing.T) {
	options := threeOptions()
	ballots := []domain.Ballot{
		ballot("b1", map[domain.OptionID]domain.Rating{"opt-a": 2, "opt-b": 0, "opt-c": -2}),
		ballot("b2", map[domain.OptionID]domain.Rating{"opt-a": 2, "opt-b": 1, "opt-c": -1}),
	}

	summary, err := Compute("poll-1", options, ballots)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.BallotCount != 2 {
		t.Fatalf("expected 2 ballots, got %d", summary.BallotCount)
	}
	if summary.UnknownEntries != 0 {
		t.Fatalf("expected no unknown entries, got %d", summary.UnknownEntries)
	}

	a := findOption(t, summary, "opt-a")
	if a.Count != 2 || a.Sum != 4 || a.Average == nil || *a.Average != 2.0 || a.Rank != 1 {
		t.Fatalf("option A stats wrong: %+v", a)
	}
	b := findOption(t, summary, "opt-b")
	if b.Count != 2 || b.Sum != 1 || b.Average == nil || *b.Average != 0.5 || b.Rank != 2 {
		t.Fatalf("option B stats wrong: %+v", b)
	}
	c := findOption(t, summary, "opt-c")
	if c.Count != 2 || c.Sum != -3 || c.Average == nil || *c.Average != -1.5 || c.Rank != 3 {
		t.Fatalf("option C stats wrong: %+v", c)
	}

	// Summary comes back in rank order.
	if summary.Options[0].OptionID != "opt-a" || summary.Options[2].OptionID != "opt-c" {
		t.Fatalf("summary not sorted by rank: %+v", summary.Options)
	}
}

func TestComputeEmptyBallots(t *testing.T) {
	summary, err := Compute("poll-1", threeOptions(), nil)
	if err != nil {
		t.Fatalf("empty ballot set must not be an error, got: %v", err)
	}

	if summary.BallotCount != 0 {
		t.Fatalf("expected 0 ballots, got %d", summary.BallotCount)
	}
	for _, res := range summary.Options {
		if res.Count != 0 {
			t.Fatalf("option %s should have count 0, got %d", res.OptionID, res.Count)
		}
		if res.Average != nil {
			t.Fatalf("option %s should have nil average with no data, got %v", res.OptionID, *res.Average)
		}
		if res.Rank != 1 {
			t.Fatalf("all options should tie at rank 1 with no data, option %s got %d", res.OptionID, res.Rank)
		}
	}
	// Unrated options fall back to display order.
	if summary.Options[0].OptionID != "opt-a" || summary.Options[1].OptionID != "opt-b" {
		t.Fatalf("unrated options should keep display order: %+v", summary.Options)
	}
}

func TestComputeDenseTie(t *testing.T) {
	options := []domain.Option{
		{ID: "opt-a", Label: "A"},
		{ID: "opt-b", Label: "B"},
	}
	ballots := []domain.Ballot{
		ballot("b1", map[domain.OptionID]domain.Rating{"opt-a": 1, "opt-b": 1}),
		ballot("b2", map[domain.OptionID]domain.Rating{"opt-a": 1, "opt-b": 1}),
	}

	summary, err := Compute("poll-1", options, ballots)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := findOption(t, summary, "opt-a")
	b := findOption(t, summary, "opt-b")
	if a.Rank != 1 || b.Rank != 1 {
		t.Fatalf("tied averages must share rank 1, got A=%d B=%d", a.Rank, b.Rank)
	}
}

func TestComputeDenseRankingAfterTie(t *testing.T) {
	options := threeOptions()
	// A and B tie at 1.0 with different count/sum pairs (2/2 vs 3/3); the
	// exact rational comparison must still see them as equal, and C must get
	// rank 2, not 3.
	ballots := []domain.Ballot{
		ballot("b1", map[domain.OptionID]domain.Rating{"opt-a": 1, "opt-b": 1, "opt-c": 0}),
		ballot("b2", map[domain.OptionID]domain.Rating{"opt-a": 1, "opt-b": 1, "opt-c": 0}),
		ballot("b3", map[domain.OptionID]domain.Rating{"opt-b": 1, "opt-c": 0}),
	}

	summary, err := Compute("poll-1", options, ballots)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := findOption(t, summary, "opt-a")
	b := findOption(t, summary, "opt-b")
	c := findOption(t, summary, "opt-c")
	if a.Rank != 1 || b.Rank != 1 {
		t.Fatalf("2/2 and 3/3 are the same average, expected shared rank 1, got A=%d B=%d", a.Rank, b.Rank)
	}
	if c.Rank != 2 {
		t.Fatalf("dense ranking gives the next distinct average rank 2, got %d", c.Rank)
	}
}

func TestComputeRejectsOutOfRangeRating(t *testing.T) {
	options := threeOptions()
	ballots := []domain.Ballot{
		ballot("b1", map[domain.OptionID]domain.Rating{"opt-a": 2, "opt-b": 0, "opt-c": -2}),
		ballot("b2", map[domain.OptionID]domain.Rating{"opt-a": 3, "opt-b": 0, "opt-c": 0}),
	}

	_, err := Compute("poll-1", options, ballots)
	if !errors.Is(err, domain.ErrRatingOutOfRange) {
		t.Fatalf("expected ErrRatingOutOfRange, got: %v", err)
	}
}

func TestComputeUnrankedAfterScored(t *testing.T) {
	options := threeOptions()
	// Only A ever gets rated; B and C have no data and must rank after A,
	// tied with each other.
	ballots := []domain.Ballot{
		ballot("b1", map[domain.OptionID]domain.Rating{"opt-a": -2}),
	}

	summary, err := Compute("poll-1", options, ballots)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := findOption(t, summary, "opt-a")
	b := findOption(t, summary, "opt-b")
	c := findOption(t, summary, "opt-c")
	if a.Rank != 1 {
		t.Fatalf("a -2.0 average still outranks no data, got rank %d", a.Rank)
	}
	if b.Rank != 2 || c.Rank != 2 {
		t.Fatalf("options without ballots tie for last, got B=%d C=%d", b.Rank, c.Rank)
	}
	if b.Average != nil || c.Average != nil {
		t.Fatal("options without ballots must report nil average")
	}
}

func TestComputeSkipsUnknownOptions(t *testing.T) {
	options := threeOptions()
	ballots := []domain.Ballot{
		ballot("b1", map[domain.OptionID]domain.Rating{"opt-a": 1, "opt-b": 1, "opt-c": 1, "opt-ghost": 2}),
	}

	summary, err := Compute("poll-1", options, ballots)
	if err != nil {
		t.Fatalf("one stray entry must not fail the computation: %v", err)
	}
	if summary.UnknownEntries != 1 {
		t.Fatalf("expected 1 unknown entry reported, got %d", summary.UnknownEntries)
	}
	var total int64
	for _, res := range summary.Options {
		total += res.Count
	}
	if total != 3 {
		t.Fatalf("unknown entry must not count anywhere, total count %d", total)
	}
}

func TestComputeCountInvariant(t *testing.T) {
	options := threeOptions()
	ballots := []domain.Ballot{
		ballot("b1", map[domain.OptionID]domain.Rating{"opt-a": 2, "opt-b": -1, "opt-c": 0}),
		ballot("b2", map[domain.OptionID]domain.Rating{"opt-a": -2, "opt-b": 2, "opt-c": 1}),
		ballot("b3", map[domain.OptionID]domain.Rating{"opt-a": 0, "opt-b": 0, "opt-c": 0}),
	}

	summary, err := Compute("poll-1", options, ballots)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var total int64
	for _, res := range summary.Options {
		total += res.Count
		if res.Average != nil && (*res.Average < -2 || *res.Average > 2) {
			t.Fatalf("average %f escaped the rating scale", *res.Average)
		}
	}
	if want := int64(len(ballots) * len(options)); total != want {
		t.Fatalf("sum of counts must equal ballots*options=%d, got %d", want, total)
	}
}

func TestComputeDeterministic(t *testing.T) {
	options := threeOptions()
	ballots := []domain.Ballot{
		ballot("b1", map[domain.OptionID]domain.Rating{"opt-a": 1, "opt-b": 1, "opt-c": -2}),
		ballot("b2", map[domain.OptionID]domain.Rating{"opt-a": 0, "opt-b": 2, "opt-c": 2}),
	}

	first, err := Compute("poll-1", options, ballots)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Compute("poll-1", options, ballots)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(first.Options, second.Options) || first.BallotCount != second.BallotCount {
		t.Fatalf("same inputs produced different summaries:\n%+v\n%+v", first, second)
	}
}
