package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vlebourl/cardinal-vote-sub000/internal/app/voting"
	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/antifraud"
)

type MockVotingService struct {
	mock.Mock
}

func (m *MockVotingService) CreatePoll(ctx context.Context, poll domain.Poll, options []domain.Option) (domain.Poll, error) {
	args := m.Called(ctx, poll, options)
	return args.Get(0).(domain.Poll), args.Error(1)
}

func (m *MockVotingService) ListOpen(ctx context.Context) ([]domain.Poll, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Poll), args.Error(1)
}

func (m *MockVotingService) SubmitBallot(ctx context.Context, ballot domain.Ballot) error {
	args := m.Called(ctx, ballot)
	return args.Error(0)
}

func (m *MockVotingService) Results(ctx context.Context, id domain.PollID) (domain.ResultSummary, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.ResultSummary), args.Error(1)
}

func (m *MockVotingService) BallotsByHour(ctx context.Context, id domain.PollID) ([]domain.HourlyCount, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]domain.HourlyCount), args.Error(1)
}

func setupAPI(t *testing.T) (*API, *MockVotingService, *http.ServeMux) {
	mockService := new(MockVotingService)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{}))
	api := New(mockService, logger)

	mux := http.NewServeMux()
	api.Register(mux)

	t.Cleanup(func() {
		mockService.AssertExpectations(t)
	})

	return api, mockService, mux
}

func TestHandleHealthz_ShouldReturn200(t *testing.T) {
	_, _, mux := setupAPI(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestListPolls_WhenOpenPollsExist_ShouldReturnList(t *testing.T) {
	_, mockService, mux := setupAPI(t)

	polls := []domain.Poll{
		{ID: "01HXXXXXXXXXXXXXXXXXXXXX", Title: "Poll 1"},
		{ID: "01HXXXXXXXXXXXXXXXXXXXXY", Title: "Poll 2"},
	}

	mockService.On("ListOpen", mock.Anything).Return(polls, nil)

	req := httptest.NewRequest("GET", "/polls", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response []domain.Poll
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Len(t, response, 2)
	assert.Equal(t, "Poll 1", response[0].Title)
	assert.Equal(t, "Poll 2", response[1].Title)
}

func TestCreatePoll_WhenValid_ShouldReturn201(t *testing.T) {
	_, mockService, mux := setupAPI(t)

	created := domain.Poll{ID: "01HXXXXXXXXXXXXXXXXXXXXX", Title: "Logo vote"}
	mockService.On("CreatePoll", mock.Anything, mock.Anything, mock.Anything).Return(created, nil)

	body := `{"title":"Logo vote","closes_at":"2026-01-01T00:00:00Z","options":["Logo A","Logo B"]}`
	req := httptest.NewRequest("POST", "/polls", strings.NewReader(body))
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response domain.Poll
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, created.ID, response.ID)
}

func TestCreatePoll_WhenSingleOption_ShouldReturn400(t *testing.T) {
	_, _, mux := setupAPI(t)

	body := `{"title":"Broken","closes_at":"2026-01-01T00:00:00Z","options":["Only one"]}`
	req := httptest.NewRequest("POST", "/polls", strings.NewReader(body))
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	// validator rejects the payload before the service is ever called.
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitBallot_WhenAccepted_ShouldReturn202(t *testing.T) {
	_, mockService, mux := setupAPI(t)

	mockService.On("SubmitBallot", mock.Anything, mock.MatchedBy(func(b domain.Ballot) bool {
		return b.PollID == "poll-1" &&
			b.VoterName == "Alice" &&
			b.Ratings["opt-a"] == 2 &&
			b.Ratings["opt-b"] == -1
	})).Return(nil)

	body := `{"poll_id":"poll-1","voter_name":"Alice","ratings":{"opt-a":2,"opt-b":-1}}`
	req := httptest.NewRequest("POST", "/ballots", strings.NewReader(body))
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestSubmitBallot_WhenRatingOutOfScale_ShouldReturn400(t *testing.T) {
	_, _, mux := setupAPI(t)

	body := `{"poll_id":"poll-1","ratings":{"opt-a":3}}`
	req := httptest.NewRequest("POST", "/ballots", strings.NewReader(body))
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitBallot_WhenBodyNotJSON_ShouldReturn400(t *testing.T) {
	_, _, mux := setupAPI(t)

	req := httptest.NewRequest("POST", "/ballots", strings.NewReader("not-json"))
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitBallot_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"duplicate voter", voting.ErrAlreadyVoted, http.StatusConflict},
		{"closed poll", voting.ErrPollClosed, http.StatusConflict},
		{"unknown poll", voting.ErrPollNotFound, http.StatusNotFound},
		{"incomplete ballot", voting.ErrIncompleteBallot, http.StatusBadRequest},
		{"unknown option", voting.ErrUnknownOption, http.StatusBadRequest},
		{"rate limited", antifraud.ErrRateLimitExceeded, http.StatusTooManyRequests},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, mockService, mux := setupAPI(t)
			mockService.On("SubmitBallot", mock.Anything, mock.Anything).Return(tc.serviceErr)

			body := `{"poll_id":"poll-1","ratings":{"opt-a":1,"opt-b":0}}`
			req := httptest.NewRequest("POST", "/ballots", strings.NewReader(body))
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
		})
	}
}

func TestGetResults_WhenPollExists_ShouldReturnSummary(t *testing.T) {
	_, mockService, mux := setupAPI(t)

	avg := 1.5
	summary := domain.ResultSummary{
		PollID:      "poll-1",
		BallotCount: 2,
		Options: []domain.OptionResult{
			{OptionID: "opt-a", Label: "Logo A", Count: 2, Sum: 3, Average: &avg, Rank: 1},
			{OptionID: "opt-b", Label: "Logo B", Count: 0, Rank: 2},
		},
	}
	mockService.On("Results", mock.Anything, domain.PollID("poll-1")).Return(summary, nil)

	req := httptest.NewRequest("GET", "/polls/poll-1/results", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response domain.ResultSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, int64(2), response.BallotCount)
	require.Len(t, response.Options, 2)
	require.NotNil(t, response.Options[0].Average)
	assert.Equal(t, 1.5, *response.Options[0].Average)
	// No data serializes as null, not zero.
	assert.Nil(t, response.Options[1].Average)
}

func TestGetResults_WhenPollMissing_ShouldReturn404(t *testing.T) {
	_, mockService, mux := setupAPI(t)

	mockService.On("Results", mock.Anything, domain.PollID("missing")).
		Return(domain.ResultSummary{}, voting.ErrPollNotFound)

	req := httptest.NewRequest("GET", "/polls/missing/results", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetHourly_WhenPollExists_ShouldReturnSeries(t *testing.T) {
	_, mockService, mux := setupAPI(t)

	counts := []domain.HourlyCount{
		{PollID: "poll-1", Hour: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), Total: 3},
		{PollID: "poll-1", Hour: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), Total: 1},
	}
	mockService.On("BallotsByHour", mock.Anything, domain.PollID("poll-1")).Return(counts, nil)

	req := httptest.NewRequest("GET", "/polls/poll-1/hourly", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response []domain.HourlyCount
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Len(t, response, 2)
	assert.Equal(t, int64(3), response[0].Total)
}
