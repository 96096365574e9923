// Package httpapi exposes the REST handlers and translates HTTP requests for
// the voting service.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vlebourl/cardinal-vote-sub000/internal/app/voting"
	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/antifraud"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/metrics"
)

// API bundles the HTTP handlers bound to the voting service and the logger.
type API struct {
	service  domain.VotingService
	logger   *slog.Logger
	validate *validator.Validate
}

func New(service domain.VotingService, logger *slog.Logger) *API {
	return &API{
		service:  service,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) Register(mux *http.ServeMux) {
	// Routes stay centralized so tests and alternative servers can reuse them.
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/polls", a.handlePolls)
	mux.HandleFunc("/ballots", a.handleBallots)
	mux.HandleFunc("/polls/", a.handlePollDetails)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *API) handlePolls(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listPolls(w, r)
	case http.MethodPost:
		a.createPoll(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) handlePollDetails(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/polls/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	id := domain.PollID(parts[0])

	switch {
	case len(parts) == 2 && parts[1] == "results" && r.Method == http.MethodGet:
		a.getResults(w, r, id)
	case len(parts) == 2 && parts[1] == "hourly" && r.Method == http.MethodGet:
		a.getHourly(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleBallots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.submitBallot(w, r)
}

func (a *API) listPolls(w http.ResponseWriter, r *http.Request) {
	polls, err := a.service.ListOpen(r.Context())
	if err != nil {
		a.logger.Error("failed to list polls", "err", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, polls)
}

type createPollRequest struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	OpensAt     time.Time `json:"opens_at"`
	ClosesAt    time.Time `json:"closes_at" validate:"required"`
	Options     []string  `json:"options" validate:"required,min=2,dive,required"`
}

func (a *API) createPoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.logger.Warn("invalid payload creating poll", "err", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.logger.Warn("poll request failed validation", "err", err)
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	options := make([]domain.Option, len(req.Options))
	for i, label := range req.Options {
		options[i] = domain.Option{Label: label}
	}

	poll, err := a.service.CreatePoll(r.Context(), domain.Poll{
		Title:       req.Title,
		Description: req.Description,
		OpensAt:     req.OpensAt,
		ClosesAt:    req.ClosesAt,
	}, options)
	if err != nil {
		a.logger.Warn("failed to create poll", "err", err, "title", req.Title)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, poll)
}

type ballotRequest struct {
	PollID    string         `json:"poll_id" validate:"required"`
	VoterName string         `json:"voter_name"`
	Ratings   map[string]int `json:"ratings" validate:"required,dive,min=-2,max=2"`
}

func (a *API) submitBallot(w http.ResponseWriter, r *http.Request) {
	var req ballotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.ObserveBallotRequest("invalid_payload")
		a.logger.Warn("invalid payload submitting ballot", "err", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		metrics.ObserveBallotRequest("invalid_payload")
		a.logger.Warn("ballot request failed validation", "err", err)
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	ratings := make(map[domain.OptionID]domain.Rating, len(req.Ratings))
	for optionID, value := range req.Ratings {
		rating, err := domain.NewRating(value)
		if err != nil {
			metrics.ObserveBallotRequest("invalid_payload")
			http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
			return
		}
		ratings[domain.OptionID(optionID)] = rating
	}

	ballot := domain.Ballot{
		PollID:    domain.PollID(req.PollID),
		VoterName: req.VoterName,
		OriginIP:  r.Header.Get("X-Forwarded-For"),
		UserAgent: r.UserAgent(),
		Ratings:   ratings,
	}

	if ballot.OriginIP == "" {
		ballot.OriginIP = strings.Split(r.RemoteAddr, ":")[0]
	}

	if err := a.service.SubmitBallot(r.Context(), ballot); err != nil {
		status := statusFromError(err)
		metrics.ObserveBallotRequest(status)
		a.logger.Warn("failed to submit ballot", "err", err, "poll", req.PollID, "status", status)
		respondError(w, err)
		return
	}

	metrics.ObserveBallotRequest("accepted")
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "received"})
	a.logger.Info("ballot received", "poll", req.PollID)
}

func (a *API) getResults(w http.ResponseWriter, r *http.Request, id domain.PollID) {
	summary, err := a.service.Results(r.Context(), id)
	if err != nil {
		a.logger.Error("failed to compute results", "err", err, "poll", id)
		respondError(w, err)
		return
	}

	// Stray entries point at drift between option config and stored ballots;
	// worth a metric and a log line, not a failed request.
	metrics.AddUnknownRatingEntries(summary.UnknownEntries)
	if summary.UnknownEntries > 0 {
		a.logger.Warn("results contained unknown option entries", "poll", id, "entries", summary.UnknownEntries)
	}

	respondJSON(w, http.StatusOK, summary)
}

func (a *API) getHourly(w http.ResponseWriter, r *http.Request, id domain.PollID) {
	counts, err := a.service.BallotsByHour(r.Context(), id)
	if err != nil {
		a.logger.Error("failed to get hourly counts", "err", err, "poll", id)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, counts)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, voting.ErrPollInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, voting.ErrUnknownOption):
		status = http.StatusBadRequest
	case errors.Is(err, voting.ErrIncompleteBallot):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrRatingOutOfRange):
		status = http.StatusBadRequest
	case errors.Is(err, voting.ErrPollClosed):
		status = http.StatusConflict
	case errors.Is(err, voting.ErrAlreadyVoted):
		status = http.StatusConflict
	case errors.Is(err, voting.ErrPollNotFound):
		status = http.StatusNotFound
	case errors.Is(err, antifraud.ErrRateLimitExceeded):
		status = http.StatusTooManyRequests
	}

	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFromError(err error) string {
	switch {
	case errors.Is(err, antifraud.ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, voting.ErrAlreadyVoted):
		return "duplicate"
	case errors.Is(err, voting.ErrPollClosed):
		return "closed"
	case errors.Is(err, voting.ErrIncompleteBallot), errors.Is(err, voting.ErrUnknownOption), errors.Is(err, domain.ErrRatingOutOfRange):
		return "invalid"
	case errors.Is(err, voting.ErrPollNotFound):
		return "not_found"
	default:
		return "error"
	}
}
