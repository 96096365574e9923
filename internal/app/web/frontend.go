package web

// Package web holds the server-rendered HTML layer: the rating form, the
// public results page and the token-protected admin console.

import (
	"crypto/subtle"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vlebourl/cardinal-vote-sub000/internal/app/voting"
	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/antifraud"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

// Frontend renders the embedded Go templates for the voting screens.
type Frontend struct {
	templates  *template.Template
	service    domain.VotingService
	adminToken string
}

// New loads the embedded templates and wires the voting service.
func New(service domain.VotingService, adminToken string) (*Frontend, error) {
	if service == nil {
		return nil, fmt.Errorf("frontend: nil voting service")
	}
	tmpl, err := template.ParseFS(templateFS,
		"templates/layout.gohtml",
		"templates/vote.gohtml",
		"templates/results.gohtml",
		"templates/admin.gohtml",
	)
	if err != nil {
		return nil, err
	}

	for _, name := range []string{"vote_body", "results_body", "admin_body", "layout"} {
		if tmpl.Lookup(name) == nil {
			return nil, fmt.Errorf("frontend: template %s not found", name)
		}
	}

	return &Frontend{templates: tmpl, service: service, adminToken: adminToken}, nil
}

// Register exposes the HTML routes on the same mux as the API.
func (f *Frontend) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", f.handleRoot)
	mux.HandleFunc("/vote", f.handleVote)
	mux.HandleFunc("/results", f.handleResults)
	mux.HandleFunc("/admin", f.handleAdmin)
}

func (f *Frontend) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/vote", http.StatusFound)
}

func (f *Frontend) handleVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := votePageData{Scale: ratingScale()}

	polls, err := f.service.ListOpen(ctx)
	if err != nil {
		data.Error = "Could not load the open polls."
	} else {
		data.Polls = makeVotePolls(polls)
	}

	if r.Method == http.MethodPost && data.Error == "" {
		if err := r.ParseForm(); err != nil {
			data.Error = "Could not read the submitted form. Please try again."
		} else {
			ballot, problem := ballotFromForm(r, polls)
			if problem != "" {
				data.Error = problem
			} else if err := f.service.SubmitBallot(ctx, ballot); err != nil {
				data.Error = translateVoteError(err)
			} else {
				http.Redirect(w, r, "/results?poll_id="+url.QueryEscape(string(ballot.PollID))+"&status=success", http.StatusSeeOther)
				return
			}
		}
	}

	f.render(w, "vote_body", data)
}

// ballotFromForm collects one rating_<optionID> value per option of the chosen
// poll. A missing radio is left out so the service reports the incomplete
// ballot with its own error. The second return is a user-facing message, empty
// when the form parsed cleanly.
func ballotFromForm(r *http.Request, polls []domain.Poll) (domain.Ballot, string) {
	pollID := domain.PollID(strings.TrimSpace(r.FormValue("poll_id")))
	if pollID == "" {
		return domain.Ballot{}, "Pick a poll before submitting your ballot."
	}

	var options []domain.Option
	for _, p := range polls {
		if p.ID == pollID {
			options = p.Options
			break
		}
	}
	if options == nil {
		return domain.Ballot{}, "That poll is no longer open."
	}

	ratings := make(map[domain.OptionID]domain.Rating, len(options))
	for _, opt := range options {
		raw := r.FormValue("rating_" + string(opt.ID))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Ballot{}, fmt.Sprintf("The rating for %q is not a number.", opt.Label)
		}
		rating, err := domain.NewRating(value)
		if err != nil {
			return domain.Ballot{}, fmt.Sprintf("The rating for %q is outside the -2 to +2 scale.", opt.Label)
		}
		ratings[opt.ID] = rating
	}

	return domain.Ballot{
		PollID:    pollID,
		VoterName: strings.TrimSpace(r.FormValue("voter_name")),
		OriginIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		Ratings:   ratings,
	}, ""
}

func (f *Frontend) handleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pollID := domain.PollID(strings.TrimSpace(r.URL.Query().Get("poll_id")))
	data := resultsPageData{}

	if status := r.URL.Query().Get("status"); status == "success" {
		data.Message = "Your ballot has been recorded!"
	}

	if pollID == "" {
		data.Error = "Tell me which poll you want to follow."
		f.render(w, "results_body", data)
		return
	}

	summary, err := f.service.Results(ctx, pollID)
	if err != nil {
		data.Error = translateVoteError(err)
		f.render(w, "results_body", data)
		return
	}

	polls, err := f.service.ListOpen(ctx)
	if err != nil {
		// keep going; the ID stands in when the title cannot be resolved.
		polls = nil
	}

	title := pollTitle(polls, pollID)
	if title == "" {
		title = string(pollID)
	}

	data.PollTitle = title
	data.BallotCountDisplay = displayInt(summary.BallotCount)
	data.Options = makeResultRows(summary)

	if hourly, err := f.service.BallotsByHour(ctx, pollID); err == nil {
		for _, item := range hourly {
			data.BallotsPerHour = append(data.BallotsPerHour, hourView{
				Interval:     formatHour(item.Hour),
				TotalDisplay: displayInt(item.Total),
			})
		}
	} else {
		data.HourError = "Could not load the hourly history."
	}

	f.render(w, "results_body", data)
}

func (f *Frontend) handleAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if f.adminToken != "" && !f.isAdminAuthorized(r) {
		data := adminPageData{RequiresToken: true}
		if r.Method == http.MethodPost {
			if err := r.ParseForm(); err == nil {
				token := r.PostFormValue("token")
				if subtle.ConstantTimeCompare([]byte(token), []byte(f.adminToken)) == 1 {
					setAdminAuthCookie(w)
					http.Redirect(w, r, "/admin", http.StatusSeeOther)
					return
				}
			}
			data.TokenError = true
		}
		f.render(w, "admin_body", data)
		return
	}

	polls, err := f.service.ListOpen(ctx)
	data := adminPageData{}
	if err != nil {
		data.Error = "Could not load the poll overview."
		f.render(w, "admin_body", data)
		return
	}

	for _, p := range polls {
		summary, err := f.service.Results(ctx, p.ID)
		if err != nil {
			data.Error = "Failed to compute the results of a poll."
			break
		}

		hourly, err := f.service.BallotsByHour(ctx, p.ID)
		if err != nil {
			data.Error = "Failed to load the hourly series of a poll."
			break
		}

		view := adminPollView{
			Title:              p.Title,
			BallotCountDisplay: displayInt(summary.BallotCount),
			Options:            makeResultRows(summary),
		}
		for _, item := range hourly {
			view.BallotsPerHour = append(view.BallotsPerHour, hourView{
				Interval:     formatHour(item.Hour),
				TotalDisplay: displayInt(item.Total),
			})
		}

		data.Polls = append(data.Polls, view)
	}

	f.render(w, "admin_body", data)
}

func (f *Frontend) render(w http.ResponseWriter, tmpl string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var content strings.Builder
	if err := f.templates.ExecuteTemplate(&content, tmpl, data); err != nil {
		http.Error(w, "failed to build page", http.StatusInternalServerError)
		return
	}

	page := struct {
		Title   string
		Content template.HTML
	}{
		Title:   pageTitle(tmpl),
		Content: template.HTML(content.String()),
	}

	if err := f.templates.ExecuteTemplate(w, "layout", page); err != nil {
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}

func pageTitle(body string) string {
	switch body {
	case "vote_body":
		return "Cast your ballot"
	case "results_body":
		return "Poll results"
	case "admin_body":
		return "Admin console"
	default:
		return "Value voting"
	}
}

type votePageData struct {
	Polls []votePollView
	Scale []scaleStep
	Error string
}

type votePollView struct {
	ID          string
	Title       string
	Description string
	OpensAt     string
	ClosesAt    string
	Options     []voteOptionView
}

type voteOptionView struct {
	ID    string
	Label string
}

type scaleStep struct {
	Value string
	Label string
}

type resultsPageData struct {
	PollTitle          string
	BallotCountDisplay string
	Options            []resultRowView
	BallotsPerHour     []hourView
	Message            string
	Error              string
	HourError          string
}

type resultRowView struct {
	Rank           int
	Label          string
	CountDisplay   string
	SumDisplay     string
	AverageDisplay string
}

type hourView struct {
	Interval     string
	TotalDisplay string
}

type adminPageData struct {
	RequiresToken bool
	TokenError    bool
	Error         string
	Polls         []adminPollView
}

type adminPollView struct {
	Title              string
	BallotCountDisplay string
	Options            []resultRowView
	BallotsPerHour     []hourView
}

func ratingScale() []scaleStep {
	return []scaleStep{
		{Value: "-2", Label: "-2"},
		{Value: "-1", Label: "-1"},
		{Value: "0", Label: "0"},
		{Value: "1", Label: "+1"},
		{Value: "2", Label: "+2"},
	}
}

func makeVotePolls(polls []domain.Poll) []votePollView {
	views := make([]votePollView, 0, len(polls))
	for _, p := range polls {
		view := votePollView{
			ID:          string(p.ID),
			Title:       p.Title,
			Description: p.Description,
			OpensAt:     formatDateTime(p.OpensAt),
			ClosesAt:    formatDateTime(p.ClosesAt),
		}
		for _, opt := range p.Options {
			view.Options = append(view.Options, voteOptionView{
				ID:    string(opt.ID),
				Label: opt.Label,
			})
		}
		views = append(views, view)
	}
	return views
}

func makeResultRows(summary domain.ResultSummary) []resultRowView {
	rows := make([]resultRowView, 0, len(summary.Options))
	for _, opt := range summary.Options {
		rows = append(rows, resultRowView{
			Rank:           opt.Rank,
			Label:          opt.Label,
			CountDisplay:   displayInt(opt.Count),
			SumDisplay:     displayInt(opt.Sum),
			AverageDisplay: formatAverage(opt.Average),
		})
	}
	return rows
}

func pollTitle(polls []domain.Poll, id domain.PollID) string {
	for _, p := range polls {
		if p.ID == id {
			return p.Title
		}
	}
	return ""
}

func translateVoteError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, antifraud.ErrRateLimitExceeded):
		return "You reached the submission limit. Wait a moment and try again."
	case errors.Is(err, voting.ErrAlreadyVoted):
		return "A ballot with your name or device was already recorded for this poll."
	case errors.Is(err, voting.ErrPollClosed):
		return "This poll is already closed."
	case errors.Is(err, voting.ErrIncompleteBallot):
		return "Please rate every option before submitting."
	case errors.Is(err, voting.ErrUnknownOption):
		return "One of the rated options does not belong to this poll."
	case errors.Is(err, voting.ErrPollNotFound):
		return "Poll not found."
	default:
		return "Could not record your ballot. Please try again."
	}
}

func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// formatAverage renders a dash when no ballot rated the option; "0.00" would
// misread as a neutral score.
func formatAverage(avg *float64) string {
	if avg == nil {
		return "—"
	}
	return fmt.Sprintf("%.2f", *avg)
}

func displayInt(v int64) string {
	return fmt.Sprintf("%d", v)
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}

func formatHour(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 02 15h")
}

func (f *Frontend) isAdminAuthorized(r *http.Request) bool {
	if f.adminToken == "" {
		return true
	}
	cookie, err := r.Cookie("admin-auth")
	return err == nil && cookie.Value == "ok"
}

func setAdminAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "admin-auth",
		Value:    "ok",
		Path:     "/admin",
		MaxAge:   3600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
