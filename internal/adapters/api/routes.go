package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"

	httpinfra "whop-chat-bot/internal/infra/http"
	"whop-chat-bot/internal/usecase/cooldown"
	"whop-chat-bot/internal/usecase/poll"
	"whop-chat-bot/internal/usecase/schedule"
	"whop-chat-bot/internal/usecase/tasks"
	"whop-chat-bot/internal/usecase/whitelist"
)

// Polls - операции опросов, доступные администратору.
type Polls interface {
	Active() []poll.Poll
	Recent(limit int) []poll.Poll
	Get(pollID string) (poll.Poll, bool)
	Results(pollID string) ([]poll.Result, bool)
	End(ctx context.Context, pollID string) ([]poll.Result, bool)
}

// Schedules - операции повторяющихся сообщений.
type Schedules interface {
	All() []schedule.Job
	ListForFeed(feedID string) []schedule.Job
	StopAllForFeed(feedID string) int
}

// Tasks - список задач планировщика.
type Tasks interface {
	List() []tasks.Task
}

// Cooldown - чтение и изменение периода ожидания.
type Cooldown interface {
	Period() time.Duration
	SetPeriod(d time.Duration)
}

// Deps собирает сервисы административного API.
type Deps struct {
	Polls      Polls
	Schedules  Schedules
	Tasks      Tasks
	Cooldown   Cooldown
	Whitelists []*whitelist.Registry
}

type handlers struct {
	Deps
	lists map[string]*whitelist.Registry
}

// Mount регистрирует маршруты /api/v1 под защитой токена.
func Mount(r chi.Router, token string, deps Deps) {
	h := &handlers{Deps: deps, lists: make(map[string]*whitelist.Registry, len(deps.Whitelists))}
	for _, reg := range deps.Whitelists {
		h.lists[reg.Name()] = reg
	}
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpinfra.TokenAuthMiddleware(token))

		api.Get("/polls", h.listPolls)
		api.Get("/polls/{id}", h.getPoll)
		api.Post("/polls/{id}/end", h.endPoll)

		api.Get("/schedules", h.listSchedules)
		api.Delete("/schedules", h.stopSchedules)

		api.Get("/tasks", h.listTasks)

		api.Get("/cooldown", h.getCooldown)
		api.Put("/cooldown", h.setCooldown)

		api.Get("/whitelists/{name}", h.listWhitelist)
		api.Put("/whitelists/{name}/{userID}", h.addToWhitelist)
		api.Delete("/whitelists/{name}/{userID}", h.removeFromWhitelist)
	})
}

type pollView struct {
	ID        string       `json:"id"`
	Question  string       `json:"question"`
	FeedID    string       `json:"feed_id"`
	CreatorID string       `json:"creator_id"`
	Active    bool         `json:"active"`
	Votes     int          `json:"votes"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	Results   []resultView `json:"results,omitempty"`
}

type resultView struct {
	OptionID   string  `json:"option_id"`
	Text       string  `json:"text"`
	Votes      int     `json:"votes"`
	Percentage float64 `json:"percentage"`
}

func toPollView(p poll.Poll) pollView {
	return pollView{
		ID:        p.ID,
		Question:  p.Question,
		FeedID:    p.FeedID,
		CreatorID: p.CreatorID,
		Active:    p.Active,
		Votes:     len(p.Votes),
		CreatedAt: p.CreatedAt,
		ExpiresAt: p.ExpiresAt,
	}
}

func toResultViews(results []poll.Result) []resultView {
	out := make([]resultView, 0, len(results))
	for _, r := range results {
		out = append(out, resultView{OptionID: r.OptionID, Text: r.Text, Votes: r.Votes, Percentage: r.Percentage})
	}
	return out
}

// listPolls отдаёт активные опросы; ?recent=N добавляет последние завершённые.
func (h *handlers) listPolls(w http.ResponseWriter, r *http.Request) {
	polls := h.Polls.Active()
	if raw := r.URL.Query().Get("recent"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpinfra.WriteError(w, http.StatusBadRequest, errors.New("recent must be a positive number"))
			return
		}
		polls = h.Polls.Recent(n)
	}
	out := make([]pollView, 0, len(polls))
	for _, p := range polls {
		out = append(out, toPollView(p))
	}
	httpinfra.WriteJSON(w, http.StatusOK, out)
}

func (h *handlers) getPoll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := h.Polls.Get(id)
	if !ok {
		httpinfra.WriteError(w, http.StatusNotFound, errors.New("poll not found"))
		return
	}
	view := toPollView(p)
	if results, ok := h.Polls.Results(id); ok {
		view.Results = toResultViews(results)
	}
	httpinfra.WriteJSON(w, http.StatusOK, view)
}

func (h *handlers) endPoll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	results, ok := h.Polls.End(r.Context(), id)
	if !ok {
		httpinfra.WriteError(w, http.StatusConflict, errors.New("poll not found or already ended"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "results": toResultViews(results)})
}

type jobView struct {
	ID        string    `json:"id"`
	FeedID    string    `json:"feed_id"`
	OwnerID   string    `json:"owner_id"`
	Message   string    `json:"message"`
	Every     string    `json:"every"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *handlers) listSchedules(w http.ResponseWriter, r *http.Request) {
	var jobs []schedule.Job
	if feedID := r.URL.Query().Get("feed_id"); feedID != "" {
		jobs = h.Schedules.ListForFeed(feedID)
	} else {
		jobs = h.Schedules.All()
	}
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobView{
			ID:        j.ID,
			FeedID:    j.FeedID,
			OwnerID:   j.OwnerID,
			Message:   j.Message,
			Every:     j.Unit.Describe(j.Interval),
			CreatedAt: j.CreatedAt,
		})
	}
	httpinfra.WriteJSON(w, http.StatusOK, out)
}

func (h *handlers) stopSchedules(w http.ResponseWriter, r *http.Request) {
	feedID := r.URL.Query().Get("feed_id")
	if feedID == "" {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("feed_id is required"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]int{"stopped": h.Schedules.StopAllForFeed(feedID)})
}

type taskView struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Expression string            `json:"expression"`
	Active     bool              `json:"active"`
	Payload    map[string]string `json:"payload,omitempty"`
	LastRun    *time.Time        `json:"last_run,omitempty"`
	NextRun    *time.Time        `json:"next_run,omitempty"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (h *handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	list := h.Tasks.List()
	out := make([]taskView, 0, len(list))
	for _, t := range list {
		out = append(out, taskView{
			ID:         t.ID,
			Name:       t.Name,
			Expression: t.Expression,
			Active:     t.Active,
			Payload:    t.Payload,
			LastRun:    optionalTime(t.LastRun),
			NextRun:    optionalTime(t.NextRun),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	httpinfra.WriteJSON(w, http.StatusOK, out)
}

type cooldownBody struct {
	Seconds int `json:"seconds"`
}

func (h *handlers) getCooldown(w http.ResponseWriter, r *http.Request) {
	httpinfra.WriteJSON(w, http.StatusOK, cooldownBody{Seconds: int(h.Cooldown.Period() / time.Second)})
}

func (h *handlers) setCooldown(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var body cooldownBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if body.Seconds < 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("seconds must not be negative"))
		return
	}
	if int64(body.Seconds) > int64(cooldown.MaxPeriod/time.Second) {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("seconds exceed the maximum cooldown"))
		return
	}
	h.Cooldown.SetPeriod(time.Duration(body.Seconds) * time.Second)
	httpinfra.WriteJSON(w, http.StatusOK, body)
}

func (h *handlers) whitelist(w http.ResponseWriter, r *http.Request) (*whitelist.Registry, bool) {
	reg, ok := h.lists[chi.URLParam(r, "name")]
	if !ok {
		httpinfra.WriteError(w, http.StatusNotFound, errors.New("unknown whitelist"))
	}
	return reg, ok
}

func (h *handlers) listWhitelist(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.whitelist(w, r)
	if !ok {
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"name": reg.Name(), "users": reg.List()})
}

func (h *handlers) addToWhitelist(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.whitelist(w, r)
	if !ok {
		return
	}
	added := reg.Add(chi.URLParam(r, "userID"))
	httpinfra.WriteJSON(w, http.StatusOK, map[string]bool{"added": added})
}

func (h *handlers) removeFromWhitelist(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.whitelist(w, r)
	if !ok {
		return
	}
	removed := reg.Remove(chi.URLParam(r, "userID"))
	httpinfra.WriteJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}
