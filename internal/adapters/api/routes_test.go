package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/infra/clock"
	"whop-chat-bot/internal/usecase/cooldown"
	"whop-chat-bot/internal/usecase/poll"
	"whop-chat-bot/internal/usecase/schedule"
	"whop-chat-bot/internal/usecase/tasks"
	"whop-chat-bot/internal/usecase/whitelist"
)

type stubSender struct {
	mu   sync.Mutex
	sent []domain.OutgoingMessage
}

func (s *stubSender) SendMessage(_ context.Context, msg domain.OutgoingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

type nopSink struct{}

func (nopSink) Notify(context.Context, domain.Notification) error { return nil }

type fixture struct {
	router    chi.Router
	polls     *poll.Service
	schedules *schedule.Service
	cooldown  *cooldown.Service
	admins    *whitelist.Registry
	sender    *stubSender
}

const testToken = "s3cret"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	sched := tasks.NewScheduler(clk, zerolog.Nop())
	sender := &stubSender{}
	f := &fixture{
		router:    chi.NewRouter(),
		polls:     poll.NewService(sched, sender, nopSink{}, clk, zerolog.Nop()),
		schedules: schedule.NewService(sched, sender, clk, zerolog.Nop()),
		cooldown:  cooldown.NewService(clk, 10*time.Second, 5*time.Minute),
		admins:    whitelist.New("admin", []string{"user_a"}),
		sender:    sender,
	}
	Mount(f.router, testToken, Deps{
		Polls:      f.polls,
		Schedules:  f.schedules,
		Tasks:      sched,
		Cooldown:   f.cooldown,
		Whitelists: []*whitelist.Registry{f.admins},
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestRequiresToken(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/polls", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/polls", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", rec.Code)
	}
}

func TestEmptyTokenDisablesAPI(t *testing.T) {
	r := chi.NewRouter()
	Mount(r, "", Deps{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestPollLifecycleOverAPI(t *testing.T) {
	f := newFixture(t)
	_, err := f.polls.Create(poll.CreateRequest{
		ID:              "p1",
		Question:        "Best color?",
		Options:         []poll.Option{{ID: "1", Text: "Red"}, {ID: "2", Text: "Blue"}},
		FeedID:          "feed_1",
		FeedType:        domain.FeedTypeChat,
		DurationMinutes: 5,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.polls.CastVote("p1", "user_1", "2")

	list := decode[[]pollView](t, f.do(t, http.MethodGet, "/api/v1/polls", ""))
	if len(list) != 1 || list[0].ID != "p1" || list[0].Votes != 1 {
		t.Fatalf("unexpected list %#v", list)
	}

	view := decode[pollView](t, f.do(t, http.MethodGet, "/api/v1/polls/p1", ""))
	if len(view.Results) != 2 || view.Results[1].Votes != 1 {
		t.Fatalf("unexpected results %#v", view.Results)
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/polls/p1/end", ""); rec.Code != http.StatusOK {
		t.Fatalf("end: status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/polls/p1/end", ""); rec.Code != http.StatusConflict {
		t.Fatalf("second end: expected 409, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/polls/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("expected results announcement, got %d messages", len(f.sender.sent))
	}

	recent := decode[[]pollView](t, f.do(t, http.MethodGet, "/api/v1/polls?recent=5", ""))
	if len(recent) != 1 || recent[0].Active {
		t.Fatalf("unexpected recent %#v", recent)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/polls?recent=x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSchedulesAndTasks(t *testing.T) {
	f := newFixture(t)
	for _, feed := range []string{"feed_1", "feed_2"} {
		if _, err := f.schedules.Schedule(schedule.Request{
			FeedID: feed, FeedType: domain.FeedTypeChat, OwnerID: "admin", Message: "hi", Interval: 1, Unit: schedule.UnitHour,
		}); err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}

	all := decode[[]jobView](t, f.do(t, http.MethodGet, "/api/v1/schedules", ""))
	if len(all) != 2 || all[0].Every != "1 hour" {
		t.Fatalf("unexpected schedules %#v", all)
	}
	one := decode[[]jobView](t, f.do(t, http.MethodGet, "/api/v1/schedules?feed_id=feed_2", ""))
	if len(one) != 1 || one[0].FeedID != "feed_2" {
		t.Fatalf("unexpected filtered schedules %#v", one)
	}

	taskList := decode[[]taskView](t, f.do(t, http.MethodGet, "/api/v1/tasks", ""))
	if len(taskList) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(taskList))
	}

	if rec := f.do(t, http.MethodDelete, "/api/v1/schedules", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without feed_id, got %d", rec.Code)
	}
	stopped := decode[map[string]int](t, f.do(t, http.MethodDelete, "/api/v1/schedules?feed_id=feed_1", ""))
	if stopped["stopped"] != 1 {
		t.Fatalf("unexpected stop result %#v", stopped)
	}
	if f.schedules.TotalActive() != 1 {
		t.Fatalf("expected 1 schedule left")
	}
}

func TestCooldownAndWhitelists(t *testing.T) {
	f := newFixture(t)
	got := decode[cooldownBody](t, f.do(t, http.MethodGet, "/api/v1/cooldown", ""))
	if got.Seconds != 10 {
		t.Fatalf("unexpected cooldown %d", got.Seconds)
	}
	if rec := f.do(t, http.MethodPut, "/api/v1/cooldown", `{"seconds":120}`); rec.Code != http.StatusOK {
		t.Fatalf("set cooldown: %d", rec.Code)
	}
	if f.cooldown.Period() != 2*time.Minute {
		t.Fatalf("period not updated: %v", f.cooldown.Period())
	}
	if rec := f.do(t, http.MethodPut, "/api/v1/cooldown", `{"seconds":-1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPut, "/api/v1/cooldown", `{"seconds":18446744073}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for huge period, got %d", rec.Code)
	}
	if f.cooldown.Period() != 2*time.Minute {
		t.Fatalf("period must stay unchanged, got %v", f.cooldown.Period())
	}

	added := decode[map[string]bool](t, f.do(t, http.MethodPut, "/api/v1/whitelists/admin/user_b", ""))
	if !added["added"] || !f.admins.Contains("user_b") {
		t.Fatalf("user_b should be added")
	}
	list := decode[struct {
		Users []string `json:"users"`
	}](t, f.do(t, http.MethodGet, "/api/v1/whitelists/admin", ""))
	if strings.Join(list.Users, ",") != "user_a,user_b" {
		t.Fatalf("unexpected users %v", list.Users)
	}
	removed := decode[map[string]bool](t, f.do(t, http.MethodDelete, "/api/v1/whitelists/admin/user_a", ""))
	if !removed["removed"] {
		t.Fatalf("user_a should be removed")
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/whitelists/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
