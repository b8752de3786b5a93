package commands

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/infra/clock"
	"whop-chat-bot/internal/infra/retry"
	"whop-chat-bot/internal/usecase/cooldown"
	"whop-chat-bot/internal/usecase/livestream"
	"whop-chat-bot/internal/usecase/poll"
	"whop-chat-bot/internal/usecase/schedule"
	"whop-chat-bot/internal/usecase/tasks"
	"whop-chat-bot/internal/usecase/whitelist"
)

type stubPlatform struct {
	mu         sync.Mutex
	sent       []domain.OutgoingMessage
	moderation []string
	outcome    domain.ModerationOutcome
	modErr     error
	mutedUntil time.Time
	users      map[string]domain.UserInfo
	earnings   []domain.EarningsReport
	referrals  int
	posts      []domain.FeedPost
	deleted    []string
	freeDays   domain.FreeDaysResult
	freeErr    error
	passes     []domain.AccessPass
	passesErr  error
	userErr    error
}

func (p *stubPlatform) SendMessage(_ context.Context, msg domain.OutgoingMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return nil
}

func (p *stubPlatform) CreateDMChannel(_ context.Context, userID string) (string, error) {
	return "dm_" + userID, nil
}

func (p *stubPlatform) GetUser(_ context.Context, userID string) (domain.UserInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.userErr != nil {
		return domain.UserInfo{}, p.userErr
	}
	if u, ok := p.users[userID]; ok {
		return u, nil
	}
	return domain.UserInfo{ID: userID, Username: strings.TrimPrefix(userID, "user_")}, nil
}

func (p *stubPlatform) moderate(action, userID string) (domain.ModerationOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moderation = append(p.moderation, action+":"+userID)
	return p.outcome, p.modErr
}

func (p *stubPlatform) Ban(_ context.Context, userID string) (domain.ModerationOutcome, error) {
	return p.moderate("ban", userID)
}

func (p *stubPlatform) Unban(_ context.Context, userID string) (domain.ModerationOutcome, error) {
	return p.moderate("unban", userID)
}

func (p *stubPlatform) Mute(_ context.Context, userID string, until time.Time) (domain.ModerationOutcome, error) {
	p.mu.Lock()
	p.mutedUntil = until
	p.mu.Unlock()
	return p.moderate("mute", userID)
}

func (p *stubPlatform) Unmute(_ context.Context, userID string) (domain.ModerationOutcome, error) {
	return p.moderate("unmute", userID)
}

func (p *stubPlatform) Kick(_ context.Context, userID string) (domain.ModerationOutcome, error) {
	return p.moderate("kick", userID)
}

func (p *stubPlatform) GetEarnings(context.Context, string) ([]domain.EarningsReport, error) {
	return p.earnings, nil
}

func (p *stubPlatform) GetReferrals(context.Context, string) (int, error) {
	return p.referrals, nil
}

func (p *stubPlatform) ListFeedPosts(_ context.Context, _ string, _ domain.FeedType, limit int) ([]domain.FeedPost, error) {
	if limit < len(p.posts) {
		return p.posts[:limit], nil
	}
	return p.posts, nil
}

func (p *stubPlatform) DeletePosts(_ context.Context, _ string, _ domain.FeedType, ids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, ids...)
	return nil
}

func (p *stubPlatform) AddFreeDays(context.Context, string, string, int) (domain.FreeDaysResult, error) {
	return p.freeDays, p.freeErr
}

func (p *stubPlatform) FeedAccessPasses(context.Context, string) ([]domain.AccessPass, error) {
	return p.passes, p.passesErr
}

func (p *stubPlatform) messages() []domain.OutgoingMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OutgoingMessage(nil), p.sent...)
}

func (p *stubPlatform) last() string {
	msgs := p.messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text
}

func (p *stubPlatform) moderationCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.moderation...)
}

type stubSink struct {
	mu    sync.Mutex
	calls []domain.Notification
	err   error
}

func (s *stubSink) Notify(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, n)
	return s.err
}

func (s *stubSink) notifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.calls...)
}

type testBot struct {
	dispatcher *Dispatcher
	platform   *stubPlatform
	sink       *stubSink
	clock      *clock.Fake
	deps       Deps
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	platform := &stubPlatform{}
	sink := &stubSink{}
	logger := zerolog.Nop()
	sched := tasks.NewScheduler(clk, logger)
	deps := Deps{
		Platform:           platform,
		Notifier:           sink,
		Cooldown:           cooldown.NewService(clk, 10*time.Second, 5*time.Minute),
		CooldownWhitelist:  whitelist.New("cooldown", nil),
		AdminWhitelist:     whitelist.New("admin", nil),
		Polls:              poll.NewService(sched, platform, sink, clk, logger),
		Schedules:          schedule.NewService(sched, platform, clk, logger),
		Tasks:              sched,
		Livestream:         livestream.NewService(platform, logger),
		Retry:              retry.Policy{MaxAttempts: 1},
		Clock:              clk,
		AnnouncementFeedID: "feed_announce",
		Intn:               func(int) int { return 1 },
		Log:                logger,
	}
	registry, err := BuildRegistry(deps)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	return &testBot{
		dispatcher: NewDispatcher("/", registry, deps.AdminWhitelist, platform, logger),
		platform:   platform,
		sink:       sink,
		clock:      clk,
		deps:       deps,
	}
}

func (b *testBot) run(raw, userID string, admin bool, mentions ...string) Result {
	return b.dispatcher.Execute(context.Background(), Invocation{
		Raw:      raw,
		UserID:   userID,
		FeedID:   "feed_1",
		FeedType: domain.FeedTypeChat,
		IsAdmin:  admin,
		Mentions: mentions,
	})
}
