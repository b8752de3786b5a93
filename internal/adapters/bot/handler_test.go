package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/infra/clock"
	"whop-chat-bot/internal/usecase/commands"
	"whop-chat-bot/internal/usecase/cooldown"
	"whop-chat-bot/internal/usecase/livestream"
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

func (s *stubSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.Text)
	}
	return out
}

type fixture struct {
	handler  *Handler
	sender   *stubSender
	clock    *clock.Fake
	exempt   *whitelist.Registry
	executed int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sender: &stubSender{},
		clock:  clock.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		exempt: whitelist.New("cooldown", nil),
	}
	ping := commands.Define(commands.Spec[struct{}]{
		Name: "ping",
		Exec: func(ctx context.Context, _ struct{}, env commands.Env) (commands.Result, error) {
			f.executed++
			if err := env.Reply(ctx, "pong"); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Success: true, MessageSent: true}, nil
		},
	})
	registry, err := commands.NewRegistry(ping)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	dispatcher := commands.NewDispatcher("/", registry, whitelist.New("admin", nil), f.sender, zerolog.Nop())
	cd := cooldown.NewService(f.clock, 10*time.Second, 5*time.Minute)
	greeter := livestream.NewService(f.sender, zerolog.Nop())
	f.handler = NewHandler(dispatcher, cd, f.exempt, greeter, f.sender, zerolog.Nop())
	return f
}

func post(id, user, content string) domain.ChatPost {
	return domain.ChatPost{EntityID: id, FeedID: "feed_1", FeedType: domain.FeedTypeChat, UserID: user, Content: content}
}

func TestDuplicatePostRunsOnce(t *testing.T) {
	f := newFixture(t)
	ev := post("post_1", "user_a", "/ping")
	ev.IsPosterAdmin = true

	f.handler.HandleEvent(context.Background(), ev)
	f.handler.HandleEvent(context.Background(), ev)

	if f.executed != 1 {
		t.Fatalf("executed %d times, want 1", f.executed)
	}
}

func TestIgnoresPlainAndUnknown(t *testing.T) {
	f := newFixture(t)

	f.handler.HandleEvent(context.Background(), post("p1", "user_a", "hello there"))
	f.handler.HandleEvent(context.Background(), post("p2", "user_a", "/dance"))

	if f.executed != 0 || len(f.sender.texts()) != 0 {
		t.Fatalf("nothing should run: executed=%d sent=%v", f.executed, f.sender.texts())
	}
}

func TestLeadingWhitespaceIsNotACommand(t *testing.T) {
	f := newFixture(t)

	f.handler.HandleEvent(context.Background(), post("p1", "user_a", "  /ping"))
	f.handler.HandleEvent(context.Background(), post("p2", "user_b", "\t/ping"))
	if f.executed != 0 || len(f.sender.texts()) != 0 {
		t.Fatalf("indented text must be ignored: executed=%d sent=%v", f.executed, f.sender.texts())
	}

	f.handler.HandleEvent(context.Background(), post("p3", "user_c", "/ping  \n"))
	if f.executed != 1 {
		t.Fatalf("trailing whitespace must not block the command, executed=%d", f.executed)
	}
}

func TestCooldownNoticeIsThrottled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.handler.HandleEvent(ctx, post("p1", "user_a", "/ping"))
	f.clock.Advance(3 * time.Second)
	f.handler.HandleEvent(ctx, post("p2", "user_a", "/ping"))
	f.handler.HandleEvent(ctx, post("p3", "user_a", "/ping"))

	if f.executed != 1 {
		t.Fatalf("executed %d times, want 1", f.executed)
	}
	texts := f.sender.texts()
	if len(texts) != 2 || texts[1] != "Please wait 7 seconds before sending another command." {
		t.Fatalf("unexpected messages %v", texts)
	}

	f.clock.Advance(7 * time.Second)
	f.handler.HandleEvent(ctx, post("p4", "user_a", "/ping"))
	if f.executed != 2 {
		t.Fatalf("command after cooldown must run, executed=%d", f.executed)
	}
}

func TestCooldownExemptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.exempt.Add("user_vip")

	for i, id := range []string{"p1", "p2", "p3"} {
		f.handler.HandleEvent(ctx, post(id, "user_vip", "/ping"))
		admin := post("a"+id, "user_admin", "/ping")
		admin.IsPosterAdmin = true
		f.handler.HandleEvent(ctx, admin)
		if f.executed != 2*(i+1) {
			t.Fatalf("privileged users must bypass cooldown, executed=%d", f.executed)
		}
	}
}

func TestLivestreamGreeting(t *testing.T) {
	f := newFixture(t)
	ev := domain.LivestreamStarted{EntityID: "live_1", HostID: "user_host"}

	f.handler.HandleEvent(context.Background(), ev)
	f.handler.HandleEvent(context.Background(), ev)

	texts := f.sender.texts()
	if len(texts) != 1 || texts[0] != livestream.DefaultGreeting {
		t.Fatalf("unexpected messages %v", texts)
	}
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	f := newFixture(t)
	events := make(chan domain.Event, 3)
	var mu sync.Mutex
	var results []commands.Result
	f.handler.OnResult(func(_ domain.ChatPost, res commands.Result) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	})

	ev := post("p1", "user_a", "/PING")
	events <- domain.ConnectionOpened{}
	events <- ev
	events <- domain.ConnectionClosed{Code: 1000, Reason: "bye"}
	close(events)

	if err := f.handler.Run(context.Background(), events); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("unexpected results %+v", results)
	}
}
