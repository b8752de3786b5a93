package livestream

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"whop-chat-bot/internal/domain"
)

type stubSender struct {
	sent []domain.OutgoingMessage
	err  error
}

func (s *stubSender) SendMessage(_ context.Context, msg domain.OutgoingMessage) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func TestHandleStartedUsesHostGreetingOnce(t *testing.T) {
	sender := &stubSender{}
	svc := NewService(sender, zerolog.Nop())
	svc.SetGreeting("host_1", "hello friends")

	ev := domain.LivestreamStarted{EntityID: "live_1", HostID: "host_1"}
	if !svc.HandleStarted(context.Background(), ev) {
		t.Fatal("first start must be greeted")
	}
	if svc.HandleStarted(context.Background(), ev) {
		t.Fatal("duplicate start must be ignored")
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.Text != "hello friends" || msg.FeedID != "live_1" || msg.FeedType != domain.FeedTypeLivestream {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestDefaultGreeting(t *testing.T) {
	sender := &stubSender{}
	svc := NewService(sender, zerolog.Nop())
	svc.SetGreeting("host_1", "custom")
	svc.ResetGreeting("host_1")
	if got := svc.Greeting("host_1"); got != DefaultGreeting {
		t.Fatalf("unexpected greeting %q", got)
	}
}

func TestHandleStartedSendFailure(t *testing.T) {
	sender := &stubSender{err: errors.New("down")}
	svc := NewService(sender, zerolog.Nop())
	if svc.HandleStarted(context.Background(), domain.LivestreamStarted{EntityID: "live_2"}) {
		t.Fatal("send failure must report false")
	}
}
