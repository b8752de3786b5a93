package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/usecase/whitelist"
)

type echo struct {
	parsed   int
	executed int
	hooked   []Result
}

func echoDefinition(p *echo, adminOnly bool, parse func(string, []string) (string, error), exec func(context.Context, string, Env) (Result, error)) Definition {
	return Define(Spec[string]{
		Name:      "echo",
		Usage:     "/echo <arg>",
		AdminOnly: adminOnly,
		Parse: func(raw string, mentions []string) (string, error) {
			p.parsed++
			if parse != nil {
				return parse(raw, mentions)
			}
			return argsText(raw), nil
		},
		Exec: func(ctx context.Context, arg string, env Env) (Result, error) {
			p.executed++
			return exec(ctx, arg, env)
		},
		OnFailure: func(_ context.Context, res Result, _ Env, _ string) error {
			p.hooked = append(p.hooked, res)
			return nil
		},
	})
}

func newEchoDispatcher(t *testing.T, def Definition, admins *whitelist.Registry) (*Dispatcher, *stubPlatform) {
	t.Helper()
	registry, err := NewRegistry(def)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	platform := &stubPlatform{}
	return NewDispatcher("/", registry, admins, platform, zerolog.Nop()), platform
}

func invoke(d *Dispatcher, raw, userID string, admin bool) Result {
	return d.Execute(context.Background(), Invocation{Raw: raw, UserID: userID, FeedID: "feed_1", FeedType: domain.FeedTypeChat, IsAdmin: admin})
}

func okExec(ctx context.Context, arg string, env Env) (Result, error) {
	return env.replyResult(ctx, true, "ok "+arg, "ok", false)
}

func TestUnknownCommand(t *testing.T) {
	p := &echo{}
	d, platform := newEchoDispatcher(t, echoDefinition(p, false, nil, okExec), nil)

	res := invoke(d, "/nope", "user_1", false)
	if res.Success || res.Message != unknownMessage {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(platform.messages()) != 0 {
		t.Fatalf("unknown command must not reply")
	}
	if d.IsKnown("/nope") || !d.IsKnown("/ECHO x") || d.IsKnown("echo") {
		t.Fatalf("IsKnown mismatch")
	}
}

func TestAdminOnlyNeverReachesParser(t *testing.T) {
	p := &echo{}
	parse := func(string, []string) (string, error) {
		panic("parser must not run")
	}
	d, platform := newEchoDispatcher(t, echoDefinition(p, true, parse, okExec), whitelist.New("admin", nil))

	res := invoke(d, "/echo anything", "user_1", false)
	if res.Success || !res.MessageSent {
		t.Fatalf("expected denied result, got %+v", res)
	}
	if p.parsed != 0 || p.executed != 0 {
		t.Fatalf("parser or executor ran: parsed=%d executed=%d", p.parsed, p.executed)
	}
	if platform.last() != restrictedMessage {
		t.Fatalf("unexpected reply %q", platform.last())
	}
	if len(p.hooked) != 0 {
		t.Fatalf("permission denial must not call the failure hook")
	}
}

func TestAdminWhitelistGrantsPrivilege(t *testing.T) {
	p := &echo{}
	admins := whitelist.New("admin", []string{"user_2"})
	d, platform := newEchoDispatcher(t, echoDefinition(p, true, nil, func(ctx context.Context, arg string, env Env) (Result, error) {
		if !env.IsAdmin {
			t.Fatalf("whitelisted caller must be privileged")
		}
		return okExec(ctx, arg, env)
	}), admins)

	res := invoke(d, "/echo hi", "user_2", false)
	if !res.Success || platform.last() != "ok hi" {
		t.Fatalf("unexpected result %+v reply %q", res, platform.last())
	}
}

func TestParseErrorText(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "usage error", err: &UsageError{Message: "Need a number"}, want: "Need a number"},
		{name: "plain error", err: errors.New("boom"), want: "Usage: /echo <arg>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &echo{}
			parse := func(string, []string) (string, error) { return "", tc.err }
			d, platform := newEchoDispatcher(t, echoDefinition(p, false, parse, okExec), nil)

			res := invoke(d, "/echo", "user_1", false)
			if res.Success || res.Message != "Failed to parse command arguments" {
				t.Fatalf("unexpected result %+v", res)
			}
			if p.executed != 0 {
				t.Fatalf("executor ran after parse failure")
			}
			if platform.last() != tc.want {
				t.Fatalf("reply %q, want %q", platform.last(), tc.want)
			}
		})
	}
}

func TestExecErrorCallsHook(t *testing.T) {
	p := &echo{}
	d, platform := newEchoDispatcher(t, echoDefinition(p, false, nil, func(context.Context, string, Env) (Result, error) {
		return Result{}, errors.New("api down")
	}), nil)

	res := invoke(d, "/echo", "user_1", false)
	if res.Success || res.Message != "api down" {
		t.Fatalf("unexpected result %+v", res)
	}
	if platform.last() != "Error: api down" {
		t.Fatalf("unexpected reply %q", platform.last())
	}
	if len(p.hooked) != 1 {
		t.Fatalf("hook calls = %d, want 1", len(p.hooked))
	}
}

func TestExecPanicIsRecovered(t *testing.T) {
	p := &echo{}
	d, platform := newEchoDispatcher(t, echoDefinition(p, false, nil, func(context.Context, string, Env) (Result, error) {
		panic("kaboom")
	}), nil)

	res := invoke(d, "/echo", "user_1", false)
	if res.Success || platform.last() != "Error: unexpected error: kaboom" {
		t.Fatalf("unexpected result %+v reply %q", res, platform.last())
	}
	if len(p.hooked) != 1 {
		t.Fatalf("hook calls = %d, want 1", len(p.hooked))
	}
}

func TestFailureHookRespectsSkipWebhook(t *testing.T) {
	p := &echo{}
	d, _ := newEchoDispatcher(t, echoDefinition(p, false, nil, func(ctx context.Context, _ string, env Env) (Result, error) {
		if env.UserID == "user_skip" {
			return env.userError(ctx, "nope", "expected")
		}
		return Result{Success: false, Message: "unexpected"}, nil
	}), nil)

	invoke(d, "/echo", "user_skip", false)
	if len(p.hooked) != 0 {
		t.Fatalf("skipWebhook result must not call the hook")
	}
	invoke(d, "/echo", "user_other", false)
	if len(p.hooked) != 1 || p.hooked[0].Message != "unexpected" {
		t.Fatalf("hook calls %+v", p.hooked)
	}
}

func TestHookPanicIsContained(t *testing.T) {
	def := Define(Spec[noArgs]{
		Name: "echo",
		Exec: func(context.Context, noArgs, Env) (Result, error) {
			return Result{Success: false, Message: "failed"}, nil
		},
		OnFailure: func(context.Context, Result, Env, noArgs) error {
			panic("hook exploded")
		},
	})
	d, _ := newEchoDispatcher(t, def, nil)

	res := invoke(d, "/echo", "user_1", false)
	if res.Success || res.Message != "failed" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	p := &echo{}
	def := echoDefinition(p, false, nil, okExec)
	if _, err := NewRegistry(def, def); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := NewRegistry(Define(Spec[noArgs]{Exec: func(context.Context, noArgs, Env) (Result, error) { return Result{}, nil }})); err == nil {
		t.Fatalf("expected empty name error")
	}
}

func TestCommandNameIsCaseInsensitive(t *testing.T) {
	p := &echo{}
	d, platform := newEchoDispatcher(t, echoDefinition(p, false, nil, okExec), nil)

	invoke(d, "/PrObE x", "user_1", false)
	if p.executed != 1 || platform.last() != "ok x" {
		t.Fatalf("executed=%d reply=%q", p.executed, platform.last())
	}
	if name, ok := d.CommandName("hello"); ok || name != "" {
		t.Fatalf("text without prefix is not a command")
	}
}
