package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"whop-chat-bot/internal/domain"
)

func TestNotifyPostsEmbed(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewSink(map[string]string{"moderation": srv.URL}, zerolog.Nop())
	err := sink.Notify(context.Background(), domain.Notification{
		Channel:   domain.ChannelModeration,
		Title:     "Member Banned",
		Color:     domain.ColorRed,
		Fields:    []domain.NotificationField{{Name: "User", Value: "bob", Inline: true}, {Name: "Reason", Value: ""}},
		Footer:    "whop",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(got.Embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(got.Embeds))
	}
	e := got.Embeds[0]
	if e.Title != "Member Banned" || e.Color != domain.ColorRed || e.Timestamp != "2024-01-02T03:04:05Z" {
		t.Fatalf("unexpected embed %#v", e)
	}
	if len(e.Fields) != 2 || !e.Fields[0].Inline || e.Fields[1].Value != "-" {
		t.Fatalf("unexpected fields %#v", e.Fields)
	}
	if e.Footer == nil || e.Footer.Text != "whop" {
		t.Fatalf("unexpected footer %#v", e.Footer)
	}
}

func TestNotifyUnknownChannelIsPermanent(t *testing.T) {
	sink := NewSink(map[string]string{}, zerolog.Nop())
	err := sink.Notify(context.Background(), domain.Notification{Channel: domain.ChannelPoll})
	if !errors.Is(err, domain.ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
	var perm *backoff.PermanentError
	if !errors.As(err, &perm) {
		t.Fatalf("expected permanent error, got %T", err)
	}
}

func TestNotifyStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusTooManyRequests, false},
		{http.StatusBadGateway, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		sink := NewSink(map[string]string{"log": srv.URL}, zerolog.Nop())
		err := sink.Notify(context.Background(), domain.Notification{Channel: domain.ChannelLog, Title: "x"})
		srv.Close()
		if err == nil || !strings.Contains(err.Error(), "nope") {
			t.Fatalf("status %d: unexpected error %v", tc.status, err)
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) != tc.permanent {
			t.Fatalf("status %d: permanent=%v, want %v", tc.status, !tc.permanent, tc.permanent)
		}
	}
}

func TestEmbedTruncatesLongText(t *testing.T) {
	e := toEmbed(domain.Notification{
		Title:       strings.Repeat("t", 300),
		Description: strings.Repeat("d", 5000),
	})
	if n := len([]rune(e.Title)); n != titleLimit {
		t.Fatalf("title length %d", n)
	}
	if n := len([]rune(e.Description)); n != descriptionLimit {
		t.Fatalf("description length %d", n)
	}
	if !strings.HasSuffix(e.Description, "…") {
		t.Fatalf("truncated text should end with ellipsis")
	}
}
