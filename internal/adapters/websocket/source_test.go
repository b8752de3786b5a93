package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"whop-chat-bot/internal/domain"
)

const postFrame = `{"feedEntity":{"dmsPost":{"entityId":"post_1","feedId":"feed_1","feedType":"chat_feed","userId":"user_a",
"user":{"username":"alice"},"content":"/help","createdAt":"1735689600000","isPosterAdmin":true,"mentionedUserIds":["user_b"]}}}`

func TestDecode(t *testing.T) {
	ev, ok, err := Decode([]byte(postFrame))
	if err != nil || !ok {
		t.Fatalf("decode post: ok=%v err=%v", ok, err)
	}
	post, isPost := ev.(domain.ChatPost)
	if !isPost {
		t.Fatalf("unexpected event %T", ev)
	}
	if post.EntityID != "post_1" || post.Username != "alice" || !post.IsPosterAdmin || len(post.MentionedUserIDs) != 1 {
		t.Fatalf("unexpected post %+v", post)
	}
	if !post.CreatedAt.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected createdAt %v", post.CreatedAt)
	}

	live := `{"feedEntity":{"livestreamFeed":{"entityId":"live_1","hostId":"user_h","experienceId":"exp_1","startedAt":1735689600000}}}`
	ev, ok, err = Decode([]byte(live))
	if err != nil || !ok {
		t.Fatalf("decode livestream: ok=%v err=%v", ok, err)
	}
	if ls, _ := ev.(domain.LivestreamStarted); ls.LivestreamFeedID() != "live_1" || ls.HostID != "user_h" {
		t.Fatalf("unexpected livestream %+v", ev)
	}

	for _, noise := range []string{
		`{"broadcastResponse":{"typingIndicator":{}}}`,
		`{"feedEntity":{"postReactionCountUpdate":{"count":2}}}`,
		`{"goFetchNotifications":true}`,
	} {
		if _, ok, err := Decode([]byte(noise)); ok || err != nil {
			t.Fatalf("noise %s: ok=%v err=%v", noise, ok, err)
		}
	}

	if _, _, err := Decode([]byte("not json")); err == nil {
		t.Fatalf("expected error for malformed frame")
	}
}

func TestDecodeToleratesOddTimestamps(t *testing.T) {
	cases := []struct {
		createdAt string
		want      time.Time
	}{
		{createdAt: `"soon"`, want: time.Time{}},
		{createdAt: `{"ms":1}`, want: time.Time{}},
		{createdAt: `null`, want: time.Time{}},
		{createdAt: `1735689600000`, want: time.UnixMilli(1735689600000).UTC()},
		{createdAt: `"2025-01-01T00:00:00Z"`, want: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		frame := `{"feedEntity":{"dmsPost":{"entityId":"post_1","feedId":"feed_1","feedType":"chat_feed","userId":"user_a",
"content":"/help","createdAt":` + tc.createdAt + `}}}`
		ev, ok, err := Decode([]byte(frame))
		if err != nil || !ok {
			t.Fatalf("%s: ok=%v err=%v", tc.createdAt, ok, err)
		}
		post := ev.(domain.ChatPost)
		if post.Content != "/help" || !post.CreatedAt.Equal(tc.want) {
			t.Fatalf("%s: unexpected post %+v", tc.createdAt, post)
		}
	}
}

func TestSourceDeliversEventsWithAuthHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"goFetchNotifications":true}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(postFrame))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	src := NewSource(Config{
		URL:               "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey:            "secret",
		AgentUserID:       "user_agent",
		ReconnectInterval: 10 * time.Millisecond,
		ReconnectAttempts: 1,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := make(chan domain.Event, 8)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	if _, ok := (<-out).(domain.ConnectionOpened); !ok {
		t.Fatalf("first event must be ConnectionOpened")
	}
	ev := <-out
	if post, ok := ev.(domain.ChatPost); !ok || post.EntityID != "post_1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	h := <-headers
	if h.Get("Authorization") != "Bearer secret" || h.Get("X-On-Behalf-Of") != "user_agent" {
		t.Fatalf("unexpected headers %v", h)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
}

func TestSourceGivesUpAfterAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := NewSource(Config{
		URL:               "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectInterval: time.Millisecond,
		ReconnectAttempts: 2,
	}, zerolog.Nop())

	out := make(chan domain.Event, 8)
	err := src.Run(context.Background(), out)
	if !errors.Is(err, ErrReconnectExhausted) {
		t.Fatalf("expected ErrReconnectExhausted, got %v", err)
	}
	close(out)
	failures := 0
	for ev := range out {
		if _, ok := ev.(domain.ConnectionError); ok {
			failures++
		}
	}
	if failures != 3 {
		t.Fatalf("connection errors = %d, want 3", failures)
	}
}
