package domain

import (
	"strconv"
	"testing"
)

func TestRecentSetDeduplicates(t *testing.T) {
	set := NewRecentSet(10, 5)
	if !set.Add("post_1") {
		t.Fatal("first add must report new id")
	}
	if set.Add("post_1") {
		t.Fatal("second add must report duplicate")
	}
}

func TestRecentSetTrimsOldest(t *testing.T) {
	set := NewRecentSet(1000, 500)
	for i := 0; i <= 1000; i++ {
		set.Add(strconv.Itoa(i))
	}
	if set.Len() != 500 {
		t.Fatalf("expected 500 entries after trim, got %d", set.Len())
	}
	if set.Contains("0") || set.Contains("500") {
		t.Fatal("oldest ids should be evicted")
	}
	if !set.Contains("501") || !set.Contains("1000") {
		t.Fatal("newest ids should survive")
	}
	if !set.Add("0") {
		t.Fatal("evicted id is accepted again")
	}
}

func TestEventKinds(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{ChatPost{}, "chat_post"},
		{LivestreamStarted{}, "livestream_started"},
		{ConnectionOpened{}, "connection_opened"},
		{ConnectionClosed{Code: 1006}, "connection_closed"},
		{ConnectionError{}, "connection_error"},
	}
	for _, tt := range tests {
		if got := tt.event.Kind(); got != tt.want {
			t.Fatalf("Kind() = %q, want %q", got, tt.want)
		}
	}
}

func TestUserInfoDisplayName(t *testing.T) {
	if got := (UserInfo{ID: "user_1", Name: "Ann"}).DisplayName(); got != "Ann" {
		t.Fatalf("unexpected display name %q", got)
	}
	if got := (UserInfo{ID: "user_1"}).DisplayName(); got != "user_1" {
		t.Fatalf("unexpected display name %q", got)
	}
}
