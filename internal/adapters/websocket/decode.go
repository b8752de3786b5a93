package websocket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"whop-chat-bot/internal/domain"
)

// envelope - интересующая нас часть сообщения потока.
type envelope struct {
	FeedEntity *struct {
		DMsPost        *postPayload       `json:"dmsPost"`
		LivestreamFeed *livestreamPayload `json:"livestreamFeed"`
	} `json:"feedEntity"`
}

type postPayload struct {
	EntityID string `json:"entityId"`
	FeedID   string `json:"feedId"`
	FeedType string `json:"feedType"`
	UserID   string `json:"userId"`
	User     struct {
		Username string `json:"username"`
	} `json:"user"`
	Content          string   `json:"content"`
	CreatedAt        millis   `json:"createdAt"`
	IsPosterAdmin    bool     `json:"isPosterAdmin"`
	MentionedUserIDs []string `json:"mentionedUserIds"`
}

type livestreamPayload struct {
	EntityID     string `json:"entityId"`
	HostID       string `json:"hostId"`
	ExperienceID string `json:"experienceId"`
	Title        string `json:"title"`
	StartedAt    millis `json:"startedAt"`
}

// millis - unix-время в миллисекундах, строкой или числом. Нечитаемое значение
// даёт нулевое время: из-за метки кадр не теряется.
type millis time.Time

func (m *millis) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*m = millis(time.UnixMilli(ms).UTC())
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		*m = millis(t.UTC())
		return nil
	}
	*m = millis(time.Time{})
	return nil
}

// Decode превращает кадр потока в событие. ok=false для шумовых сообщений:
// индикаторов набора, счётчиков реакций, уведомлений и прочего.
func Decode(data []byte) (ev domain.Event, ok bool, err error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false, err
	}
	if env.FeedEntity == nil {
		return nil, false, nil
	}
	if live := env.FeedEntity.LivestreamFeed; live != nil && live.EntityID != "" {
		return domain.LivestreamStarted{
			EntityID:     live.EntityID,
			HostID:       live.HostID,
			ExperienceID: live.ExperienceID,
			Title:        live.Title,
			StartedAt:    time.Time(live.StartedAt),
		}, true, nil
	}
	if post := env.FeedEntity.DMsPost; post != nil && post.EntityID != "" {
		feedType := domain.FeedType(post.FeedType)
		if feedType == "" {
			feedType = domain.FeedTypeChat
		}
		return domain.ChatPost{
			EntityID:         post.EntityID,
			FeedID:           post.FeedID,
			FeedType:         feedType,
			UserID:           post.UserID,
			Username:         post.User.Username,
			Content:          post.Content,
			CreatedAt:        time.Time(post.CreatedAt),
			IsPosterAdmin:    post.IsPosterAdmin,
			MentionedUserIDs: post.MentionedUserIDs,
		}, true, nil
	}
	return nil, false, nil
}
