package domain

import (
	"errors"
	"time"
)

// FeedType описывает вид ленты чата на платформе.
type FeedType string

const (
	FeedTypeChat       FeedType = "chat_feed"
	FeedTypeDM         FeedType = "dms_feed"
	FeedTypeLivestream FeedType = "livestream_feed"
)

// Session идентифицирует автора команды и ленту, в которой она прозвучала.
type Session struct {
	UserID   string
	FeedID   string
	FeedType FeedType
}

// OutgoingMessage - сообщение, которое бот отправляет в ленту.
type OutgoingMessage struct {
	FeedID   string
	FeedType FeedType
	Text     string
}

// UserInfo содержит публичные данные пользователя платформы.
type UserInfo struct {
	ID         string
	Username   string
	Name       string
	ProfilePic string
	CreatedAt  time.Time
}

// DisplayName возвращает username, имя или id, что найдётся первым.
func (u UserInfo) DisplayName() string {
	switch {
	case u.Username != "":
		return u.Username
	case u.Name != "":
		return u.Name
	default:
		return u.ID
	}
}

// ModerationOutcome сообщает, изменила ли модерация состояние пользователя.
type ModerationOutcome int

const (
	ModerationApplied ModerationOutcome = iota
	ModerationAlreadyInState
)

// EarningsReport - срез заработка пользователя по одному типу дохода.
type EarningsReport struct {
	Type       string
	Last24h    float64
	Last7Days  float64
	Last30Days float64
	Lifetime   float64
}

// FeedPost - сообщение ленты, полученное из истории.
type FeedPost struct {
	ID        string
	UserID    string
	Username  string
	Content   string
	CreatedAt time.Time
}

// FreeDaysResult описывает результат начисления бесплатных дней.
type FreeDaysResult struct {
	MembershipID   string
	ExperienceName string
	Username       string
	ExpiresAt      time.Time
}

// AccessPass - продаваемый продукт, открывающий доступ к experience.
type AccessPass struct {
	ID    string
	Title string
	Route string
}

// NotifyChannel - именованный канал внешних уведомлений.
type NotifyChannel string

const (
	ChannelModeration     NotifyChannel = "moderation"
	ChannelPoll           NotifyChannel = "poll"
	ChannelLog            NotifyChannel = "log"
	ChannelContentRewards NotifyChannel = "content_rewards"
)

// Цвета карточек уведомлений.
const (
	ColorRed    = 0xE74C3C
	ColorOrange = 0xE67E22
	ColorGreen  = 0x2ECC71
	ColorBlue   = 0x3498DB
	ColorGrey   = 0x95A5A6
)

// NotificationField - строка «ключ: значение» в карточке уведомления.
type NotificationField struct {
	Name   string
	Value  string
	Inline bool
}

// Notification - структурированное уведомление для внешнего канала.
type Notification struct {
	Channel     NotifyChannel
	Title       string
	Description string
	Color       int
	Fields      []NotificationField
	Footer      string
	Timestamp   time.Time
}

var (
	// ErrNoMembership возвращается, если у пользователя нет подписки на продукт ленты.
	ErrNoMembership = errors.New("membership not found")
	// ErrNoExperience возвращается, если лента не привязана к experience.
	ErrNoExperience = errors.New("feed has no experience")
	// ErrUnknownChannel возвращается при уведомлении в ненастроенный канал.
	ErrUnknownChannel = errors.New("unknown notification channel")
	// ErrNotConfigured означает, что для операции не задана нужная настройка.
	ErrNotConfigured = errors.New("not configured")
)
