package domain

import (
	"context"
	"time"
)

// MessageSender отправляет сообщения в ленты.
type MessageSender interface {
	SendMessage(ctx context.Context, msg OutgoingMessage) error
}

// DirectMessenger открывает личный канал с пользователем.
type DirectMessenger interface {
	CreateDMChannel(ctx context.Context, userID string) (string, error)
}

// UserDirectory возвращает публичные данные пользователя.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (UserInfo, error)
}

// Moderator выполняет модерационные действия над пользователем.
type Moderator interface {
	Ban(ctx context.Context, userID string) (ModerationOutcome, error)
	Unban(ctx context.Context, userID string) (ModerationOutcome, error)
	Mute(ctx context.Context, userID string, until time.Time) (ModerationOutcome, error)
	Unmute(ctx context.Context, userID string) (ModerationOutcome, error)
	Kick(ctx context.Context, userID string) (ModerationOutcome, error)
}

// AccountStats отдаёт статистику аккаунта.
type AccountStats interface {
	GetEarnings(ctx context.Context, userID string) ([]EarningsReport, error)
	GetReferrals(ctx context.Context, userID string) (int, error)
}

// FeedHistory читает и удаляет сообщения ленты.
type FeedHistory interface {
	ListFeedPosts(ctx context.Context, feedID string, feedType FeedType, limit int) ([]FeedPost, error)
	DeletePosts(ctx context.Context, feedID string, feedType FeedType, postIDs []string) error
}

// Memberships управляет подписками пользователей.
type Memberships interface {
	AddFreeDays(ctx context.Context, feedID, userID string, days int) (FreeDaysResult, error)
}

// Products отдаёт продукты, привязанные к ленте.
type Products interface {
	FeedAccessPasses(ctx context.Context, feedID string) ([]AccessPass, error)
}

// PlatformAPI - полный набор возможностей удалённого API платформы.
type PlatformAPI interface {
	MessageSender
	DirectMessenger
	UserDirectory
	Moderator
	AccountStats
	FeedHistory
	Memberships
	Products
}

// NotificationSink доставляет уведомления во внешние каналы.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// EventSource поставляет события платформы, пока не отменён ctx.
type EventSource interface {
	Run(ctx context.Context, out chan<- Event) error
}
