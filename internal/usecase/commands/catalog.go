package commands

import (
	"context"
	"fmt"
	"math/rand"
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

// Deps - сервисы, которыми пользуются команды.
type Deps struct {
	Platform          domain.PlatformAPI
	Notifier          domain.NotificationSink
	Cooldown          *cooldown.Service
	CooldownWhitelist *whitelist.Registry
	AdminWhitelist    *whitelist.Registry
	Polls             *poll.Service
	Schedules         *schedule.Service
	Tasks             *tasks.Scheduler
	Livestream        *livestream.Service
	Retry             retry.Policy
	Clock             clock.Clock
	// AnnouncementFeedID - лента, куда /announce публикует объявления.
	AnnouncementFeedID string
	// Intn выбирает случайный ответ для /new; по умолчанию math/rand.
	Intn func(n int) int
	Log  zerolog.Logger
}

type catalog struct {
	Deps
}

// BuildRegistry собирает полный набор команд бота.
func BuildRegistry(deps Deps) (*Registry, error) {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Intn == nil {
		deps.Intn = rand.Intn
	}
	c := &catalog{Deps: deps}

	defs := []Definition{c.help(), c.newcomer()}
	defs = append(defs, staticDefinitions()...)
	defs = append(defs,
		c.ban(), c.unban(), c.mute(), c.unmute(), c.kick(),
		c.pollCommand(), c.vote(), c.endPolls(),
		c.scheduleCommand(), c.remindMe(),
		c.cooldownCommand(), c.whitelistCommand(), c.adminWhitelistCommand(),
		c.newLive(), c.announce(), c.transcript(), c.purge(),
		c.earnings(), c.referrals(), c.affiliateLink(), c.addFreeDays(),
	)
	return NewRegistry(defs...)
}

// notify отправляет уведомление с повтором по политике. Ошибка только логируется.
func (c *catalog) notify(ctx context.Context, n domain.Notification) {
	if c.Notifier == nil {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = c.Clock.Now()
	}
	err := c.Retry.Do(ctx, func(ctx context.Context) error {
		return c.Notifier.Notify(ctx, n)
	}, func(err error, wait time.Duration) {
		c.Log.Warn().Err(err).Str("channel", string(n.Channel)).Dur("wait", wait).Msg("повтор отправки уведомления")
	})
	if err != nil {
		c.Log.Error().Err(err).Str("channel", string(n.Channel)).Msg("уведомление не доставлено")
	}
}

// logFailure - общий хук ошибки: карточка в канал логов.
func (c *catalog) logFailure(title string, fields ...domain.NotificationField) func(ctx context.Context, res Result, env Env) error {
	return func(ctx context.Context, res Result, env Env) error {
		if res.SkipWebhook || c.Notifier == nil {
			return nil
		}
		all := append([]domain.NotificationField{
			{Name: "Invoked by", Value: env.UserID, Inline: true},
			{Name: "Feed", Value: env.FeedID, Inline: true},
		}, fields...)
		return c.Notifier.Notify(ctx, domain.Notification{
			Channel:     domain.ChannelLog,
			Title:       title,
			Description: res.Message,
			Color:       domain.ColorRed,
			Fields:      all,
			Timestamp:   c.Clock.Now(),
		})
	}
}

// userInfo возвращает данные пользователя, при ошибке только id.
func (c *catalog) userInfo(ctx context.Context, userID string) domain.UserInfo {
	info, err := c.Platform.GetUser(ctx, userID)
	if err != nil {
		c.Log.Warn().Err(err).Str("user", userID).Msg("не удалось получить данные пользователя")
		return domain.UserInfo{ID: userID}
	}
	if info.ID == "" {
		info.ID = userID
	}
	return info
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
