package bot

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/infra/metrics"
	"whop-chat-bot/internal/usecase/commands"
	"whop-chat-bot/internal/usecase/cooldown"
	"whop-chat-bot/internal/usecase/livestream"
)

const (
	recentLimit = 1000
	recentKeep  = 500
)

// Membership проверяет наличие пользователя в белом списке.
type Membership interface {
	Contains(id string) bool
}

// Handler разбирает события потока и передаёт команды диспетчеру.
type Handler struct {
	dispatcher *commands.Dispatcher
	cooldown   *cooldown.Service
	exempt     Membership
	greeter    *livestream.Service
	sender     domain.MessageSender
	seen       *domain.RecentSet
	log        zerolog.Logger
	onResult   func(domain.ChatPost, commands.Result)
}

// NewHandler создаёт обработчик событий. exempt - белый список кулдауна.
func NewHandler(dispatcher *commands.Dispatcher, cd *cooldown.Service, exempt Membership, greeter *livestream.Service, sender domain.MessageSender, log zerolog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		cooldown:   cd,
		exempt:     exempt,
		greeter:    greeter,
		sender:     sender,
		seen:       domain.NewRecentSet(recentLimit, recentKeep),
		log:        log,
	}
}

// OnResult регистрирует наблюдателя за выполненными командами.
func (h *Handler) OnResult(fn func(domain.ChatPost, commands.Result)) {
	h.onResult = fn
}

// Run обрабатывает события по порядку, пока канал открыт или не отменён ctx.
func (h *Handler) Run(ctx context.Context, events <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			h.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent обрабатывает одно событие.
func (h *Handler) HandleEvent(ctx context.Context, ev domain.Event) {
	metrics.EventsReceived.WithLabelValues(ev.Kind()).Inc()
	switch e := ev.(type) {
	case domain.ChatPost:
		h.handlePost(ctx, e)
	case domain.LivestreamStarted:
		if h.greeter != nil && h.greeter.HandleStarted(ctx, e) {
			h.log.Info().Str("livestream", e.EntityID).Str("host", e.HostID).Msg("приветствие трансляции отправлено")
		}
	case domain.ConnectionOpened:
		h.log.Info().Msg("поток событий подключён")
	case domain.ConnectionClosed:
		h.log.Warn().Int("code", e.Code).Str("reason", e.Reason).Msg("поток событий закрыт")
	case domain.ConnectionError:
		h.log.Error().Err(e.Err).Msg("ошибка потока событий")
	}
}

func (h *Handler) handlePost(ctx context.Context, post domain.ChatPost) {
	if post.EntityID != "" && !h.seen.Add(post.EntityID) {
		metrics.EventsDuplicate.Inc()
		h.log.Debug().Str("post", post.EntityID).Msg("повторный пост пропущен")
		return
	}
	// Команда начинается строго с префикса: ведущий пробел делает текст обычным сообщением.
	content := strings.TrimRightFunc(post.Content, unicode.IsSpace)
	if !h.dispatcher.IsKnown(content) {
		if strings.HasPrefix(content, h.dispatcher.Prefix()) {
			h.log.Debug().Str("content", content).Msg("неизвестная команда проигнорирована")
		}
		return
	}
	if post.FeedType == "" {
		post.FeedType = domain.FeedTypeChat
	}

	privileged := post.IsPosterAdmin ||
		(h.exempt != nil && h.exempt.Contains(post.UserID)) ||
		h.dispatcher.HasPrivilege(post.UserID, false)
	status := h.cooldown.Check(post.UserID, privileged)
	if status.OnCooldown {
		metrics.CooldownRejections.Inc()
		h.log.Info().Str("user", post.UserID).Int("remaining", status.RemainingSeconds).Msg("команда отклонена кулдауном")
		if h.cooldown.ClaimNotice(post.UserID) {
			h.notice(ctx, post, status)
		}
		return
	}
	h.cooldown.RecordMessage(post.UserID)

	res := h.dispatcher.Execute(ctx, commands.Invocation{
		Raw:      content,
		UserID:   post.UserID,
		FeedID:   post.FeedID,
		FeedType: post.FeedType,
		IsAdmin:  post.IsPosterAdmin,
		Mentions: post.MentionedUserIDs,
	})
	if h.onResult != nil {
		h.onResult(post, res)
	}
}

func (h *Handler) notice(ctx context.Context, post domain.ChatPost, status cooldown.Status) {
	err := h.sender.SendMessage(ctx, domain.OutgoingMessage{
		FeedID:   post.FeedID,
		FeedType: post.FeedType,
		Text:     CooldownNotice(status),
	})
	if err != nil {
		metrics.BotSendErrors.Inc()
		h.log.Error().Err(err).Str("user", post.UserID).Msg("не удалось отправить предупреждение о кулдауне")
	}
}

// CooldownNotice формирует предупреждение о кулдауне.
func CooldownNotice(status cooldown.Status) string {
	return fmt.Sprintf("Please wait %s before sending another command.", status.Formatted)
}
