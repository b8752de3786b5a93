package livestream

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"whop-chat-bot/internal/domain"
)

// DefaultGreeting отправляется, если хост не задал своё приветствие.
const DefaultGreeting = "📢 Welcome to the stream! Thanks for joining us!"

// Service приветствует зрителей при старте трансляции.
type Service struct {
	mu        sync.Mutex
	greetings map[string]string
	seen      *domain.RecentSet
	sender    domain.MessageSender
	log       zerolog.Logger
}

// NewService создаёт сервис.
func NewService(sender domain.MessageSender, logger zerolog.Logger) *Service {
	return &Service{
		greetings: make(map[string]string),
		seen:      domain.NewRecentSet(1000, 500),
		sender:    sender,
		log:       logger,
	}
}

// SetGreeting запоминает приветствие хоста.
func (s *Service) SetGreeting(hostID, message string) {
	s.mu.Lock()
	s.greetings[hostID] = message
	s.mu.Unlock()
}

// Greeting возвращает приветствие хоста или стандартное.
func (s *Service) Greeting(hostID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.greetings[hostID]; ok {
		return msg
	}
	return DefaultGreeting
}

// ResetGreeting возвращает хоста к стандартному приветствию.
func (s *Service) ResetGreeting(hostID string) {
	s.mu.Lock()
	delete(s.greetings, hostID)
	s.mu.Unlock()
}

// HandleStarted отправляет приветствие в ленту трансляции один раз на трансляцию.
func (s *Service) HandleStarted(ctx context.Context, ev domain.LivestreamStarted) bool {
	feedID := ev.LivestreamFeedID()
	if !s.seen.Add(feedID) {
		s.log.Debug().Str("feed", feedID).Msg("трансляция уже обработана")
		return false
	}
	err := s.sender.SendMessage(ctx, domain.OutgoingMessage{
		FeedID:   feedID,
		FeedType: domain.FeedTypeLivestream,
		Text:     s.Greeting(ev.HostID),
	})
	if err != nil {
		s.log.Error().Err(err).Str("feed", feedID).Msg("не удалось отправить приветствие")
		return false
	}
	s.log.Info().Str("feed", feedID).Str("host", ev.HostID).Msg("приветствие отправлено")
	return true
}
