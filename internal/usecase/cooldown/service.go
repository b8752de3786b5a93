package cooldown

import (
	"fmt"
	"sync"
	"time"

	"whop-chat-bot/internal/infra/clock"
)

// MaxPeriod - наибольший период кулдауна, который можно задать во время работы.
const MaxPeriod = 24 * time.Hour

// Status - результат проверки кулдауна.
type Status struct {
	OnCooldown       bool
	RemainingSeconds int
	Formatted        string
}

// Service ограничивает частоту команд пользователя и отдельно частоту
// предупреждений о кулдауне.
type Service struct {
	mu           sync.Mutex
	clock        clock.Clock
	period       time.Duration
	noticePeriod time.Duration
	lastMessage  map[string]time.Time
	lastNotice   map[string]time.Time
}

// NewService создаёт сервис.
func NewService(clk clock.Clock, period, noticePeriod time.Duration) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		clock:        clk,
		period:       period,
		noticePeriod: noticePeriod,
		lastMessage:  make(map[string]time.Time),
		lastNotice:   make(map[string]time.Time),
	}
}

// Check сообщает, находится ли пользователь на кулдауне. Привилегированные
// пользователи не проверяются вовсе.
func (s *Service) Check(userID string, privileged bool) Status {
	if privileged {
		return Status{Formatted: FormatDuration(0)}
	}
	s.mu.Lock()
	last, ok := s.lastMessage[userID]
	period := s.period
	s.mu.Unlock()
	if !ok {
		return Status{Formatted: FormatDuration(0)}
	}

	elapsed := s.clock.Now().Sub(last)
	if elapsed >= period {
		return Status{Formatted: FormatDuration(0)}
	}
	remaining := period - elapsed
	seconds := int((remaining + time.Second - 1) / time.Second)
	return Status{OnCooldown: true, RemainingSeconds: seconds, Formatted: FormatDuration(seconds)}
}

// RecordMessage отмечает время последней команды пользователя.
func (s *Service) RecordMessage(userID string) {
	now := s.clock.Now()
	s.mu.Lock()
	s.lastMessage[userID] = now
	s.mu.Unlock()
}

// ShouldSendNotice сообщает, прошло ли достаточно времени с прошлого предупреждения.
func (s *Service) ShouldSendNotice(userID string) bool {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.noticeDueLocked(userID, now)
}

// RecordNotice отмечает отправку предупреждения.
func (s *Service) RecordNotice(userID string) {
	now := s.clock.Now()
	s.mu.Lock()
	s.lastNotice[userID] = now
	s.mu.Unlock()
}

// ClaimNotice атомарно проверяет и отмечает предупреждение.
func (s *Service) ClaimNotice(userID string) bool {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.noticeDueLocked(userID, now) {
		return false
	}
	s.lastNotice[userID] = now
	return true
}

func (s *Service) noticeDueLocked(userID string, now time.Time) bool {
	last, ok := s.lastNotice[userID]
	if !ok {
		return true
	}
	return now.Sub(last) >= s.noticePeriod
}

// SetPeriod меняет период кулдауна.
func (s *Service) SetPeriod(d time.Duration) {
	s.mu.Lock()
	s.period = d
	s.mu.Unlock()
}

// Period возвращает текущий период кулдауна.
func (s *Service) Period() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period
}

// SetNoticePeriod меняет период подавления предупреждений.
func (s *Service) SetNoticePeriod(d time.Duration) {
	s.mu.Lock()
	s.noticePeriod = d
	s.mu.Unlock()
}

// NoticePeriod возвращает период подавления предупреждений.
func (s *Service) NoticePeriod() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.noticePeriod
}

// FormatDuration выводит секунды в виде «N minutes and M seconds».
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return plural(seconds, "second")
	}
	minutes := seconds / 60
	rest := seconds % 60
	if rest == 0 {
		return plural(minutes, "minute")
	}
	return fmt.Sprintf("%s and %s", plural(minutes, "minute"), plural(rest, "second"))
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
