package poll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/infra/clock"
	"whop-chat-bot/internal/usecase/tasks"
)

const (
	DefaultDurationMinutes = 5
	MinDurationMinutes     = 1
	MaxDurationMinutes     = 1440
)

var (
	ErrDuplicatePoll  = errors.New("poll already exists")
	ErrInvalidOptions = errors.New("poll needs at least 2 options with unique ids")
)

// Option - вариант ответа.
type Option struct {
	ID   string
	Text string
}

// Vote - голос пользователя.
type Vote struct {
	UserID   string
	OptionID string
	At       time.Time
}

// Poll - опрос. Переход Active true → false происходит ровно один раз.
type Poll struct {
	ID        string
	Question  string
	Options   []Option
	Votes     []Vote
	CreatorID string
	FeedID    string
	FeedType  domain.FeedType
	CreatedAt time.Time
	ExpiresAt time.Time
	Active    bool
}

// Result - итог по одному варианту.
type Result struct {
	OptionID   string
	Text       string
	Votes      int
	Percentage float64
}

// CreateRequest описывает новый опрос. Пустой ID будет сгенерирован.
type CreateRequest struct {
	ID              string
	Question        string
	Options         []Option
	CreatorID       string
	FeedID          string
	FeedType        domain.FeedType
	DurationMinutes int
}

// Service управляет опросами и их автоматическим завершением.
type Service struct {
	mu     sync.Mutex
	polls  map[string]*Poll
	tasks  *tasks.Scheduler
	sender domain.MessageSender
	sink   domain.NotificationSink
	clock  clock.Clock
	log    zerolog.Logger
}

// NewService создаёт сервис. sink может быть nil.
func NewService(scheduler *tasks.Scheduler, sender domain.MessageSender, sink domain.NotificationSink, clk clock.Clock, logger zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		polls:  make(map[string]*Poll),
		tasks:  scheduler,
		sender: sender,
		sink:   sink,
		clock:  clk,
		log:    logger,
	}
}

// ClampDuration приводит длительность в минутах к допустимому диапазону.
func ClampDuration(minutes int) int {
	switch {
	case minutes == 0:
		return DefaultDurationMinutes
	case minutes < MinDurationMinutes:
		return MinDurationMinutes
	case minutes > MaxDurationMinutes:
		return MaxDurationMinutes
	default:
		return minutes
	}
}

// Create регистрирует опрос и планирует его завершение.
func (s *Service) Create(req CreateRequest) (Poll, error) {
	if len(req.Options) < 2 {
		return Poll{}, ErrInvalidOptions
	}
	seen := make(map[string]struct{}, len(req.Options))
	for _, opt := range req.Options {
		if _, dup := seen[opt.ID]; dup || opt.ID == "" {
			return Poll{}, ErrInvalidOptions
		}
		seen[opt.ID] = struct{}{}
	}
	minutes := ClampDuration(req.DurationMinutes)

	s.mu.Lock()
	id := req.ID
	if id == "" {
		id = s.newIDLocked()
	} else if _, exists := s.polls[id]; exists {
		s.mu.Unlock()
		return Poll{}, fmt.Errorf("%w: %s", ErrDuplicatePoll, id)
	}
	now := s.clock.Now()
	p := &Poll{
		ID:        id,
		Question:  req.Question,
		Options:   append([]Option(nil), req.Options...),
		CreatorID: req.CreatorID,
		FeedID:    req.FeedID,
		FeedType:  req.FeedType,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(minutes) * time.Minute),
		Active:    true,
	}
	s.polls[id] = p
	snapshot := p.clone()
	s.mu.Unlock()

	s.tasks.ScheduleAt(tasks.Task{
		ID:      taskID(id),
		Name:    "poll auto-end " + id,
		Payload: map[string]string{"poll_id": id, "feed_id": req.FeedID},
	}, snapshot.ExpiresAt, func(ctx context.Context) error {
		s.end(ctx, id, true)
		return nil
	})

	s.log.Info().Str("poll", id).Time("expires_at", snapshot.ExpiresAt).Msg("опрос создан")
	return snapshot, nil
}

// CastVote заменяет голос пользователя. Возвращает false, если опрос не найден,
// уже завершён или вариант неизвестен.
func (s *Service) CastVote(pollID, userID, optionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[pollID]
	if !ok || !p.Active || !p.hasOption(optionID) {
		return false
	}
	kept := p.Votes[:0]
	for _, v := range p.Votes {
		if v.UserID != userID {
			kept = append(kept, v)
		}
	}
	p.Votes = append(kept, Vote{UserID: userID, OptionID: optionID, At: s.clock.Now()})
	return true
}

// Results подсчитывает голоса по вариантам в исходном порядке.
func (s *Service) Results(pollID string) ([]Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[pollID]
	if !ok {
		return nil, false
	}
	return p.results(), true
}

// End завершает опрос. Повторный вызов или неизвестный id возвращают false.
func (s *Service) End(ctx context.Context, pollID string) ([]Result, bool) {
	return s.end(ctx, pollID, false)
}

// end завершает опрос; fromTimer означает вызов из собственной задачи
// автозавершения, которую тогда отменять не нужно.
func (s *Service) end(ctx context.Context, pollID string, fromTimer bool) ([]Result, bool) {
	s.mu.Lock()
	p, ok := s.polls[pollID]
	if !ok || !p.Active {
		s.mu.Unlock()
		return nil, false
	}
	p.Active = false
	results := p.results()
	snapshot := p.clone()
	s.mu.Unlock()

	if !fromTimer {
		s.tasks.Cancel(taskID(pollID))
	}

	sorted := append([]Result(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Votes > sorted[j].Votes })

	feedType := snapshot.FeedType
	if feedType == "" {
		feedType = domain.FeedTypeChat
	}
	if err := s.sender.SendMessage(ctx, domain.OutgoingMessage{
		FeedID:   snapshot.FeedID,
		FeedType: feedType,
		Text:     FormatAnnouncement(snapshot.Question, sorted, len(snapshot.Votes)),
	}); err != nil {
		s.log.Error().Err(err).Str("poll", pollID).Msg("не удалось объявить итоги опроса")
	}
	s.notifyResults(ctx, snapshot, sorted)
	s.log.Info().Str("poll", pollID).Int("votes", len(snapshot.Votes)).Msg("опрос завершён")
	return results, true
}

// EndAll завершает все активные опросы и возвращает их количество.
func (s *Service) EndAll(ctx context.Context) int {
	ended := 0
	for _, p := range s.Active() {
		if _, ok := s.End(ctx, p.ID); ok {
			ended++
		}
	}
	return ended
}

// Get возвращает копию опроса.
func (s *Service) Get(pollID string) (Poll, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[pollID]
	if !ok {
		return Poll{}, false
	}
	return p.clone(), true
}

// Active возвращает активные опросы, старые первыми.
func (s *Service) Active() []Poll {
	s.mu.Lock()
	var out []Poll
	for _, p := range s.polls {
		if p.Active {
			out = append(out, p.clone())
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Recent возвращает последние limit опросов, новые первыми.
func (s *Service) Recent(limit int) []Poll {
	s.mu.Lock()
	out := make([]Poll, 0, len(s.polls))
	for _, p := range s.polls {
		out = append(out, p.clone())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FormatAnnouncement строит текст итогов. results должны быть отсортированы
// по убыванию голосов.
func FormatAnnouncement(question string, results []Result, totalVotes int) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("%s: %d %s (%.1f%%)", r.Text, r.Votes, pluralVotes(r.Votes), r.Percentage))
	}
	return fmt.Sprintf("📊 **Poll Results: %s**\n\n%s\n\n%s\n\nTotal votes: %d",
		question, strings.Join(lines, "\n"), Verdict(results), totalVotes)
}

// Verdict описывает победителя, ничью или отсутствие голосов.
func Verdict(results []Result) string {
	top := 0
	for _, r := range results {
		if r.Votes > top {
			top = r.Votes
		}
	}
	if top == 0 {
		return "No votes were cast."
	}
	var winners []string
	for _, r := range results {
		if r.Votes == top {
			winners = append(winners, r.Text)
		}
	}
	if len(winners) == 1 {
		return "Winner: " + winners[0]
	}
	return "Tie between: " + strings.Join(winners, ", ")
}

func (s *Service) notifyResults(ctx context.Context, p Poll, sorted []Result) {
	if s.sink == nil {
		return
	}
	lines := make([]string, 0, len(sorted))
	for _, r := range sorted {
		lines = append(lines, fmt.Sprintf("%s: %d %s (%.1f%%)", r.Text, r.Votes, pluralVotes(r.Votes), r.Percentage))
	}
	summary := strings.Join(lines, "\n")
	if len(p.Votes) == 0 {
		summary = "No votes were cast."
	}
	err := s.sink.Notify(ctx, domain.Notification{
		Channel:     domain.ChannelPoll,
		Title:       "📊 Poll Results",
		Description: p.Question,
		Color:       domain.ColorGreen,
		Fields: []domain.NotificationField{
			{Name: "Results", Value: summary},
			{Name: "Total Votes", Value: fmt.Sprintf("%d", len(p.Votes)), Inline: true},
			{Name: "Poll ID", Value: p.ID, Inline: true},
		},
		Timestamp: s.clock.Now(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("poll", p.ID).Msg("уведомление об итогах опроса не доставлено")
	}
}

func (s *Service) newIDLocked() string {
	for {
		id := uuid.NewString()[:8]
		if _, exists := s.polls[id]; !exists {
			return id
		}
	}
}

func (p *Poll) hasOption(id string) bool {
	for _, opt := range p.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

func (p *Poll) results() []Result {
	total := len(p.Votes)
	counts := make(map[string]int, len(p.Options))
	for _, v := range p.Votes {
		counts[v.OptionID]++
	}
	out := make([]Result, 0, len(p.Options))
	for _, opt := range p.Options {
		n := counts[opt.ID]
		pct := 0.0
		if total > 0 {
			pct = float64(n) / float64(total) * 100
		}
		out = append(out, Result{OptionID: opt.ID, Text: opt.Text, Votes: n, Percentage: pct})
	}
	return out
}

func (p *Poll) clone() Poll {
	c := *p
	c.Options = append([]Option(nil), p.Options...)
	c.Votes = append([]Vote(nil), p.Votes...)
	return c
}

func pluralVotes(n int) string {
	if n == 1 {
		return "vote"
	}
	return "votes"
}

func taskID(pollID string) string {
	return "poll:" + pollID
}
