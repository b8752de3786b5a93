package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/infra/clock"
	"whop-chat-bot/internal/usecase/tasks"
)

const (
	// MaxMessageLength - предел длины повторяемого сообщения в символах.
	MaxMessageLength = 500
	// MaxPerFeed - предел активных расписаний в одной ленте.
	MaxPerFeed = 10
	// MaxInterval - наибольший допустимый интервал.
	MaxInterval = 7 * 24 * time.Hour
)

var (
	ErrMessageTooLong   = errors.New("message too long")
	ErrTooManySchedules = errors.New("too many schedules")
	ErrInvalidInterval  = errors.New("invalid interval")
	ErrIntervalTooLarge = errors.New("interval too large")
)

// Unit - единица интервала.
type Unit string

const (
	UnitMinute Unit = "m"
	UnitHour   Unit = "h"
	UnitDay    Unit = "d"
)

// Duration переводит значение в длительность. Значения сверх MaxInterval
// отсекаются до умножения, чтобы int64 не переполнился.
func (u Unit) Duration(value int) (time.Duration, error) {
	if value <= 0 {
		return 0, ErrInvalidInterval
	}
	var step time.Duration
	switch u {
	case UnitMinute:
		step = time.Minute
	case UnitHour:
		step = time.Hour
	case UnitDay:
		step = 24 * time.Hour
	default:
		return 0, ErrInvalidInterval
	}
	if int64(value) > int64(MaxInterval/step) {
		return 0, ErrIntervalTooLarge
	}
	return time.Duration(value) * step, nil
}

// Describe возвращает «N minute(s)» и аналоги.
func (u Unit) Describe(value int) string {
	name := map[Unit]string{UnitMinute: "minute", UnitHour: "hour", UnitDay: "day"}[u]
	if value == 1 {
		return fmt.Sprintf("%d %s", value, name)
	}
	return fmt.Sprintf("%d %ss", value, name)
}

// Request описывает новое повторяющееся сообщение.
type Request struct {
	FeedID   string
	FeedType domain.FeedType
	OwnerID  string
	Message  string
	Interval int
	Unit     Unit
}

// Job - активное повторяющееся сообщение.
type Job struct {
	ID        string
	FeedID    string
	FeedType  domain.FeedType
	OwnerID   string
	Message   string
	Interval  int
	Unit      Unit
	Every     time.Duration
	CreatedAt time.Time
}

// Service хранит повторяющиеся сообщения лент поверх планировщика задач.
type Service struct {
	mu     sync.Mutex
	tasks  *tasks.Scheduler
	sender domain.MessageSender
	clock  clock.Clock
	log    zerolog.Logger
	jobs   map[string]Job
}

// NewService создаёт сервис.
func NewService(scheduler *tasks.Scheduler, sender domain.MessageSender, clk clock.Clock, logger zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		tasks:  scheduler,
		sender: sender,
		clock:  clk,
		log:    logger,
		jobs:   make(map[string]Job),
	}
}

// Schedule создаёт повторяющееся сообщение. Проверки идут в порядке: длина
// сообщения, лимит ленты, корректность и величина интервала.
func (s *Service) Schedule(req Request) (Job, error) {
	if utf8.RuneCountInString(req.Message) > MaxMessageLength {
		return Job{}, ErrMessageTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.countLocked(req.FeedID) >= MaxPerFeed {
		return Job{}, ErrTooManySchedules
	}
	every, err := req.Unit.Duration(req.Interval)
	if err != nil {
		return Job{}, err
	}

	now := s.clock.Now()
	id := s.newIDLocked(req.FeedID, now)
	job := Job{
		ID:        id,
		FeedID:    req.FeedID,
		FeedType:  req.FeedType,
		OwnerID:   req.OwnerID,
		Message:   req.Message,
		Interval:  req.Interval,
		Unit:      req.Unit,
		Every:     every,
		CreatedAt: now,
	}
	task := tasks.Task{
		ID:         taskID(id),
		Name:       "recurring message " + id,
		Expression: "@every " + every.String(),
		Payload:    map[string]string{"feed_id": req.FeedID, "owner_id": req.OwnerID},
	}
	if _, err := s.tasks.Schedule(task, func(ctx context.Context) error { return s.deliver(ctx, id) }); err != nil {
		return Job{}, fmt.Errorf("регистрация задачи: %w", err)
	}
	s.jobs[id] = job
	s.log.Info().Str("schedule", id).Str("feed", req.FeedID).Dur("every", every).Msg("расписание создано")
	return job, nil
}

func (s *Service) deliver(ctx context.Context, id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	err := s.sender.SendMessage(ctx, domain.OutgoingMessage{
		FeedID:   job.FeedID,
		FeedType: job.FeedType,
		Text:     "🔔 " + job.Message,
	})
	if err == nil {
		return nil
	}
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	s.tasks.Cancel(taskID(id))
	s.log.Warn().Err(err).Str("schedule", id).Msg("расписание остановлено после ошибки отправки")
	return fmt.Errorf("отправка сообщения расписания %s: %w", id, err)
}

// StopAllForFeed отменяет все расписания ленты и возвращает их количество.
func (s *Service) StopAllForFeed(feedID string) int {
	s.mu.Lock()
	var ids []string
	for id, job := range s.jobs {
		if job.FeedID == feedID {
			ids = append(ids, id)
			delete(s.jobs, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.tasks.Cancel(taskID(id))
	}
	if len(ids) > 0 {
		s.log.Info().Str("feed", feedID).Int("count", len(ids)).Msg("расписания ленты остановлены")
	}
	return len(ids)
}

// ListForFeed возвращает расписания ленты в порядке создания.
func (s *Service) ListForFeed(feedID string) []Job {
	s.mu.Lock()
	var out []Job
	for _, job := range s.jobs {
		if job.FeedID == feedID {
			out = append(out, job)
		}
	}
	s.mu.Unlock()
	sortJobs(out)
	return out
}

// All возвращает все активные расписания.
func (s *Service) All() []Job {
	s.mu.Lock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	s.mu.Unlock()
	sortJobs(out)
	return out
}

// TotalActive возвращает общее число активных расписаний.
func (s *Service) TotalActive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Service) countLocked(feedID string) int {
	n := 0
	for _, job := range s.jobs {
		if job.FeedID == feedID {
			n++
		}
	}
	return n
}

func (s *Service) newIDLocked(feedID string, now time.Time) string {
	for {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
		id := fmt.Sprintf("%s-%d-%s", feedID, now.UnixMilli(), suffix)
		if _, exists := s.jobs[id]; !exists {
			return id
		}
	}
}

func taskID(jobID string) string {
	return "schedule:" + jobID
}

func sortJobs(jobs []Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
}
