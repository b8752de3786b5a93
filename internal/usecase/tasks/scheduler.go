package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"whop-chat-bot/internal/infra/clock"
	"whop-chat-bot/internal/infra/metrics"
)

// ErrInvalidExpression возвращается, если выражение расписания не разобрано.
var ErrInvalidExpression = errors.New("invalid cron expression")

// Func - тело задачи.
type Func func(ctx context.Context) error

// Task описывает зарегистрированную задачу.
type Task struct {
	ID         string
	Name       string
	Expression string
	Active     bool
	Payload    map[string]string
	LastRun    time.Time
	NextRun    time.Time
}

// EventType - этап жизненного цикла задачи.
type EventType string

const (
	EventScheduled EventType = "scheduled"
	EventStarted   EventType = "started"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
)

// Event сообщает наблюдателям об изменении задачи.
type Event struct {
	Type EventType
	Task Task
	Err  error
}

// Observer получает события планировщика. Вызывается без удержания блокировок.
type Observer func(Event)

type entry struct {
	task     Task
	schedule cron.Schedule
	fn       Func
	timer    clock.Timer
	gen      uint64
}

// Scheduler запускает задачи по cron-выражениям на абстрактных часах.
// Каждый id имеет не более одного живого таймера.
type Scheduler struct {
	mu        sync.Mutex
	clock     clock.Clock
	log       zerolog.Logger
	entries   map[string]*entry
	observers []Observer
	gen       uint64
}

// NewScheduler создаёт планировщик.
func NewScheduler(clk clock.Clock, logger zerolog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	return &Scheduler{clock: clk, log: logger, entries: make(map[string]*entry)}
}

// Subscribe регистрирует наблюдателя.
func (s *Scheduler) Subscribe(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Schedule регистрирует задачу по выражению task.Expression. Стандартный
// пятипольный cron и дескрипторы вида @every 5m допустимы. Задача с тем же id
// отменяется до установки новой.
func (s *Scheduler) Schedule(task Task, fn Func) (string, error) {
	sched, err := cron.ParseStandard(task.Expression)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidExpression, task.Expression, err)
	}
	return s.install(task, sched, fn), nil
}

// ScheduleAt регистрирует одноразовую задачу, которая сработает в момент at
// и будет удалена после выполнения.
func (s *Scheduler) ScheduleAt(task Task, at time.Time, fn Func) string {
	if task.Expression == "" {
		task.Expression = "@at " + at.UTC().Format(time.RFC3339)
	}
	return s.install(task, onceSchedule{at: at}, fn)
}

func (s *Scheduler) install(task Task, sched cron.Schedule, fn Func) string {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Name == "" {
		task.Name = task.ID
	}
	task.Active = true

	var events []Event
	s.mu.Lock()
	if prev, ok := s.entries[task.ID]; ok {
		s.stopLocked(prev)
		delete(s.entries, task.ID)
		events = append(events, Event{Type: EventCancelled, Task: prev.task})
	}
	e := &entry{task: task, schedule: sched, fn: fn}
	s.entries[task.ID] = e
	s.armLocked(e)
	events = append(events, Event{Type: EventScheduled, Task: e.task})
	observers := s.observers
	s.mu.Unlock()

	s.emit(observers, events...)
	return task.ID
}

// Cancel удаляет задачу. Отмена отсутствующего id возвращает false.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.stopLocked(e)
	delete(s.entries, id)
	observers := s.observers
	s.mu.Unlock()

	s.emit(observers, Event{Type: EventCancelled, Task: e.task})
	return true
}

// Pause останавливает срабатывания, сохраняя регистрацию.
func (s *Scheduler) Pause(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	s.stopLocked(e)
	e.task.Active = false
	e.task.NextRun = time.Time{}
	return true
}

// Resume возобновляет приостановленную задачу и пересчитывает NextRun.
func (s *Scheduler) Resume(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	if e.task.Active {
		return true
	}
	e.task.Active = true
	s.armLocked(e)
	return true
}

// StopAll отменяет все задачи.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	cancelled := make([]Event, 0, len(s.entries))
	for id, e := range s.entries {
		s.stopLocked(e)
		delete(s.entries, id)
		cancelled = append(cancelled, Event{Type: EventCancelled, Task: e.task})
	}
	observers := s.observers
	s.mu.Unlock()

	s.emit(observers, cancelled...)
}

// Get возвращает снимок задачи.
func (s *Scheduler) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Task{}, false
	}
	return e.task, true
}

// List возвращает снимки всех задач, отсортированные по id.
func (s *Scheduler) List() []Task {
	s.mu.Lock()
	out := make([]Task, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.task)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Active возвращает только активные задачи.
func (s *Scheduler) Active() []Task {
	all := s.List()
	out := all[:0]
	for _, t := range all {
		if t.Active {
			out = append(out, t)
		}
	}
	return out
}

// Len возвращает количество зарегистрированных задач.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) armLocked(e *entry) {
	s.gen++
	e.gen = s.gen
	now := s.clock.Now()
	next := e.schedule.Next(now)
	e.task.NextRun = next
	if next.IsZero() {
		e.timer = nil
		return
	}
	id, gen := e.task.ID, e.gen
	e.timer = s.clock.AfterFunc(next.Sub(now), func() { s.fire(id, gen) })
}

func (s *Scheduler) stopLocked(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	s.gen++
	e.gen = s.gen
}

func (s *Scheduler) fire(id string, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.gen != gen || !e.task.Active {
		s.mu.Unlock()
		return
	}
	e.timer = nil
	e.task.LastRun = s.clock.Now()
	snapshot := e.task
	fn := e.fn
	observers := s.observers
	s.mu.Unlock()

	s.emit(observers, Event{Type: EventStarted, Task: snapshot})
	err := s.run(fn)
	if err != nil {
		metrics.TaskRuns.WithLabelValues("failed").Inc()
		s.log.Error().Err(err).Str("task", snapshot.ID).Str("name", snapshot.Name).Msg("задача завершилась с ошибкой")
		s.emit(observers, Event{Type: EventFailed, Task: snapshot, Err: err})
	} else {
		metrics.TaskRuns.WithLabelValues("completed").Inc()
		s.emit(observers, Event{Type: EventCompleted, Task: snapshot})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entries[id]
	if !ok || current != e || e.gen != gen || !e.task.Active {
		return
	}
	if _, once := e.schedule.(onceSchedule); once {
		delete(s.entries, id)
		return
	}
	s.armLocked(e)
	if e.task.NextRun.IsZero() {
		delete(s.entries, id)
	}
}

func (s *Scheduler) run(fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic в задаче: %v", r)
		}
	}()
	return fn(context.Background())
}

func (s *Scheduler) emit(observers []Observer, events ...Event) {
	for _, ev := range events {
		s.log.Debug().Str("task", ev.Task.ID).Str("event", string(ev.Type)).Msg("событие планировщика")
		for _, o := range observers {
			o(ev)
		}
	}
}

// onceSchedule срабатывает в момент at, а если он уже прошёл, то сразу.
type onceSchedule struct {
	at time.Time
}

func (o onceSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return t
}
