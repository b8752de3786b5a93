package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/usecase/schedule"
	"whop-chat-bot/internal/usecase/tasks"
)

type scheduleAction int

const (
	scheduleCreate scheduleAction = iota
	scheduleStop
	scheduleList
)

type scheduleArgs struct {
	Action   scheduleAction
	Message  string
	Interval int
	Unit     schedule.Unit
}

var scheduleEveryRe = regexp.MustCompile(`(?i)every\s+(\d+)([mhd])`)

func parseSchedule(raw string, _ []string) (scheduleArgs, error) {
	words := args(raw)
	if len(words) >= 1 {
		switch strings.ToLower(words[0]) {
		case "stop":
			return scheduleArgs{Action: scheduleStop}, nil
		case "list":
			return scheduleArgs{Action: scheduleList}, nil
		}
	}
	parts := quoted(raw)
	m := scheduleEveryRe.FindStringSubmatch(raw)
	if len(parts) == 0 || m == nil {
		return scheduleArgs{}, usageErrorf(`Usage: /schedule "message" every <number>m|h|d`)
	}
	interval, err := strconv.Atoi(m[1])
	if err != nil || interval <= 0 {
		return scheduleArgs{}, usageErrorf("Interval must be > 0")
	}
	return scheduleArgs{
		Action:   scheduleCreate,
		Message:  parts[0],
		Interval: interval,
		Unit:     schedule.Unit(strings.ToLower(m[2])),
	}, nil
}

func (c *catalog) scheduleCommand() Definition {
	return Define(Spec[scheduleArgs]{
		Name:      "schedule",
		Usage:     `/schedule "message" every <number>m|h|d | /schedule stop | /schedule list`,
		AdminOnly: true,
		Parse:     parseSchedule,
		Exec: func(ctx context.Context, a scheduleArgs, env Env) (Result, error) {
			switch a.Action {
			case scheduleStop:
				return c.stopSchedules(ctx, env)
			case scheduleList:
				return c.listSchedules(ctx, env)
			}
			job, err := c.Schedules.Schedule(schedule.Request{
				FeedID:   env.FeedID,
				FeedType: env.FeedType,
				OwnerID:  env.UserID,
				Message:  a.Message,
				Interval: a.Interval,
				Unit:     a.Unit,
			})
			switch {
			case errors.Is(err, schedule.ErrMessageTooLong):
				return env.userError(ctx, fmt.Sprintf("⚠️ Message too long. Maximum %d characters allowed.", schedule.MaxMessageLength), "Message too long")
			case errors.Is(err, schedule.ErrTooManySchedules):
				return env.userError(ctx, fmt.Sprintf("⚠️ Maximum %d schedules per chat. Please stop some existing schedules first.", schedule.MaxPerFeed), "Too many schedules")
			case errors.Is(err, schedule.ErrIntervalTooLarge):
				return env.userError(ctx, "⏱️ Maximum interval is 7 days. Please choose a shorter interval.", "Interval too large")
			case errors.Is(err, schedule.ErrInvalidInterval):
				return env.userError(ctx, `Usage: /schedule "message" every <number>m|h|d`, "Invalid interval")
			case err != nil:
				return Result{}, err
			}
			every := a.Unit.Describe(a.Interval)
			text := fmt.Sprintf("✅ Scheduled message %q to repeat every %s.\n🔧 Use `/schedule stop` to stop all schedules in this chat.", a.Message, every)
			res, err := env.replyResult(ctx, true, text, "Scheduled message every "+every, false)
			res.Data = map[string]any{"scheduleId": job.ID, "interval": a.Interval, "unit": string(a.Unit)}
			return res, err
		},
	})
}

func (c *catalog) stopSchedules(ctx context.Context, env Env) (Result, error) {
	n := c.Schedules.StopAllForFeed(env.FeedID)
	text := "ℹ️ No scheduled messages found in this chat."
	if n > 0 {
		text = fmt.Sprintf("🛑 Stopped %s in this chat.", plural(n, "scheduled message"))
	}
	res, err := env.replyResult(ctx, true, text, fmt.Sprintf("Stopped %d schedules", n), false)
	res.Data = map[string]any{"stoppedCount": n}
	return res, err
}

func (c *catalog) listSchedules(ctx context.Context, env Env) (Result, error) {
	jobs := c.Schedules.ListForFeed(env.FeedID)
	text := "ℹ️ No active scheduled messages in this chat."
	if len(jobs) > 0 {
		now := c.Clock.Now()
		lines := make([]string, 0, len(jobs))
		for i, job := range jobs {
			lines = append(lines, fmt.Sprintf("%d. %q (every %d%s, started %s)",
				i+1, job.Message, job.Interval, job.Unit, humanize.RelTime(job.CreatedAt, now, "ago", "from now")))
		}
		text = fmt.Sprintf("📋 Active scheduled messages (%d):\n%s", len(jobs), strings.Join(lines, "\n"))
	}
	res, err := env.replyResult(ctx, true, text, fmt.Sprintf("Listed %d schedules", len(jobs)), false)
	res.Data = map[string]any{"schedules": len(jobs)}
	return res, err
}

// MaxReminderDelay - наибольшая задержка напоминания.
const MaxReminderDelay = 2147483 * time.Second

type remindArgs struct {
	Message string
	Delay   time.Duration
	Label   string
	TooFar  bool
}

var remindRe = regexp.MustCompile(`(?i)\s+in\s+(\d+)\s*([mhdw])\s*$`)

func parseRemind(raw string, _ []string) (remindArgs, error) {
	trimmed := strings.TrimSpace(raw)
	m := remindRe.FindStringSubmatchIndex(trimmed)
	if m == nil {
		return remindArgs{}, nil
	}
	var out remindArgs
	value, err := strconv.Atoi(trimmed[m[2]:m[3]])
	if err != nil {
		// Число не влезает в int: заведомо слишком далеко.
		out.TooFar = errors.Is(err, strconv.ErrRange)
		return out, nil
	}
	var step time.Duration
	switch strings.ToLower(trimmed[m[4]:m[5]]) {
	case "h":
		step, out.Label = time.Hour, plural(value, "hour")
	case "d":
		step, out.Label = 24*time.Hour, plural(value, "day")
	case "w":
		step, out.Label = 7*24*time.Hour, plural(value, "week")
	default:
		step, out.Label = time.Minute, plural(value, "minute")
	}
	if int64(value) > int64(MaxReminderDelay/step) {
		out.TooFar = true
		return out, nil
	}
	out.Delay = time.Duration(value) * step
	body := trimmed[:m[0]]
	if fields := strings.Fields(body); len(fields) > 0 {
		body = strings.TrimSpace(strings.TrimPrefix(body, fields[0]))
	}
	out.Message = strings.Trim(body, `"`)
	return out, nil
}

func (c *catalog) remindMe() Definition {
	return Define(Spec[remindArgs]{
		Name:  "remindme",
		Usage: `/remindme "message" in <number>m|h|d|w`,
		Parse: parseRemind,
		Exec: func(ctx context.Context, a remindArgs, env Env) (Result, error) {
			if a.TooFar {
				return env.userError(ctx, "⏱️ That's a bit too far out! Please pick a shorter time frame", "Duration too large")
			}
			if a.Delay <= 0 {
				return env.userError(ctx, "❓ I didn't catch the time. Try: /remindme [what] in [number][m|h|d|w] (/remindme call Eric in 10m)", "Invalid time format")
			}
			if a.Message == "" {
				return env.userError(ctx, "✏️ Oops, you didn't tell me what to remind you about. What should I remind you to do?", "Reminder text missing")
			}
			at := c.Clock.Now().Add(a.Delay)
			userID, text := env.UserID, a.Message
			id := c.Tasks.ScheduleAt(tasks.Task{
				Name:    "reminder for " + userID,
				Payload: map[string]string{"user_id": userID},
			}, at, func(ctx context.Context) error {
				return c.deliverReminder(ctx, userID, text)
			})
			res, err := env.replyResult(ctx, true, fmt.Sprintf("✅ I'll remind you %q in %s.", a.Message, a.Label), fmt.Sprintf("Reminder set for %s from now", a.Label), false)
			res.Data = map[string]any{"taskId": id, "scheduledTime": at}
			return res, err
		},
	})
}

func (c *catalog) deliverReminder(ctx context.Context, userID, text string) error {
	feedID, err := c.Platform.CreateDMChannel(ctx, userID)
	if err != nil {
		return fmt.Errorf("создание DM для напоминания: %w", err)
	}
	return c.Platform.SendMessage(ctx, domain.OutgoingMessage{
		FeedID:   feedID,
		FeedType: domain.FeedTypeDM,
		Text:     "🔔 **Reminder:** " + text,
	})
}
