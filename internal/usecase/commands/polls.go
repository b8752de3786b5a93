package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/usecase/poll"
)

type pollArgs struct {
	Question        string
	Options         []string
	DurationMinutes int
}

type voteArgs struct {
	PollID   string
	OptionID string
}

var pollDurationRe = regexp.MustCompile(`\b(\d+)m?\b`)

func parsePoll(raw string, _ []string) (pollArgs, error) {
	parts := quoted(raw)
	if len(parts) < 3 {
		return pollArgs{}, usageErrorf(`Usage: /poll "Question" "Option 1" "Option 2" [duration in minutes]`)
	}
	out := pollArgs{Question: parts[0], Options: parts[1:], DurationMinutes: poll.DefaultDurationMinutes}
	tail := raw[strings.LastIndex(raw, `"`)+1:]
	if m := pollDurationRe.FindStringSubmatch(tail); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < poll.MinDurationMinutes {
			n = poll.MinDurationMinutes
		}
		out.DurationMinutes = poll.ClampDuration(n)
	}
	return out, nil
}

func parseVote(raw string, _ []string) (voteArgs, error) {
	words := args(raw)
	if len(words) < 2 {
		return voteArgs{}, usageErrorf("Usage: /vote <poll id> <option number>")
	}
	return voteArgs{PollID: words[0], OptionID: words[1]}, nil
}

func (c *catalog) pollCommand() Definition {
	return Define(Spec[pollArgs]{
		Name:      "poll",
		Usage:     `/poll "question" "opt1" "opt2" ... [minutes]`,
		AdminOnly: true,
		Parse:     parsePoll,
		Exec: func(ctx context.Context, a pollArgs, env Env) (Result, error) {
			options := make([]poll.Option, 0, len(a.Options))
			numbered := make([]string, 0, len(a.Options))
			for i, text := range a.Options {
				id := strconv.Itoa(i + 1)
				options = append(options, poll.Option{ID: id, Text: text})
				numbered = append(numbered, fmt.Sprintf("%s. %s", id, text))
			}
			p, err := c.Polls.Create(poll.CreateRequest{
				Question:        a.Question,
				Options:         options,
				CreatorID:       env.UserID,
				FeedID:          env.FeedID,
				FeedType:        env.FeedType,
				DurationMinutes: a.DurationMinutes,
			})
			if errors.Is(err, poll.ErrInvalidOptions) {
				return env.userError(ctx, "A poll needs at least 2 distinct options.", "Invalid poll options")
			}
			if err != nil {
				return Result{}, fmt.Errorf("создание опроса: %w", err)
			}

			minutes := poll.ClampDuration(a.DurationMinutes)
			text := fmt.Sprintf("📊 **New Poll by @%s**\n\n**%s**\n\n%s\n\nPoll ID: %s\nDuration: %s\n\nVote using: /vote %s [option number]",
				env.UserID, a.Question, strings.Join(numbered, "\n"), p.ID, plural(minutes, "minute"), p.ID)
			if err := env.Reply(ctx, text); err != nil {
				return Result{}, err
			}
			c.notifyPollCreated(ctx, p, minutes)
			return Result{
				Success:     true,
				Message:     "Poll created successfully with ID: " + p.ID,
				MessageSent: true,
				Data: map[string]any{
					"pollId":          p.ID,
					"question":        p.Question,
					"durationMinutes": minutes,
				},
			}, nil
		},
	})
}

func (c *catalog) notifyPollCreated(ctx context.Context, p poll.Poll, minutes int) {
	lines := make([]string, 0, len(p.Options))
	for _, opt := range p.Options {
		lines = append(lines, fmt.Sprintf("%s. %s", opt.ID, opt.Text))
	}
	creator := c.userInfo(ctx, p.CreatorID)
	c.notify(ctx, domain.Notification{
		Channel: domain.ChannelPoll,
		Title:   "📊 New Poll Created: " + p.Question,
		Color:   domain.ColorBlue,
		Fields: []domain.NotificationField{
			{Name: "Options", Value: strings.Join(lines, "\n")},
			{Name: "Duration", Value: plural(minutes, "minute"), Inline: true},
			{Name: "Created by", Value: fmt.Sprintf("%s (%s)", creator.DisplayName(), p.CreatorID), Inline: true},
		},
		Footer: "Poll ID: " + p.ID,
	})
}

func (c *catalog) vote() Definition {
	return Define(Spec[voteArgs]{
		Name:  "vote",
		Usage: "/vote <poll id> <option number>",
		Parse: parseVote,
		Exec: func(ctx context.Context, a voteArgs, env Env) (Result, error) {
			p, ok := c.Polls.Get(a.PollID)
			if !ok {
				return env.userError(ctx, fmt.Sprintf("Poll %s not found.", a.PollID), "Poll not found")
			}
			if !p.Active {
				return env.userError(ctx, "This poll has already ended.", "Poll already ended")
			}
			if !c.Polls.CastVote(a.PollID, env.UserID, a.OptionID) {
				return env.userError(ctx, fmt.Sprintf("Invalid option. Choose a number between 1 and %d.", len(p.Options)), "Invalid option")
			}
			return env.replyResult(ctx, true, fmt.Sprintf("✅ Vote recorded for option %s in poll %s.", a.OptionID, a.PollID), "Vote recorded", false)
		},
	})
}

func (c *catalog) endPolls() Definition {
	return Define(Spec[noArgs]{
		Name:      "endpolls",
		Usage:     "/endpolls",
		AdminOnly: true,
		Exec: func(ctx context.Context, _ noArgs, env Env) (Result, error) {
			n := c.Polls.EndAll(ctx)
			text := "No active polls to end."
			if n > 0 {
				text = fmt.Sprintf("Ended %s.", plural(n, "active poll"))
			}
			res, err := env.replyResult(ctx, true, text, text, false)
			res.Data = map[string]any{"ended": n}
			return res, err
		},
	})
}
