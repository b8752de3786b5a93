package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"whop-chat-bot/internal/domain"
)

type targetArgs struct {
	Target string
	Reason string
}

// MaxMuteDuration - наибольший срок мьюта.
const MaxMuteDuration = 365 * 24 * time.Hour

type muteArgs struct {
	Target   string
	Duration time.Duration
	Label    string
	Reason   string
	TooLong  bool
}

var muteDurationRe = regexp.MustCompile(`(?i)\b(\d+)([mdw]?)\b`)

func parseTarget(raw string, mentions []string) (targetArgs, error) {
	target := targetFromMentions(raw, mentions)
	if target == "" {
		return targetArgs{}, nil
	}
	reason := textAfterMention(raw)
	if len(mentions) == 0 {
		if idx := strings.Index(raw, target); idx >= 0 {
			reason = cleanReason(raw[idx+len(target):])
		}
	}
	return targetArgs{Target: target, Reason: reason}, nil
}

func parseMute(raw string, mentions []string) (muteArgs, error) {
	if len(mentions) == 0 {
		return muteArgs{}, nil
	}
	out := muteArgs{Target: mentions[0]}
	m := muteDurationRe.FindStringSubmatchIndex(raw)
	if m == nil {
		out.Reason = textAfterMention(raw)
		return out, nil
	}
	value, err := strconv.Atoi(raw[m[2]:m[3]])
	if errors.Is(err, strconv.ErrRange) {
		out.TooLong = true
		return out, nil
	}
	if err != nil || value <= 0 {
		return out, nil
	}
	var step time.Duration
	switch strings.ToLower(raw[m[4]:m[5]]) {
	case "d":
		step, out.Label = 24*time.Hour, "for "+plural(value, "day")
	case "w":
		step, out.Label = 7*24*time.Hour, "for "+plural(value, "week")
	default:
		step, out.Label = time.Minute, "for "+plural(value, "minute")
	}
	if int64(value) > int64(MaxMuteDuration/step) {
		out.TooLong = true
		return out, nil
	}
	out.Duration = time.Duration(value) * step
	out.Reason = cleanReason(raw[m[1]:])
	return out, nil
}

func reasonSuffix(reason string) string {
	if reason == "" {
		return ""
	}
	return fmt.Sprintf(" (Reason: %s)", reason)
}

func targetFields(a targetArgs) []domain.NotificationField {
	fields := []domain.NotificationField{{Name: "Target", Value: a.Target, Inline: true}}
	if a.Reason != "" {
		fields = append(fields, domain.NotificationField{Name: "Reason", Value: a.Reason})
	}
	return fields
}

// moderationAction описывает общий сценарий ban/unban/unmute/kick.
type moderationAction struct {
	name        string
	usage       string
	usageReply  string
	selfReply   string
	doneReply   string
	stateReply  string
	failTitle   string
	color       int
	notifyTitle string
	call        func(ctx context.Context, userID string) (domain.ModerationOutcome, error)
}

func (c *catalog) moderation(a moderationAction) Definition {
	return Define(Spec[targetArgs]{
		Name:      a.name,
		Usage:     a.usage,
		AdminOnly: true,
		Parse:     parseTarget,
		Exec: func(ctx context.Context, args targetArgs, env Env) (Result, error) {
			if args.Target == "" {
				return env.userError(ctx, a.usageReply, "No user mentioned")
			}
			if args.Target == env.UserID {
				return env.userError(ctx, a.selfReply, "Self-targeting rejected")
			}
			outcome, err := a.call(ctx, args.Target)
			if err != nil {
				return Result{}, fmt.Errorf("%s %s: %w", a.name, args.Target, err)
			}
			if outcome == domain.ModerationAlreadyInState {
				res, err := env.replyResult(ctx, true, a.stateReply, strings.TrimSuffix(a.stateReply, "."), true)
				res.Data = map[string]any{"targetUserId": args.Target}
				return res, err
			}
			text := a.doneReply + reasonSuffix(args.Reason) + "."
			res, err := env.replyResult(ctx, true, text, strings.TrimSuffix(text, "."), false)
			if err != nil {
				return res, err
			}
			res.Data = map[string]any{"targetUserId": args.Target, "reason": args.Reason}
			c.notifyModeration(ctx, a.notifyTitle, a.color, env.UserID, args.Target, args.Reason, "")
			return res, nil
		},
		OnFailure: func(ctx context.Context, res Result, env Env, args targetArgs) error {
			return c.logFailure(a.failTitle, targetFields(args)...)(ctx, res, env)
		},
	})
}

func (c *catalog) ban() Definition {
	return c.moderation(moderationAction{
		name:        "ban",
		usage:       "/ban @[username] [reason]",
		usageReply:  "Usage: /ban @username [reason]",
		selfReply:   "You cannot ban yourself.",
		doneReply:   "User has been banned",
		stateReply:  "User is already banned.",
		failTitle:   "Error Banning User",
		color:       0xE54D2E,
		notifyTitle: "Member Banned",
		call:        c.Platform.Ban,
	})
}

func (c *catalog) unban() Definition {
	return c.moderation(moderationAction{
		name:        "unban",
		usage:       "/unban @[username] [reason] | /unban user_id [reason]",
		usageReply:  "Usage: /unban @username [reason] OR /unban user_id [reason]",
		selfReply:   "You cannot unban yourself.",
		doneReply:   "User has been unbanned",
		stateReply:  "User is not currently banned.",
		failTitle:   "Error Unbanning User",
		color:       0x0090FF,
		notifyTitle: "Member Unbanned",
		call:        c.Platform.Unban,
	})
}

func (c *catalog) unmute() Definition {
	return c.moderation(moderationAction{
		name:        "unmute",
		usage:       "/unmute @[username]",
		usageReply:  "Usage: /unmute @username",
		selfReply:   "You cannot unmute yourself.",
		doneReply:   "User has been unmuted",
		stateReply:  "User is not currently muted.",
		failTitle:   "Error Unmuting User",
		color:       0x46A758,
		notifyTitle: "Member Unmuted",
		call:        c.Platform.Unmute,
	})
}

func (c *catalog) kick() Definition {
	return c.moderation(moderationAction{
		name:        "kick",
		usage:       "/kick @[username] [reason]",
		usageReply:  "Usage: /kick @username [reason]",
		selfReply:   "You cannot kick yourself.",
		doneReply:   "User has been kicked",
		stateReply:  "User has already been kicked.",
		failTitle:   "Error Kicking User",
		color:       domain.ColorOrange,
		notifyTitle: "Member Kicked",
		call:        c.Platform.Kick,
	})
}

func (c *catalog) mute() Definition {
	return Define(Spec[muteArgs]{
		Name:      "mute",
		Usage:     "/mute @[username] [duration][m|d|w] (e.g., 5m, 2d, 1w for minutes, days, weeks)",
		AdminOnly: true,
		Parse:     parseMute,
		Exec: func(ctx context.Context, args muteArgs, env Env) (Result, error) {
			if args.Target == env.UserID {
				return env.userError(ctx, "You cannot mute yourself.", "Self-mute attempt rejected")
			}
			if args.Target == "" {
				return env.userError(ctx, "Must provide a target user to mute (e.g., @TestBot)", "Missing target user")
			}
			if args.TooLong {
				return env.userError(ctx, "⏱️ Maximum mute duration is 365 days. Please choose a shorter duration.", "Mute duration too large")
			}
			if args.Duration <= 0 {
				return env.userError(ctx, "Must provide a duration for the mute (e.g., 5m, 2d, 1w)", "Missing duration")
			}
			until := c.Clock.Now().Add(args.Duration)
			outcome, err := c.Platform.Mute(ctx, args.Target, until)
			if err != nil {
				return Result{}, fmt.Errorf("mute %s: %w", args.Target, err)
			}
			data := map[string]any{"targetUserId": args.Target, "mutedUntil": until, "reason": args.Reason}
			if outcome == domain.ModerationAlreadyInState {
				res, err := env.replyResult(ctx, true,
					fmt.Sprintf("User is already muted. Duration updated to %s.", args.Label),
					"User is already muted but duration updated to "+args.Label, false)
				res.Data = data
				return res, err
			}
			text := fmt.Sprintf("User has been muted %s%s.", args.Label, reasonSuffix(args.Reason))
			res, err := env.replyResult(ctx, true, text, strings.TrimSuffix(text, "."), false)
			if err != nil {
				return res, err
			}
			res.Data = data
			c.notifyModeration(ctx, "Member Muted", 0xFFAA00, env.UserID, args.Target, args.Reason, strings.TrimPrefix(args.Label, "for "))
			return res, nil
		},
		OnFailure: func(ctx context.Context, res Result, env Env, args muteArgs) error {
			fields := targetFields(targetArgs{Target: args.Target, Reason: args.Reason})
			if args.Label != "" {
				fields = append(fields, domain.NotificationField{Name: "Duration", Value: strings.TrimPrefix(args.Label, "for "), Inline: true})
			}
			return c.logFailure("Error Muting User", fields...)(ctx, res, env)
		},
	})
}

func (c *catalog) notifyModeration(ctx context.Context, title string, color int, moderatorID, targetID, reason, duration string) {
	target := c.userInfo(ctx, targetID)
	moderator := c.userInfo(ctx, moderatorID)
	fields := []domain.NotificationField{
		{Name: "Member", Value: "@" + target.DisplayName(), Inline: true},
		{Name: "Moderator", Value: "@" + moderator.DisplayName(), Inline: true},
	}
	if duration != "" {
		fields = append(fields, domain.NotificationField{Name: "Duration", Value: duration, Inline: true})
	}
	if reason != "" {
		fields = append(fields, domain.NotificationField{Name: "Reason", Value: reason})
	}
	joined := "Unknown"
	if !target.CreatedAt.IsZero() {
		joined = target.CreatedAt.Format("Jan 2, 2006")
	}
	fields = append(fields, domain.NotificationField{Name: "Joined Whop", Value: joined, Inline: true})
	c.notify(ctx, domain.Notification{
		Channel: domain.ChannelModeration,
		Title:   title,
		Color:   color,
		Fields:  fields,
		Footer:  fmt.Sprintf("User ID: %s", targetID),
	})
}
