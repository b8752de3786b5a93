package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/usecase/cooldown"
	"whop-chat-bot/internal/usecase/whitelist"
)

type cooldownArgs struct {
	Set     bool
	Minutes int
}

const cooldownUsage = "Usage: /cooldown get | /cooldown [minutes] set"

func parseCooldown(raw string, _ []string) (cooldownArgs, error) {
	words := args(strings.ToLower(raw))
	if len(words) == 0 {
		return cooldownArgs{}, usageErrorf(cooldownUsage)
	}
	if words[0] == "get" {
		return cooldownArgs{}, nil
	}
	if len(words) < 2 || words[1] != "set" {
		return cooldownArgs{}, usageErrorf(cooldownUsage)
	}
	minutes, err := strconv.Atoi(words[0])
	if err != nil || minutes < 0 {
		return cooldownArgs{}, usageErrorf(cooldownUsage)
	}
	if int64(minutes) > int64(cooldown.MaxPeriod/time.Minute) {
		return cooldownArgs{}, usageErrorf("⏱️ Maximum cooldown is %d minutes.", int(cooldown.MaxPeriod/time.Minute))
	}
	return cooldownArgs{Set: true, Minutes: minutes}, nil
}

func (c *catalog) cooldownCommand() Definition {
	return Define(Spec[cooldownArgs]{
		Name:      "cooldown",
		Usage:     "/cooldown get | /cooldown [minutes] set",
		AdminOnly: true,
		Parse:     parseCooldown,
		Exec: func(ctx context.Context, a cooldownArgs, env Env) (Result, error) {
			if !a.Set {
				seconds := int(c.Cooldown.Period() / time.Second)
				text := fmt.Sprintf("Chat cooldown period is %s (%d seconds).", describeMinutes(float64(seconds)/60), seconds)
				return env.replyResult(ctx, true, text, text, false)
			}
			c.Cooldown.SetPeriod(time.Duration(a.Minutes) * time.Minute)
			seconds := a.Minutes * 60
			text := fmt.Sprintf("Chat commands cooldown period set to %s (%d seconds).", plural(a.Minutes, "minute"), seconds)
			res, err := env.replyResult(ctx, true, "✅ "+text, text, false)
			res.Data = map[string]any{"seconds": seconds}
			return res, err
		},
	})
}

func describeMinutes(m float64) string {
	if m == 1 {
		return "1 minute"
	}
	return strconv.FormatFloat(m, 'f', -1, 64) + " minutes"
}

type whitelistAction int

const (
	whitelistList whitelistAction = iota
	whitelistAdd
	whitelistRemove
)

type whitelistArgs struct {
	Action whitelistAction
	UserID string
}

func parseWhitelist(raw string, mentions []string) (whitelistArgs, error) {
	words := args(raw)
	if len(words) == 0 {
		return whitelistArgs{Action: whitelistList}, nil
	}
	var out whitelistArgs
	switch strings.ToLower(words[0]) {
	case "add":
		out.Action = whitelistAdd
	case "remove":
		out.Action = whitelistRemove
	default:
		return whitelistArgs{Action: whitelistList}, nil
	}
	switch {
	case len(mentions) > 0:
		out.UserID = mentions[0]
	case len(words) >= 2:
		out.UserID = strings.TrimPrefix(words[1], "@")
	}
	return out, nil
}

// whitelistTexts - тексты ответов конкретного белого списка.
type whitelistTexts struct {
	name        string
	usage       string
	listHeader  func(ids []string) string
	empty       string
	missingAdd  string
	missingDel  string
	already     func(who string) string
	added       func(who string) string
	removed     func(who string) string
	notMember   func(who string) string
	failTitle   string
	addTitle    string
	removeTitle string
}

func (c *catalog) whitelistDefinition(reg *whitelist.Registry, t whitelistTexts) Definition {
	return Define(Spec[whitelistArgs]{
		Name:      t.name,
		Usage:     t.usage,
		AdminOnly: true,
		Parse:     parseWhitelist,
		Exec: func(ctx context.Context, a whitelistArgs, env Env) (Result, error) {
			switch a.Action {
			case whitelistAdd:
				if a.UserID == "" {
					return env.userError(ctx, t.missingAdd, "No user ID provided")
				}
				who := c.userInfo(ctx, a.UserID)
				if !reg.Add(a.UserID) {
					res, err := env.replyResult(ctx, true, t.already(who.DisplayName()), "User already whitelisted", true)
					res.Data = map[string]any{"userId": a.UserID, "action": "already_added"}
					return res, err
				}
				res, err := env.replyResult(ctx, true, t.added(who.DisplayName()), "User added to "+reg.Name(), false)
				if err != nil {
					return res, err
				}
				res.Data = map[string]any{"userId": a.UserID, "action": "added"}
				c.notifyWhitelist(ctx, t.addTitle, domain.ColorGreen, env.UserID, who)
				return res, nil
			case whitelistRemove:
				if a.UserID == "" {
					return env.userError(ctx, t.missingDel, "No user ID provided")
				}
				who := c.userInfo(ctx, a.UserID)
				removed := reg.Remove(a.UserID)
				text := t.notMember(who.DisplayName())
				if removed {
					text = t.removed(who.DisplayName())
				}
				res, err := env.replyResult(ctx, true, text, text, false)
				if err != nil {
					return res, err
				}
				res.Data = map[string]any{"userId": a.UserID, "action": "removed", "wasRemoved": removed}
				if removed {
					c.notifyWhitelist(ctx, t.removeTitle, domain.ColorGrey, env.UserID, who)
				}
				return res, nil
			}
			ids := reg.List()
			text := t.empty
			if len(ids) > 0 {
				text = t.listHeader(ids)
			}
			res, err := env.replyResult(ctx, true, text, "Whitelist displayed successfully", false)
			res.Data = map[string]any{"whitelistedUsers": ids}
			return res, err
		},
		OnFailure: func(ctx context.Context, res Result, env Env, a whitelistArgs) error {
			if res.MessageSent {
				return nil
			}
			return c.logFailure(t.failTitle, domain.NotificationField{Name: "Target", Value: a.UserID, Inline: true})(ctx, res, env)
		},
	})
}

func (c *catalog) whitelistCommand() Definition {
	return c.whitelistDefinition(c.CooldownWhitelist, whitelistTexts{
		name:  "whitelist",
		usage: "/whitelist [list|add|remove] @user",
		listHeader: func(ids []string) string {
			tagged := make([]string, 0, len(ids))
			for _, id := range ids {
				tagged = append(tagged, "<@"+id+">")
			}
			return "📝 Cooldown whitelist:\n" + strings.Join(tagged, ", ")
		},
		empty:       "🚫 No users are currently whitelisted.",
		missingAdd:  "✋ Who should I whitelist? Please provide a user to add.",
		missingDel:  "✂️ Who should I remove? Please provide a user to remove.",
		already:     func(who string) string { return fmt.Sprintf("ℹ️ %s is already whitelisted.", who) },
		added:       func(who string) string { return fmt.Sprintf("User %s added to the cooldown whitelist.", who) },
		removed:     func(who string) string { return fmt.Sprintf("✅ %s has been removed from the cooldown whitelist.", who) },
		notMember:   func(who string) string { return fmt.Sprintf("ℹ️ %s wasn't on cooldown whitelist.", who) },
		failTitle:   "Error Managing Whitelist",
		addTitle:    "Member Whitelisted",
		removeTitle: "Member Unwhitelisted",
	})
}

func (c *catalog) adminWhitelistCommand() Definition {
	return c.whitelistDefinition(c.AdminWhitelist, whitelistTexts{
		name:  "adminwhitelist",
		usage: "/adminwhitelist [list|add|remove] @user",
		listHeader: func(ids []string) string {
			return "Admin-whitelisted user IDs: " + strings.Join(ids, ", ")
		},
		empty:      "No users are currently admin-whitelisted.",
		missingAdd: "Please provide a user ID to add to the admin whitelist.",
		missingDel: "Please provide a user ID to remove from the admin whitelist.",
		already:    func(who string) string { return fmt.Sprintf("%s is already on the admin whitelist.", who) },
		added: func(who string) string {
			return fmt.Sprintf("%s was added to the admin whitelist!\nThey can now use admin commands without having the admin badge.", who)
		},
		removed: func(who string) string {
			return fmt.Sprintf("%s was removed from the admin whitelist! They can no longer use admin commands.", who)
		},
		notMember:   func(who string) string { return fmt.Sprintf("%s was not on the admin whitelist.", who) },
		failTitle:   "Error Managing Admin Whitelist",
		addTitle:    "Admin Whitelisted",
		removeTitle: "Admin Unwhitelisted",
	})
}

func (c *catalog) notifyWhitelist(ctx context.Context, title string, color int, moderatorID string, target domain.UserInfo) {
	moderator := c.userInfo(ctx, moderatorID)
	joined := "Unknown"
	if !target.CreatedAt.IsZero() {
		joined = target.CreatedAt.Format("Jan 2, 2006")
	}
	c.notify(ctx, domain.Notification{
		Channel: domain.ChannelModeration,
		Title:   title,
		Color:   color,
		Fields: []domain.NotificationField{
			{Name: "Member", Value: "@" + target.DisplayName(), Inline: true},
			{Name: "Moderator", Value: "@" + moderator.DisplayName(), Inline: true},
			{Name: "Joined Whop", Value: joined, Inline: true},
		},
		Footer: "User ID: " + target.ID,
	})
}
