package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/usecase/livestream"
)

const (
	// MaxTranscriptMessages ограничивает /transcript.
	MaxTranscriptMessages = 500
	// MaxPurgeMessages ограничивает /purge.
	MaxPurgeMessages = 100

	defaultTranscriptMessages = 50
	defaultPurgeMessages      = 10
	historyBuffer             = 10
)

type announceArgs struct {
	Message     string
	Highlighted bool
}

type countArgs struct {
	Count int
}

type newLiveArgs struct {
	Message string
	Reset   bool
}

func parseNewLive(raw string, _ []string) (newLiveArgs, error) {
	// Только голое слово reset сбрасывает приветствие; "reset" в кавычках - обычный текст.
	if words := args(raw); len(words) == 1 && strings.EqualFold(words[0], "reset") {
		return newLiveArgs{Reset: true}, nil
	}
	msg := strings.TrimSpace(quotedOrRest(raw))
	if msg == "" {
		return newLiveArgs{}, usageErrorf(`Usage: /newlive "Your welcome message" or /newlive Your welcome message`)
	}
	return newLiveArgs{Message: msg}, nil
}

func parseAnnounce(raw string, _ []string) (announceArgs, error) {
	return announceArgs{
		Message:     quotedOrRest(raw),
		Highlighted: strings.Contains(raw, "highlight"),
	}, nil
}

func countParser(def, limit int) func(raw string, _ []string) (countArgs, error) {
	return func(raw string, _ []string) (countArgs, error) {
		out := countArgs{Count: def}
		if words := args(raw); len(words) > 0 {
			if n := atoiDefault(words[0], 0); n > 0 {
				out.Count = min(n, limit)
			}
		}
		return out, nil
	}
}

func (c *catalog) newLive() Definition {
	return Define(Spec[newLiveArgs]{
		Name:      "newlive",
		Usage:     `/newlive "message" | /newlive reset`,
		AdminOnly: true,
		Parse:     parseNewLive,
		Exec: func(ctx context.Context, a newLiveArgs, env Env) (Result, error) {
			if a.Reset {
				c.Livestream.ResetGreeting(env.UserID)
				res, err := env.replyResult(ctx, true, "✅ Your livestream welcome message has been reset to the default.",
					"Livestream welcome message reset for user "+env.UserID, false)
				res.Data = map[string]any{"userId": env.UserID, "message": livestream.DefaultGreeting}
				return res, err
			}
			c.Livestream.SetGreeting(env.UserID, a.Message)
			text := fmt.Sprintf("✅ Your livestream welcome message has been set to: %q", a.Message)
			res, err := env.replyResult(ctx, true, text, "Livestream welcome message set for user "+env.UserID, false)
			res.Data = map[string]any{"userId": env.UserID, "message": a.Message}
			return res, err
		},
	})
}

func (c *catalog) announce() Definition {
	return Define(Spec[announceArgs]{
		Name:      "announce",
		Usage:     `/announce "message" [highlight]`,
		AdminOnly: true,
		Parse:     parseAnnounce,
		Exec: func(ctx context.Context, a announceArgs, env Env) (Result, error) {
			if a.Message == "" {
				return env.userError(ctx, `Usage: /announce "message" [highlight]`, "Missing announcement message")
			}
			if env.FeedType != domain.FeedTypeLivestream {
				return env.userError(ctx, "The /announce command can only be used in livestream feeds.", "Announce outside livestream feed")
			}
			if c.AnnouncementFeedID == "" {
				return Result{}, fmt.Errorf("лента объявлений: %w", domain.ErrNotConfigured)
			}
			text := "📢 Announcement: " + a.Message
			if a.Highlighted {
				text = "📢 **ANNOUNCEMENT** 📢\n\n" + a.Message
			}
			err := env.Send(ctx, domain.OutgoingMessage{FeedID: c.AnnouncementFeedID, FeedType: domain.FeedTypeChat, Text: text})
			if err != nil {
				return Result{}, fmt.Errorf("отправка объявления: %w", err)
			}
			return env.replyResult(ctx, true, "Announcement sent successfully.", "Announcement sent.", false)
		},
		OnFailure: func(ctx context.Context, res Result, env Env, a announceArgs) error {
			return c.logFailure("Error Sending Announcement", domain.NotificationField{Name: "Message", Value: a.Message})(ctx, res, env)
		},
	})
}

// history возвращает посты, опубликованные до вызова команды, от новых к старым.
func (c *catalog) history(ctx context.Context, env Env, count int, skip func(domain.FeedPost) bool) ([]domain.FeedPost, error) {
	cutoff := c.Clock.Now()
	posts, err := c.Platform.ListFeedPosts(ctx, env.FeedID, env.FeedType, count+historyBuffer)
	if err != nil {
		return nil, err
	}
	out := make([]domain.FeedPost, 0, len(posts))
	for _, p := range posts {
		if !p.CreatedAt.Before(cutoff) || (skip != nil && skip(p)) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func (c *catalog) transcript() Definition {
	return Define(Spec[countArgs]{
		Name:      "transcript",
		Usage:     "/transcript [count]",
		AdminOnly: true,
		Parse:     countParser(defaultTranscriptMessages, MaxTranscriptMessages),
		Exec: func(ctx context.Context, a countArgs, env Env) (Result, error) {
			if err := env.Reply(ctx, fmt.Sprintf("📑 Generating transcript of the last %d messages...", a.Count)); err != nil {
				return Result{}, err
			}
			posts, err := c.history(ctx, env, a.Count, func(p domain.FeedPost) bool {
				return strings.HasPrefix(strings.TrimSpace(p.Content), "/transcript")
			})
			if err != nil {
				return Result{}, fmt.Errorf("история ленты: %w", err)
			}
			if len(posts) == 0 {
				return env.userError(ctx, "No messages found to include in the transcript.", "No messages found for transcript")
			}
			now := c.Clock.Now()
			body := FormatTranscript(posts, env.FeedID, env.FeedType, now)
			preview := body
			if r := []rune(preview); len(r) > 1000 {
				preview = string(r[:1000]) + "...\n\n[Transcript truncated for preview]"
			}
			c.notify(ctx, domain.Notification{
				Channel:     domain.ChannelLog,
				Title:       "📑 Chat Transcript Generated",
				Description: fmt.Sprintf("Requested by <@%s>\n```\n%s\n```", env.UserID, preview),
				Color:       0x4287F5,
				Fields: []domain.NotificationField{
					{Name: "Moderator", Value: "<@" + env.UserID + ">", Inline: true},
					{Name: "Messages", Value: fmt.Sprint(len(posts)), Inline: true},
					{Name: "Feed", Value: env.FeedID, Inline: true},
				},
				Footer: "Whop Moderation • Transcript",
			})
			text := fmt.Sprintf("✅ Transcript of %s posted to the logs channel.", plural(len(posts), "message"))
			res, err := env.replyResult(ctx, true, text, fmt.Sprintf("Transcript generated with %d messages", len(posts)), false)
			res.Data = map[string]any{"messageCount": len(posts), "feedId": env.FeedID}
			return res, err
		},
		OnFailure: func(ctx context.Context, res Result, env Env, a countArgs) error {
			return c.logFailure("Transcript Generation Failure",
				domain.NotificationField{Name: "Requested", Value: fmt.Sprint(a.Count), Inline: true})(ctx, res, env)
		},
	})
}

// FormatTranscript формирует текстовую расшифровку постов.
func FormatTranscript(posts []domain.FeedPost, feedID string, feedType domain.FeedType, generated time.Time) string {
	rule := strings.Repeat("=", 80)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nCHAT TRANSCRIPT - %s\nFeed ID: %s\nGenerated: %s\nMessages: %d\n%s\n\n",
		rule, strings.ToUpper(string(feedType)), feedID, generated.UTC().Format(time.RFC3339), len(posts), rule)
	for i, p := range posts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		name := p.Username
		if name == "" {
			name = "Unknown User"
		}
		content := p.Content
		if content == "" {
			content = "(No content)"
		}
		fmt.Fprintf(&b, "[%s] %s: %s", p.CreatedAt.UTC().Format("Jan 2, 2006 15:04"), name, content)
	}
	b.WriteString("\n\n" + rule)
	return b.String()
}

func (c *catalog) purge() Definition {
	return Define(Spec[countArgs]{
		Name:      "purge",
		Usage:     "/purge [count]",
		AdminOnly: true,
		Parse:     countParser(defaultPurgeMessages, MaxPurgeMessages),
		Exec: func(ctx context.Context, a countArgs, env Env) (Result, error) {
			posts, err := c.history(ctx, env, a.Count, nil)
			if err != nil {
				return Result{}, fmt.Errorf("история ленты: %w", err)
			}
			if len(posts) == 0 {
				return env.userError(ctx, "🚫 No eligible messages found to delete.", "No eligible messages for delete")
			}
			ids := make([]string, 0, len(posts))
			for _, p := range posts {
				if p.ID != "" {
					ids = append(ids, p.ID)
				}
			}
			if len(ids) == 0 {
				return env.userError(ctx, "⚠️ Could not extract valid message IDs to delete.", "No valid message IDs to delete")
			}
			if err := c.Platform.DeletePosts(ctx, env.FeedID, env.FeedType, ids); err != nil {
				return env.replyResult(ctx, false, "❌ Failed to delete messages: "+err.Error(), "Failed to delete messages: "+err.Error(), false)
			}
			return Result{
				Success:     true,
				Message:     fmt.Sprintf("Deleted %d messages", len(ids)),
				MessageSent: true,
				Data:        map[string]any{"messageCount": len(ids), "feedId": env.FeedID},
			}, nil
		},
		OnFailure: func(ctx context.Context, res Result, env Env, a countArgs) error {
			return c.logFailure("Error Purging Messages",
				domain.NotificationField{Name: "Requested", Value: fmt.Sprint(a.Count), Inline: true})(ctx, res, env)
		},
	})
}
