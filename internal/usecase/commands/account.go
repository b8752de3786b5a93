package commands

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"whop-chat-bot/internal/domain"
)

const (
	defaultFreeDays = 7
	maxFreeDays     = 365
)

type subjectArgs struct {
	// UserID пуст, если команда относится к самому вызывающему.
	UserID string
}

type freeDaysArgs struct {
	Target string
	Days   int
}

func parseSubject(_ string, mentions []string) (subjectArgs, error) {
	if len(mentions) == 0 {
		return subjectArgs{}, nil
	}
	return subjectArgs{UserID: mentions[0]}, nil
}

func parseFreeDays(raw string, mentions []string) (freeDaysArgs, error) {
	if len(mentions) == 0 {
		return freeDaysArgs{}, usageErrorf("Usage: /addfreedays @username [days]")
	}
	out := freeDaysArgs{Target: mentions[0], Days: defaultFreeDays}
	for _, word := range args(raw) {
		if n, err := strconv.Atoi(word); err == nil && n > 0 && n <= maxFreeDays {
			out.Days = n
			break
		}
	}
	return out, nil
}

// FormatCurrency форматирует сумму в долларах с разделителями разрядов.
func FormatCurrency(v float64) string {
	if v < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -v)
	}
	return "$" + humanize.FormatFloat("#,###.##", v)
}

func (c *catalog) earnings() Definition {
	return Define(Spec[subjectArgs]{
		Name:  "earnings",
		Usage: "/earnings @[username] | /earnings (for yourself)",
		Parse: parseSubject,
		Exec: func(ctx context.Context, a subjectArgs, env Env) (Result, error) {
			target := a.UserID
			if target == "" {
				target = env.UserID
			}
			self := target == env.UserID
			info := c.userInfo(ctx, target)
			reports, err := c.Platform.GetEarnings(ctx, target)
			if err != nil {
				return Result{}, fmt.Errorf("заработок %s: %w", target, err)
			}
			data := map[string]any{"targetUserId": target, "username": info.DisplayName()}
			if len(reports) == 0 {
				text := fmt.Sprintf("@%s has their earnings hidden.", info.DisplayName())
				if self {
					text = "Your earnings are hidden."
				}
				res, err := env.replyResult(ctx, true, text, "No earnings found", false)
				res.Data = data
				return res, err
			}
			var total float64
			for _, r := range reports {
				total += r.Last24h
			}
			text := fmt.Sprintf("💰 24-hour Earnings for @%s %s", info.DisplayName(), FormatCurrency(total))
			if self {
				text = "💰 Your 24-hour Earnings " + FormatCurrency(total)
			}
			res, err := env.replyResult(ctx, true, text, "Earnings data fetched successfully", false)
			data["total24hours"] = total
			res.Data = data
			return res, err
		},
	})
}

func (c *catalog) referrals() Definition {
	return Define(Spec[subjectArgs]{
		Name:  "referrals",
		Usage: "/referrals @[username] | /referrals (for yourself)",
		Parse: parseSubject,
		Exec: func(ctx context.Context, a subjectArgs, env Env) (Result, error) {
			target := a.UserID
			if target == "" {
				target = env.UserID
			}
			self := target == env.UserID
			info := c.userInfo(ctx, target)
			count, err := c.Platform.GetReferrals(ctx, target)
			if err != nil {
				return Result{}, fmt.Errorf("рефералы %s: %w", target, err)
			}
			var text string
			switch {
			case count == 0 && !self:
				text = fmt.Sprintf("@%s hasn't referred anyone in the last 24 hours.", info.DisplayName())
			case count == 0:
				text = "You haven't referred anyone in the last 24 hours. Share your affiliate link to start earning!"
			case self:
				text = fmt.Sprintf("🔄 Your referrals in the last 24 hours: %s", humanize.Comma(int64(count)))
			default:
				text = fmt.Sprintf("🔄 Referrals for @%s in the last 24 hours: %s", info.DisplayName(), humanize.Comma(int64(count)))
			}
			res, err := env.replyResult(ctx, true, text, "Referrals data fetched successfully", false)
			res.Data = map[string]any{"targetUserId": target, "username": info.DisplayName(), "referralCount": count}
			return res, err
		},
	})
}

// AffiliateLink собирает партнёрскую ссылку на продукт.
func AffiliateLink(route, username string) string {
	return fmt.Sprintf("https://whop.com/%s/?a=%s", url.PathEscape(route), url.QueryEscape(username))
}

func (c *catalog) affiliateLink() Definition {
	return Define(Spec[subjectArgs]{
		Name:  "affiliatelink",
		Usage: "/affiliatelink @[username] | /affiliatelink (for yourself)",
		Parse: parseSubject,
		Exec: func(ctx context.Context, a subjectArgs, env Env) (Result, error) {
			target := a.UserID
			if target == "" {
				target = env.UserID
			}
			passes, err := c.Platform.FeedAccessPasses(ctx, env.FeedID)
			switch {
			case errors.Is(err, domain.ErrNoExperience):
				return env.userError(ctx, "❌ Could not determine the experience for this chat.", "Could not determine experience")
			case err != nil:
				return env.replyResult(ctx, false, "❌ Failed to generate affiliate link. Please try again later.", err.Error(), false)
			case len(passes) == 0:
				return env.userError(ctx, "❌ No access passes available for this experience.", "No access passes available")
			}
			info, err := c.Platform.GetUser(ctx, target)
			if err != nil {
				c.Log.Warn().Err(err).Str("user", target).Msg("не удалось получить данные пользователя")
				return env.replyResult(ctx, false, "❌ Unable to find that user.", "User not found", false)
			}
			username := info.Username
			if username == "" {
				username = target
			}
			pass := passes[0]
			link := AffiliateLink(pass.Route, username)
			text := fmt.Sprintf("🔗 %s Affiliate Link for @%s\n%s\n\n💰 Share this link to earn commissions!", pass.Title, username, link)
			if target == env.UserID {
				text = fmt.Sprintf("🔗 Your %s Affiliate Link\n%s\n\n💰 Share this link to earn commissions!", pass.Title, link)
			}
			res, err := env.replyResult(ctx, true, text, "Affiliate link generated successfully", false)
			res.Data = map[string]any{"targetUserId": target, "targetUsername": username, "affiliateLink": link, "accessPassId": pass.ID}
			return res, err
		},
	})
}

func (c *catalog) addFreeDays() Definition {
	return Define(Spec[freeDaysArgs]{
		Name:      "addfreedays",
		Usage:     "/addfreedays @[username] <number>",
		AdminOnly: true,
		Parse:     parseFreeDays,
		Exec: func(ctx context.Context, a freeDaysArgs, env Env) (Result, error) {
			if a.Target == env.UserID {
				return env.userError(ctx, "You cannot add free days to yourself.", "Self-targeting not allowed")
			}
			out, err := c.Platform.AddFreeDays(ctx, env.FeedID, a.Target, a.Days)
			if errors.Is(err, domain.ErrNoMembership) {
				name := out.Username
				if name == "" {
					name = c.userInfo(ctx, a.Target).DisplayName()
				}
				return env.userError(ctx, fmt.Sprintf("❌ User @%s doesn't have a membership for this experience.", name), "User has no membership for this experience")
			}
			if err != nil {
				return env.replyResult(ctx, false, "❌ Failed to add free days. Please try again later.", err.Error(), false)
			}
			name := out.Username
			if name == "" {
				name = a.Target
			}
			expires := ""
			if !out.ExpiresAt.IsZero() {
				expires = fmt.Sprintf(" (now expires: %s)", out.ExpiresAt.Format("Jan 2, 2006"))
			}
			text := fmt.Sprintf("✅ Added %s to @%s's membership%s.", strings.Replace(plural(a.Days, "day"), " ", " free ", 1), name, expires)
			res, err := env.replyResult(ctx, true, text, fmt.Sprintf("Successfully added %d free days to user's membership", a.Days), false)
			res.Data = map[string]any{
				"targetUserId": a.Target,
				"days":         a.Days,
				"membershipId": out.MembershipID,
				"newExpiresAt": out.ExpiresAt,
			}
			return res, err
		},
		OnFailure: func(ctx context.Context, res Result, env Env, a freeDaysArgs) error {
			return c.logFailure("Error Adding Free Days",
				domain.NotificationField{Name: "Target", Value: a.Target, Inline: true},
				domain.NotificationField{Name: "Days", Value: strconv.Itoa(a.Days), Inline: true},
			)(ctx, res, env)
		},
	})
}
