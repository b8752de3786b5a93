package commands

import (
	"context"
	"sort"
)

// StaticResponses - команды с фиксированным ответом.
var StaticResponses = map[string]string{
	"support":     "Need help with anything else? Our live support team is available 24/7. Real humans, real fast: https://whop.com/support",
	"clip":        "Want to get clipping? It’s a great way to make money, here’s the full guide to help you start: https://whop.com/whop-clips",
	"geniusbar":   "Need live help, feedback, or just want to hang out? Come through to the Genius Bar stream where we’re live every day from 8am to 4pm PST: https://whop.com/whop/genius-bar-BGSm3uHAQomIK3/app/",
	"create":      "Whenever you’re ready to launch your own business, here’s where you can create your whop. It’s fully free to set up: https://whop.new",
	"payouts":     "Here’s where you can see your personal balance and withdraw! Just set up Whop Payments by following the steps here: https://whop.com/@me/settings/balance/",
	"campaigns":   "Here’s where you can find all of our active content campaigns, join the ones you find interesting and head over to their earn tab to see their requirements: https://whop.com/discover/explore/content-rewards/",
	"graphics":    "Need some clean graphics for your whop? We’ve got a free design service that’s super helpful, you should definitely check it out: https://whop.com/whop-design-services/",
	"leaderboard": "If you're curious what people are earning, feel free to check out the leaderboard! It's super motivating: https://whop.com/leaderboard/",
	"zap":         "coolest dude in the U!",
	"eric":        "runs the ship!",
}

// OnboardingResponses - варианты ответа на /new.
var OnboardingResponses = []string{
	"Hey, welcome to Whop! Super excited to have you here. If you're just getting started, this guide breaks down exactly how people are making $1,000+/month: https://whop.com/whop/whop-course-mgE1ffKiZasYiF/app/",
	"Yo, welcome to Whop! It’s awesome to have you. If you're new here, this guide walks through how people are getting started and making $1K+ a month: https://whop.com/whop/whop-course-mgE1ffKiZasYiF/app/",
	"Hi! Glad to have you on Whop! Here’s a sick guide that breaks down how creators are hitting $1K+ monthly, it’s the best place to start: https://whop.com/whop/whop-course-mgE1ffKiZasYiF/app/",
}

const memberHelp = `Available commands
/help
/support
/clip
/geniusbar
/new
/create
/payouts
/campaigns
/graphics
/leaderboard
/earnings @[username] | /earnings (for yourself)
/referrals @[username] | /referrals (for yourself)
/affiliatelink @[username] | /affiliatelink (for yourself)
/vote <poll id> <option number>
/remindme "message" in <number>m|h|d|w
/zap
/eric`

const adminHelp = `Regular commands
/help
/support
/clip
/geniusbar
/new
/create
/payouts
/campaigns
/graphics
/leaderboard
/earnings @[username] | /earnings (for yourself)
/referrals @[username] | /referrals (for yourself)
/affiliatelink @[username] | /affiliatelink (for yourself)
/vote <poll id> <option number>
/remindme "message" in <number>m|h|d|w
/zap
/eric

Admin-only commands
/announce "message" [highlight]
/poll "question" "opt1" "opt2" ... [minutes]
/endpolls
/newlive "message" | /newlive reset
/mute @[username] [duration][m|d|w]   (e.g., 5m, 2d, 1w for minutes, days, weeks)
/unmute @[username]
/ban @[username] [reason]
/unban @[username] | /unban user_id
/kick @[username] [reason]
/adminwhitelist list | /adminwhitelist add @[username] | /adminwhitelist remove @[username]
/whitelist list | /whitelist add @[username] | /whitelist remove @[username]
/cooldown [minutes] set | /cooldown get
/transcript [count]   (fetches the last [count] messages, default 50)
/purge [count]   (deletes the last [count] messages, default 10)
/addfreedays @[username] <number>
/schedule "message" every <number>m|h|d | /schedule list | /schedule stop`

func (c *catalog) help() Definition {
	return Define(Spec[noArgs]{
		Name:  "help",
		Usage: "/help",
		Exec: func(ctx context.Context, _ noArgs, env Env) (Result, error) {
			text := memberHelp
			if env.IsAdmin {
				text = adminHelp
			}
			return env.replyResult(ctx, true, text, "Help message sent to chat.", false)
		},
	})
}

func (c *catalog) newcomer() Definition {
	return Define(Spec[noArgs]{
		Name:  "new",
		Usage: "/new",
		Exec: func(ctx context.Context, _ noArgs, env Env) (Result, error) {
			text := OnboardingResponses[c.Intn(len(OnboardingResponses))]
			return env.replyResult(ctx, true, text, "Onboarding message sent", false)
		},
	})
}

func staticDefinitions() []Definition {
	names := make([]string, 0, len(StaticResponses))
	for name := range StaticResponses {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		text := StaticResponses[name]
		defs = append(defs, Define(Spec[noArgs]{
			Name:  name,
			Usage: "/" + name,
			Exec: func(ctx context.Context, _ noArgs, env Env) (Result, error) {
				return env.replyResult(ctx, true, text, "Static response sent", false)
			},
		}))
	}
	return defs
}
