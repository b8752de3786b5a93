package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"whop-chat-bot/internal/adapters/api"
	"whop-chat-bot/internal/adapters/bot"
	"whop-chat-bot/internal/adapters/platform"
	"whop-chat-bot/internal/adapters/webhook"
	"whop-chat-bot/internal/adapters/websocket"
	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/infra/clock"
	"whop-chat-bot/internal/infra/config"
	httpinfra "whop-chat-bot/internal/infra/http"
	"whop-chat-bot/internal/infra/log"
	"whop-chat-bot/internal/infra/metrics"
	"whop-chat-bot/internal/infra/retry"
	"whop-chat-bot/internal/usecase/commands"
	"whop-chat-bot/internal/usecase/cooldown"
	"whop-chat-bot/internal/usecase/livestream"
	"whop-chat-bot/internal/usecase/poll"
	"whop-chat-bot/internal/usecase/schedule"
	"whop-chat-bot/internal/usecase/tasks"
	"whop-chat-bot/internal/usecase/whitelist"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Whop.APIKey == "" || cfg.Whop.AgentUserID == "" {
		logger.Fatal().Msg("WHOP_API_KEY и WHOP_ADMIN_USER_ID обязательны")
	}

	client, err := platform.New(cfg.Whop.APIURL, cfg.Whop.APIKey,
		platform.WithAgent(cfg.Whop.AgentUserID),
		platform.WithAppID(cfg.Whop.AppID),
		platform.WithTimeout(cfg.Whop.Timeout),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать клиент платформы")
	}
	channels := cfg.WebhookChannels()
	sink := webhook.NewSink(channels, log.Component(logger, "webhook"))
	logger.Info().Int("channels", sink.Channels()).Msg("каналы уведомлений настроены")

	clk := clock.Real()
	scheduler := tasks.NewScheduler(clk, log.Component(logger, "tasks"))
	scheduler.Subscribe(taskLogger(log.Component(logger, "tasks")))

	cooldowns := cooldown.NewService(clk,
		time.Duration(cfg.Cooldown.Seconds)*time.Second,
		time.Duration(cfg.Cooldown.NoticeMinutes)*time.Minute,
	)
	cooldownList := whitelist.New("cooldown", cfg.Whitelist.Cooldown)
	adminList := whitelist.New("admin", cfg.Whitelist.Admin)
	polls := poll.NewService(scheduler, client, sink, clk, log.Component(logger, "poll"))
	schedules := schedule.NewService(scheduler, client, clk, log.Component(logger, "schedule"))
	greeter := livestream.NewService(client, log.Component(logger, "livestream"))

	registry, err := commands.BuildRegistry(commands.Deps{
		Platform:           client,
		Notifier:           sink,
		Cooldown:           cooldowns,
		CooldownWhitelist:  cooldownList,
		AdminWhitelist:     adminList,
		Polls:              polls,
		Schedules:          schedules,
		Tasks:              scheduler,
		Livestream:         greeter,
		Retry:              retry.Policy{MaxAttempts: cfg.Webhooks.RetryAttempts, BaseDelay: cfg.Webhooks.RetryBase, Jitter: 0.2},
		Clock:              clk,
		AnnouncementFeedID: cfg.Whop.AnnouncementFeedID,
		Log:                log.Component(logger, "commands"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось собрать команды")
	}
	dispatcher := commands.NewDispatcher(cfg.CommandPrefix, registry, adminList, client, log.Component(logger, "dispatcher"))
	handler := bot.NewHandler(dispatcher, cooldowns, cooldownList, greeter, client, log.Component(logger, "router"))
	handler.OnResult(func(post domain.ChatPost, res commands.Result) {
		logger.Debug().Str("user", post.UserID).Str("feed", post.FeedID).Bool("success", res.Success).Msg(res.Message)
	})

	if _, err := scheduler.Schedule(tasks.Task{ID: "housekeeping", Name: "housekeeping", Expression: cfg.HousekeepingCron},
		housekeeping(polls, schedules, scheduler)); err != nil {
		logger.Fatal().Err(err).Msg("некорректное расписание обслуживания")
	}

	source := websocket.NewSource(websocket.Config{
		URL:               cfg.Whop.WSURL,
		APIKey:            cfg.Whop.APIKey,
		AgentUserID:       cfg.Whop.AgentUserID,
		ReconnectInterval: cfg.Socket.ReconnectInterval,
		ReconnectAttempts: cfg.Socket.ReconnectAttempts,
	}, log.Component(logger, "websocket"))

	server := httpinfra.NewServer(log.Component(logger, "http"))
	api.Mount(server.Router, cfg.AdminAPIToken, api.Deps{
		Polls:      polls,
		Schedules:  schedules,
		Tasks:      scheduler,
		Cooldown:   cooldowns,
		Whitelists: []*whitelist.Registry{adminList, cooldownList},
	})
	if cfg.MetricsAddr != "" {
		metrics.StartServer(ctx, log.Component(logger, "metrics"), cfg.MetricsAddr)
	}

	events := make(chan domain.Event, 64)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(events)
		return source.Run(gctx, events)
	})
	g.Go(func() error { return handler.Run(gctx, events) })
	g.Go(func() error { return server.Run(gctx, cfg.HTTPAddr) })

	logger.Info().Str("prefix", cfg.CommandPrefix).Int("commands", len(registry.Names())).Msg("бот запущен")
	err = g.Wait()
	scheduler.StopAll()
	if err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("бот остановлен с ошибкой")
	}
	logger.Info().Msg("бот остановлен")
}

// housekeeping обновляет метрики состояния опросов, расписаний и задач.
func housekeeping(polls *poll.Service, schedules *schedule.Service, scheduler *tasks.Scheduler) tasks.Func {
	return func(context.Context) error {
		metrics.ActivePolls.Set(float64(len(polls.Active())))
		metrics.ActiveSchedules.Set(float64(schedules.TotalActive()))
		metrics.ScheduledTasks.Set(float64(scheduler.Len()))
		return nil
	}
}

func taskLogger(logger zerolog.Logger) tasks.Observer {
	return func(ev tasks.Event) {
		entry := logger.Debug()
		if ev.Type == tasks.EventFailed {
			entry = logger.Warn().Err(ev.Err)
		}
		entry.Str("task", ev.Task.ID).Str("event", string(ev.Type)).Msg("событие планировщика")
	}
}
