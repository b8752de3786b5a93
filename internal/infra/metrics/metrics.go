package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_events_received_total",
		Help: "События, полученные из потока",
	}, []string{"kind"})
	EventsDuplicate = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_events_duplicate_total",
		Help: "Повторно доставленные посты, отброшенные дедупликацией",
	})
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_commands_total",
		Help: "Выполненные команды по имени и итогу",
	}, []string{"command", "outcome"})
	CommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bot_command_duration_seconds",
		Help:    "Длительность выполнения команд",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})
	CooldownRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_cooldown_rejections_total",
		Help: "Команды, отклонённые из-за кулдауна",
	})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_notifications_total",
		Help: "Уведомления во внешние каналы",
	}, []string{"channel", "status"})
	ActivePolls = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_active_polls",
		Help: "Активные опросы",
	})
	ActiveSchedules = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_active_schedules",
		Help: "Активные повторяющиеся сообщения",
	})
	ScheduledTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_scheduled_tasks",
		Help: "Задачи в планировщике",
	})
	TaskRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_task_runs_total",
		Help: "Запуски задач планировщика",
	}, []string{"status"})
	SocketReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_socket_reconnects_total",
		Help: "Попытки переподключения к потоку событий",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		EventsReceived,
		EventsDuplicate,
		CommandsTotal,
		CommandDuration,
		CooldownRejections,
		BotSendErrors,
		NotificationsTotal,
		ActivePolls,
		ActiveSchedules,
		ScheduledTasks,
		TaskRuns,
		SocketReconnects,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает отдельный HTTP сервер только с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveCommand фиксирует выполнение команды.
func ObserveCommand(command, outcome string, start time.Time) {
	if command == "" {
		command = "unknown"
	}
	CommandsTotal.WithLabelValues(command, outcome).Inc()
	CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

// ObserveNotification фиксирует результат отправки уведомления.
func ObserveNotification(channel string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	NotificationsTotal.WithLabelValues(channel, status).Inc()
}
