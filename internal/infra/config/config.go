package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию бота.
type AppConfig struct {
	AppEnv        string `envconfig:"APP_ENV" default:"dev"`
	HTTPAddr      string `envconfig:"HTTP_ADDR" default:":8080"`
	CommandPrefix string `envconfig:"COMMAND_PREFIX" default:"/"`
	// MetricsAddr - отдельный адрес для /metrics; пусто - только основной сервер.
	MetricsAddr   string `envconfig:"METRICS_ADDR"`
	AdminAPIToken string `envconfig:"ADMIN_API_TOKEN"`
	// HousekeepingCron - расписание обновления метрик состояния.
	HousekeepingCron string `envconfig:"HOUSEKEEPING_CRON" default:"*/1 * * * *"`

	Whop struct {
		APIKey      string        `envconfig:"WHOP_API_KEY"`
		AgentUserID string        `envconfig:"WHOP_ADMIN_USER_ID"`
		APIURL      string        `envconfig:"WHOP_API_URL" default:"https://api.whop.com/public-graphql"`
		WSURL       string        `envconfig:"WHOP_WS_URL" default:"wss://ws-prod.whop.com/ws/developer"`
		Timeout     time.Duration `envconfig:"WHOP_API_TIMEOUT" default:"15s"`

		AppID              string `envconfig:"WHOP_APP_ID"`
		AnnouncementFeedID string `envconfig:"WHOP_ANNOUNCEMENT_FEED_ID"`
	} `envconfig:""`

	Whitelist struct {
		Admin    []string `envconfig:"WHOP_ADMIN_WHITELIST"`
		Cooldown []string `envconfig:"WHOP_COOLDOWN_WHITELIST"`
	} `envconfig:""`

	Cooldown struct {
		Seconds       int `envconfig:"WHOP_CHAT_COOLDOWN_SECONDS" default:"10"`
		NoticeMinutes int `envconfig:"WHOP_CHAT_COOLDOWN_NOTICE_MINUTES" default:"5"`
	} `envconfig:""`

	Webhooks struct {
		URLs           WebhookURLs   `envconfig:"WEBHOOK_URLS"`
		Moderation     string        `envconfig:"MODERATION_WEBHOOK_URL"`
		Poll           string        `envconfig:"POLL_WEBHOOK_URL"`
		Log            string        `envconfig:"LOG_WEBHOOK_URL"`
		ContentRewards string        `envconfig:"CONTENT_REWARDS_WEBHOOK_URL"`
		RetryAttempts  int           `envconfig:"NOTIFY_RETRY_ATTEMPTS" default:"3"`
		RetryBase      time.Duration `envconfig:"NOTIFY_RETRY_BASE" default:"500ms"`
	} `envconfig:""`

	Socket struct {
		ReconnectInterval time.Duration `envconfig:"WS_RECONNECT_INTERVAL" default:"5s"`
		ReconnectAttempts int           `envconfig:"WS_RECONNECT_ATTEMPTS" default:"10"`
	} `envconfig:""`
}

// WebhookURLs разбирает список вида name:url,name:url. Двоеточия внутри URL сохраняются.
type WebhookURLs map[string]string

// Decode реализует envconfig.Decoder.
func (w *WebhookURLs) Decode(value string) error {
	out := make(WebhookURLs)
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(url) == "" {
			return fmt.Errorf("invalid webhook item %q", pair)
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(url)
	}
	*w = out
	return nil
}

// WebhookChannels собирает карту канал → URL из общей и именованных переменных.
// Именованные переменные имеют приоритет.
func (c AppConfig) WebhookChannels() map[string]string {
	out := make(map[string]string, len(c.Webhooks.URLs)+4)
	for name, url := range c.Webhooks.URLs {
		name = strings.TrimSpace(name)
		url = strings.TrimSpace(url)
		if name == "" || url == "" {
			continue
		}
		out[name] = url
	}
	named := map[string]string{
		"moderation":      c.Webhooks.Moderation,
		"poll":            c.Webhooks.Poll,
		"log":             c.Webhooks.Log,
		"content_rewards": c.Webhooks.ContentRewards,
	}
	for name, url := range named {
		if url = strings.TrimSpace(url); url != "" {
			out[name] = url
		}
	}
	return out
}

// Load загружает конфиг из окружения, предварительно подхватывая .env.
func Load() AppConfig {
	_ = godotenv.Load()
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse разбирает переменные окружения без побочных эффектов.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
