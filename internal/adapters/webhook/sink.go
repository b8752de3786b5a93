package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/infra/metrics"
	"whop-chat-bot/internal/infra/retry"
)

// Ограничения Discord на размер embed.
const (
	titleLimit       = 256
	descriptionLimit = 4096
	fieldNameLimit   = 256
	fieldValueLimit  = 1024
	maxFields        = 25
)

// Sink отправляет уведомления в Discord-совместимые вебхуки по имени канала.
type Sink struct {
	urls       map[string]string
	httpClient *http.Client
	log        zerolog.Logger
}

type Option func(*Sink)

func WithHTTPClient(client *http.Client) Option {
	return func(s *Sink) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewSink создаёт отправитель; urls - карта канал → URL.
func NewSink(urls map[string]string, log zerolog.Logger, opts ...Option) *Sink {
	copied := make(map[string]string, len(urls))
	for name, u := range urls {
		copied[name] = u
	}
	s := &Sink{
		urls:       copied,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Channels возвращает число настроенных каналов.
func (s *Sink) Channels() int { return len(s.urls) }

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

// Notify отправляет карточку. Ответ 4xx, кроме 429, помечается как неповторяемый.
func (s *Sink) Notify(ctx context.Context, n domain.Notification) (err error) {
	channel := string(n.Channel)
	defer func() { metrics.ObserveNotification(channel, err) }()

	target, ok := s.urls[channel]
	if !ok || target == "" {
		return retry.Permanent(fmt.Errorf("%w: %s", domain.ErrUnknownChannel, channel))
	}

	raw, err := json.Marshal(payload{Embeds: []embed{toEmbed(n)}})
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal webhook payload: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	metrics.ObserveNetworkRequest("webhook", channel, hostOf(target), start, err)
	if err != nil {
		return fmt.Errorf("webhook %s request failed: %w", channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err = fmt.Errorf("webhook %s: status=%d message=%s", channel, resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	s.log.Debug().Str("channel", channel).Str("title", n.Title).Msg("уведомление отправлено")
	return nil
}

func toEmbed(n domain.Notification) embed {
	e := embed{
		Title:       truncate(n.Title, titleLimit),
		Description: truncate(n.Description, descriptionLimit),
		Color:       n.Color,
	}
	for i, f := range n.Fields {
		if i == maxFields {
			break
		}
		value := f.Value
		if strings.TrimSpace(value) == "" {
			value = "-"
		}
		e.Fields = append(e.Fields, embedField{
			Name:   truncate(f.Name, fieldNameLimit),
			Value:  truncate(value, fieldValueLimit),
			Inline: f.Inline,
		})
	}
	if n.Footer != "" {
		e.Footer = &embedFooter{Text: n.Footer}
	}
	if !n.Timestamp.IsZero() {
		e.Timestamp = n.Timestamp.UTC().Format(time.RFC3339)
	}
	return e
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

var _ domain.NotificationSink = (*Sink)(nil)
