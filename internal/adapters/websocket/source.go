package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/infra/metrics"
)

// ErrReconnectExhausted возвращается, когда исчерпаны попытки переподключения.
var ErrReconnectExhausted = errors.New("websocket reconnect attempts exhausted")

// Config описывает подключение к потоку событий.
type Config struct {
	URL               string
	APIKey            string
	AgentUserID       string
	ReconnectInterval time.Duration
	ReconnectAttempts int
}

// Source читает события платформы из WebSocket и переподключается при обрыве.
type Source struct {
	cfg    Config
	dialer *websocket.Dialer
	log    zerolog.Logger
}

// NewSource создаёт источник событий.
func NewSource(cfg Config, log zerolog.Logger) *Source {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 10
	}
	return &Source{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 15 * time.Second, Proxy: http.ProxyFromEnvironment},
		log:    log,
	}
}

func (s *Source) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+s.cfg.APIKey)
	if s.cfg.AgentUserID != "" {
		h.Set("x-on-behalf-of", s.cfg.AgentUserID)
	}
	return h
}

// Run подключается и публикует события в out до отмены ctx. Счётчик попыток
// сбрасывается после каждого успешного подключения.
func (s *Source) Run(ctx context.Context, out chan<- domain.Event) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.ReconnectInterval), uint64(s.cfg.ReconnectAttempts)),
		ctx,
	)
	for {
		connected, err := s.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			policy.Reset()
		}
		if err != nil {
			s.log.Warn().Err(err).Msg("соединение с потоком событий потеряно")
		}
		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("%w: %v", ErrReconnectExhausted, err)
		}
		metrics.SocketReconnects.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session обслуживает одно подключение. connected сообщает, удалось ли подключиться.
func (s *Source) session(ctx context.Context, out chan<- domain.Event) (connected bool, err error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, s.header())
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		s.emit(ctx, out, domain.ConnectionError{Err: err})
		return false, fmt.Errorf("подключение к %s: %w", s.cfg.URL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	s.log.Info().Str("url", s.cfg.URL).Msg("подключено к потоку событий")
	s.emit(ctx, out, domain.ConnectionOpened{})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				s.emit(ctx, out, domain.ConnectionClosed{Code: closeErr.Code, Reason: closeErr.Text})
			} else if ctx.Err() == nil {
				s.emit(ctx, out, domain.ConnectionError{Err: err})
			}
			return true, err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		ev, ok, err := Decode(data)
		if err != nil {
			s.log.Debug().Err(err).Msg("не удалось разобрать сообщение потока")
			continue
		}
		if ok {
			s.emit(ctx, out, ev)
		}
	}
}

func (s *Source) emit(ctx context.Context, out chan<- domain.Event, ev domain.Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
