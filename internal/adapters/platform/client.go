package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/infra/metrics"
)

// Client - GraphQL-клиент публичного API платформы.
type Client struct {
	endpoint    *url.URL
	httpClient  *http.Client
	apiKey      string
	agentUserID string
	appID       string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout <= 0 {
			return
		}
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// WithAgent задаёт пользователя, от имени которого действует бот.
func WithAgent(userID string) Option {
	return func(c *Client) { c.agentUserID = userID }
}

// WithAppID задаёт идентификатор приложения для мутаций над сообщениями.
func WithAppID(appID string) Option {
	return func(c *Client) { c.appID = appID }
}

func New(endpoint, apiKey string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	client := &Client{
		endpoint:   parsed,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiKey:     apiKey,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// GraphQLError - ошибки, которые API вернул в поле errors.
type GraphQLError struct {
	Operation string
	Messages  []string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("platform %s: %s", e.Operation, strings.Join(e.Messages, "; "))
}

// Contains проверяет, упоминает ли хотя бы одно сообщение ошибки фразу.
func (e *GraphQLError) Contains(phrase string) bool {
	for _, msg := range e.Messages {
		if strings.Contains(strings.ToLower(msg), phrase) {
			return true
		}
	}
	return false
}

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) call(ctx context.Context, operation, query string, vars map[string]any, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest("platform", operation, c.endpoint.Host, start, err)
	}()

	raw, err := json.Marshal(gqlRequest{OperationName: operation, Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.agentUserID != "" {
		req.Header.Set("x-on-behalf-of", c.agentUserID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("platform %s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var body gqlResponse
	if len(data) > 0 {
		if jsonErr := json.Unmarshal(data, &body); jsonErr != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode response: %w", jsonErr)
		}
	}
	if len(body.Errors) > 0 {
		gqlErr := &GraphQLError{Operation: operation}
		for _, e := range body.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		return gqlErr
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("platform %s: status=%d message=%s", operation, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil || len(body.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(body.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", operation, err)
	}
	return nil
}

// stamp принимает время в секундах, миллисекундах или RFC 3339.
type stamp time.Time

func (s *stamp) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			*s = stamp(time.UnixMilli(n).UTC())
		} else {
			*s = stamp(time.Unix(n, 0).UTC())
		}
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*s = stamp(time.Unix(int64(f), 0).UTC())
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", raw, err)
	}
	*s = stamp(t.UTC())
	return nil
}

func (s stamp) Time() time.Time { return time.Time(s) }

// outcomeFor превращает ответы вида «уже забанен» в ModerationAlreadyInState.
func outcomeFor(result string, err error, phrases ...string) (domain.ModerationOutcome, error) {
	var gqlErr *GraphQLError
	for _, phrase := range phrases {
		if strings.Contains(strings.ToLower(result), phrase) {
			return domain.ModerationAlreadyInState, nil
		}
		if errors.As(err, &gqlErr) && gqlErr.Contains(phrase) {
			return domain.ModerationAlreadyInState, nil
		}
	}
	if err != nil {
		return domain.ModerationApplied, err
	}
	return domain.ModerationApplied, nil
}

var _ domain.PlatformAPI = (*Client)(nil)
