package commands

import (
	"context"
	"fmt"

	"whop-chat-bot/internal/domain"
)

// Result - итог выполнения команды.
type Result struct {
	Success bool
	Message string
	Data    map[string]any
	// MessageSent означает, что пользователь уже получил ответ.
	MessageSent bool
	// SkipWebhook подавляет хук ошибки для ожидаемых исходов.
	SkipWebhook bool
}

// Env - окружение выполнения команды.
type Env struct {
	UserID   string
	FeedID   string
	FeedType domain.FeedType
	// IsAdmin учитывает и роль платформы, и административный белый список.
	IsAdmin bool
	sender  domain.MessageSender
}

// NewEnv создаёт окружение команды.
func NewEnv(session domain.Session, isAdmin bool, sender domain.MessageSender) Env {
	return Env{UserID: session.UserID, FeedID: session.FeedID, FeedType: session.FeedType, IsAdmin: isAdmin, sender: sender}
}

// Reply отправляет текст в ленту, из которой пришла команда.
func (e Env) Reply(ctx context.Context, text string) error {
	return e.Send(ctx, domain.OutgoingMessage{FeedID: e.FeedID, FeedType: e.FeedType, Text: text})
}

// Send отправляет произвольное сообщение.
func (e Env) Send(ctx context.Context, msg domain.OutgoingMessage) error {
	return e.sender.SendMessage(ctx, msg)
}

// replyResult отправляет text и возвращает результат с MessageSent.
func (e Env) replyResult(ctx context.Context, success bool, text, message string, skipWebhook bool) (Result, error) {
	if err := e.Reply(ctx, text); err != nil {
		return Result{}, err
	}
	return Result{Success: success, Message: message, MessageSent: true, SkipWebhook: skipWebhook}, nil
}

// userError сообщает пользователю об ожидаемой ошибке без уведомления операторов.
func (e Env) userError(ctx context.Context, text, message string) (Result, error) {
	return e.replyResult(ctx, false, text, message, true)
}

// UsageError - ошибка разбора аргументов, текст показывается пользователю.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }

func usageErrorf(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// Invocation - входящая команда.
type Invocation struct {
	Raw      string
	UserID   string
	FeedID   string
	FeedType domain.FeedType
	IsAdmin  bool
	Mentions []string
}

// Spec описывает команду с типизированными аргументами.
type Spec[A any] struct {
	Name      string
	Usage     string
	AdminOnly bool
	Parse     func(raw string, mentions []string) (A, error)
	Exec      func(ctx context.Context, args A, env Env) (Result, error)
	OnFailure func(ctx context.Context, res Result, env Env, args A) error
}

// Definition - команда со стёртым типом аргументов, хранимая в реестре.
type Definition struct {
	Name      string
	Usage     string
	AdminOnly bool

	parse     func(raw string, mentions []string) (any, error)
	exec      func(ctx context.Context, args any, env Env) (Result, error)
	onFailure func(ctx context.Context, res Result, env Env, args any) error
}

// Define превращает типизированное описание в Definition.
func Define[A any](s Spec[A]) Definition {
	def := Definition{Name: s.Name, Usage: s.Usage, AdminOnly: s.AdminOnly}
	def.parse = func(raw string, mentions []string) (any, error) {
		if s.Parse == nil {
			var zero A
			return zero, nil
		}
		return s.Parse(raw, mentions)
	}
	def.exec = func(ctx context.Context, args any, env Env) (Result, error) {
		typed, _ := args.(A)
		return s.Exec(ctx, typed, env)
	}
	if s.OnFailure != nil {
		def.onFailure = func(ctx context.Context, res Result, env Env, args any) error {
			typed, _ := args.(A)
			return s.OnFailure(ctx, res, env, typed)
		}
	}
	return def
}

// noArgs - аргументы команд без параметров.
type noArgs struct{}
