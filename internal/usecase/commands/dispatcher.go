package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"whop-chat-bot/internal/domain"
	"whop-chat-bot/internal/infra/metrics"
)

const (
	restrictedMessage = "This command is restricted to administrators only."
	unknownMessage    = "Unknown command. Type /help for available commands."
)

// Membership проверяет наличие пользователя в белом списке.
type Membership interface {
	Contains(id string) bool
}

// Dispatcher проверяет права, разбирает аргументы и выполняет команды.
type Dispatcher struct {
	prefix   string
	registry *Registry
	admins   Membership
	sender   domain.MessageSender
	log      zerolog.Logger
}

// NewDispatcher создаёт диспетчер.
func NewDispatcher(prefix string, registry *Registry, admins Membership, sender domain.MessageSender, logger zerolog.Logger) *Dispatcher {
	if prefix == "" {
		prefix = "/"
	}
	return &Dispatcher{prefix: prefix, registry: registry, admins: admins, sender: sender, log: logger}
}

// Prefix возвращает префикс команд.
func (d *Dispatcher) Prefix() string { return d.prefix }

// CommandName извлекает имя команды из текста. ok=false, если префикса нет.
func (d *Dispatcher) CommandName(raw string) (string, bool) {
	if !strings.HasPrefix(raw, d.prefix) {
		return "", false
	}
	fields := strings.Fields(strings.TrimPrefix(raw, d.prefix))
	if len(fields) == 0 {
		return "", true
	}
	return strings.ToLower(fields[0]), true
}

// IsKnown сообщает, является ли текст вызовом зарегистрированной команды.
func (d *Dispatcher) IsKnown(raw string) bool {
	name, ok := d.CommandName(raw)
	if !ok || name == "" {
		return false
	}
	_, found := d.registry.Lookup(name)
	return found
}

// HasPrivilege объединяет роль платформы и административный белый список.
func (d *Dispatcher) HasPrivilege(userID string, isAdmin bool) bool {
	return isAdmin || (d.admins != nil && d.admins.Contains(userID))
}

// Execute проводит команду через проверку прав, разбор и выполнение.
func (d *Dispatcher) Execute(ctx context.Context, inv Invocation) Result {
	name, ok := d.CommandName(inv.Raw)
	if !ok {
		return Result{Success: false, Message: fmt.Sprintf("Commands must start with `%s`.", d.prefix)}
	}
	def, found := d.registry.Lookup(name)
	if !found {
		return Result{Success: false, Message: unknownMessage}
	}

	start := time.Now()
	logger := d.log.With().Str("command", def.Name).Str("user", inv.UserID).Str("feed", inv.FeedID).Logger()
	session := domain.Session{UserID: inv.UserID, FeedID: inv.FeedID, FeedType: inv.FeedType}
	privileged := d.HasPrivilege(inv.UserID, inv.IsAdmin)

	if def.AdminOnly && !privileged {
		d.reply(ctx, logger, session, restrictedMessage)
		metrics.ObserveCommand(def.Name, "denied", start)
		logger.Info().Msg("команда отклонена: нет прав")
		return Result{Success: false, Message: "Permission denied: must be an admin to use this command", MessageSent: true}
	}

	args, err := def.parse(inv.Raw, inv.Mentions)
	if err != nil {
		d.reply(ctx, logger, session, parseFailureText(def, err))
		metrics.ObserveCommand(def.Name, "usage", start)
		logger.Debug().Err(err).Msg("ошибка разбора аргументов")
		return Result{Success: false, Message: "Failed to parse command arguments", MessageSent: true}
	}

	env := NewEnv(session, privileged, d.sender)
	res, err := d.run(ctx, def, args, env)
	if err != nil {
		logger.Error().Err(err).Msg("ошибка выполнения команды")
		d.reply(ctx, logger, session, "Error: "+err.Error())
		failure := Result{Success: false, Message: err.Error(), MessageSent: true}
		d.callHook(ctx, logger, def, failure, env, args)
		metrics.ObserveCommand(def.Name, "error", start)
		return failure
	}

	if !res.Success && !res.SkipWebhook {
		d.callHook(ctx, logger, def, res, env, args)
	}
	outcome := "success"
	if !res.Success {
		outcome = "failure"
	}
	metrics.ObserveCommand(def.Name, outcome, start)
	logger.Info().Bool("success", res.Success).Str("result", res.Message).Msg("команда выполнена")
	return res
}

func (d *Dispatcher) run(ctx context.Context, def Definition, args any, env Env) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected error: %v", r)
		}
	}()
	return def.exec(ctx, args, env)
}

func (d *Dispatcher) callHook(ctx context.Context, logger zerolog.Logger, def Definition, res Result, env Env, args any) {
	if def.onFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("паника в хуке ошибки")
		}
	}()
	if err := def.onFailure(ctx, res, env, args); err != nil {
		logger.Error().Err(err).Msg("хук ошибки команды завершился с ошибкой")
	}
}

func (d *Dispatcher) reply(ctx context.Context, logger zerolog.Logger, session domain.Session, text string) {
	err := d.sender.SendMessage(ctx, domain.OutgoingMessage{FeedID: session.FeedID, FeedType: session.FeedType, Text: text})
	if err != nil {
		metrics.BotSendErrors.Inc()
		logger.Error().Err(err).Msg("не удалось отправить ответ")
	}
}

func parseFailureText(def Definition, err error) string {
	var usage *UsageError
	if errors.As(err, &usage) && usage.Message != "" {
		return usage.Message
	}
	if def.Usage != "" {
		return "Usage: " + def.Usage
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return "Usage error"
}
