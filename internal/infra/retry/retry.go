package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy описывает ограниченный повтор с экспоненциальной задержкой.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter - доля случайного разброса задержки, 0..1.
	Jitter float64
}

// Default соответствует трём попыткам с базовой задержкой 500мс.
func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Jitter: 0.2}
}

// OnRetry вызывается перед каждой повторной попыткой.
type OnRetry func(err error, wait time.Duration)

// Do выполняет fn, повторяя при ошибке не более MaxAttempts раз суммарно.
// Ошибка, обёрнутая через Permanent, прекращает повторы сразу.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, notify OnRetry) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	if exp.InitialInterval <= 0 {
		exp.InitialInterval = time.Millisecond
	}
	exp.Multiplier = 2
	exp.RandomizationFactor = p.Jitter
	exp.MaxElapsedTime = 0
	if p.MaxDelay > 0 {
		exp.MaxInterval = p.MaxDelay
	}
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)

	op := func() error { return fn(ctx) }
	var n backoff.Notify
	if notify != nil {
		n = func(err error, wait time.Duration) { notify(err, wait) }
	}
	return backoff.RetryNotify(op, b, n)
}

// Permanent помечает ошибку как неповторяемую.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
