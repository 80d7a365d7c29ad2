package clock

import (
	"context"
	"errors"
	"time"
)

// Backoff ограниченный экспоненциальный повтор; паузы идут по Clock и прерываются контекстом
type Backoff struct {
	Attempts  int
	Base      time.Duration
	Max       time.Duration
	Retryable func(error) bool // nil: повторять любую ошибку
}

// Delay пауза перед попыткой attempt (с нуля)
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	return d
}

// Do выполняет fn до Attempts раз и возвращает последнюю ошибку
func (b Backoff) Do(ctx context.Context, c Clock, fn func(ctx context.Context) error) error {
	attempts := b.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if b.Retryable != nil && !b.Retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		if serr := Sleep(ctx, c, b.Delay(attempt)); serr != nil {
			return serr
		}
	}
	return err
}
