package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirillm/rijin-bot/internal/clock"
	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/pkg/utils"
)

// Sink получатель событий ядра
type Sink interface {
	Notify(ctx context.Context, event domain.Event) error
}

// SinkFunc адаптер функции к Sink
type SinkFunc func(ctx context.Context, event domain.Event) error

func (f SinkFunc) Notify(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}

// Multi рассылает событие во все получатели; ошибка одного не мешает остальным
type Multi []Sink

func (m Multi) Notify(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrNotifier, errors.Join(errs...))
	}
	return nil
}

// Retrying повторяет отправку с ограниченным экспоненциальным backoff
type Retrying struct {
	sink    Sink
	clk     clock.Clock
	backoff clock.Backoff
	timeout time.Duration
}

// NewRetrying оборачивает получатель повторами; каждая попытка ограничена timeout
func NewRetrying(sink Sink, clk clock.Clock, backoff clock.Backoff, timeout time.Duration) *Retrying {
	return &Retrying{sink: sink, clk: clk, backoff: backoff, timeout: timeout}
}

func (r *Retrying) Notify(ctx context.Context, event domain.Event) error {
	return r.backoff.Do(ctx, r.clk, func(ctx context.Context) error {
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		return r.sink.Notify(ctx, event)
	})
}

// LogSink пишет события в лог
type LogSink struct {
	logger *utils.Logger
}

// NewLogSink создает получатель, пишущий в лог
func NewLogSink(logger *utils.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) Notify(_ context.Context, e domain.Event) error {
	zl := l.logger.Zerolog()
	ev := zl.Info()
	switch e.Kind {
	case domain.EventSignalRejected:
		ev = zl.Debug()
	case domain.EventSessionStopped, domain.EventBreakerTriggered:
		ev = zl.Warn()
	}

	ev = ev.Str("event_id", e.ID).
		Str("kind", string(e.Kind)).
		Str("instrument", e.Instrument).
		Time("at", e.At).
		Str("regime", e.Regime.String())
	if e.Gate != "" {
		ev = ev.Str("gate", e.Gate)
	}
	if e.Reason != "" {
		ev = ev.Str("reason", e.Reason)
	}
	if e.Closed != nil {
		ev = ev.Str("exit", string(e.Closed.Exit)).Float64("pnl_r", e.Closed.PnLR)
	}
	ev.Msg(e.Message)
	return nil
}
