package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/kirillm/rijin-bot/internal/clock"
	"github.com/kirillm/rijin-bot/internal/domain"
)

// Observer счетчики обращений к источнику; реализуется metrics.Recorder
type Observer interface {
	FeedError(instrument string)
	ObserveLatency(target string, d time.Duration)
}

// ResilientOptions настройки обертки
type ResilientOptions struct {
	RequestsPerSec float64 // лимит Kite historical API: 3 req/s
	Backoff        clock.Backoff
	Clock          clock.Clock
	Observer       Observer
}

// Resilient ограничивает частоту, повторяет временные ошибки и размыкает цепь после серии отказов
type Resilient struct {
	inner    Feed
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	backoff  clock.Backoff
	clk      clock.Clock
	observer Observer
}

// NewResilient оборачивает источник баров
func NewResilient(inner Feed, opts ResilientOptions) *Resilient {
	rps := opts.RequestsPerSec
	if rps <= 0 {
		rps = 3
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	backoff := opts.Backoff
	if backoff.Retryable == nil {
		backoff.Retryable = Retryable
	}

	return &Resilient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "kite-historical",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				// ошибки данных и запроса не означают недоступность источника
				return err == nil || !Retryable(err)
			},
		}),
		backoff:  backoff,
		clk:      clk,
		observer: opts.Observer,
	}
}

// FetchBars загружает бары с повторами; исчерпанные повторы дают ErrFeedUnavailable
func (r *Resilient) FetchBars(ctx context.Context, instrument string, from, to time.Time, interval string) ([]domain.Bar, error) {
	var bars []domain.Bar
	err := r.backoff.Do(ctx, r.clk, func(ctx context.Context) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}

		start := time.Now()
		out, err := r.breaker.Execute(func() (interface{}, error) {
			return r.inner.FetchBars(ctx, instrument, from, to, interval)
		})
		if r.observer != nil {
			r.observer.ObserveLatency("kite", time.Since(start))
		}
		if err != nil {
			return err
		}
		bars = out.([]domain.Bar)
		return nil
	})
	if err != nil {
		if r.observer != nil {
			r.observer.FeedError(instrument)
		}
		if Retryable(err) || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrFeedUnavailable, instrument, err)
		}
		return nil, err
	}
	return bars, nil
}

// State состояние circuit breaker
func (r *Resilient) State() gobreaker.State {
	return r.breaker.State()
}

// Retryable временная ошибка источника: сеть, 429, 5xx
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrMalformedBars) || errors.Is(err, domain.ErrInvalidInput) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}
