package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kirillm/rijin-bot/internal/clock"
	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/engine"
	"github.com/kirillm/rijin-bot/internal/feed"
	"github.com/kirillm/rijin-bot/pkg/utils"
)

// Pipeline пайплайн одного инструмента; реализуется engine.Engine
type Pipeline interface {
	Instrument() string
	ProcessBars(ctx context.Context, bars []domain.Bar, now time.Time) (*engine.CycleResult, error)
	NotifyStarted(ctx context.Context, now time.Time, message string)
	NotifyStopped(ctx context.Context, now time.Time, reason string)
	Status() engine.Status
}

// Config конфигурация циклов
type Config struct {
	PollInterval time.Duration // пауза между циклами инструмента
	HistoryDays  int           // сколько прошлых дней загружать для индикаторов
	Interval     string        // интервал баров Kite
}

// Orchestrator запускает по одному циклу на инструмент
type Orchestrator struct {
	cfg       Config
	step      time.Duration
	pipelines []Pipeline
	feed      feed.Feed
	clk       clock.Clock
	logger    *utils.Logger

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
	halted    map[string]error
}

// New создает orchestrator
func New(cfg Config, source feed.Feed, clk clock.Clock, logger *utils.Logger, pipelines ...Pipeline) (*Orchestrator, error) {
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be positive", domain.ErrInvalidInput)
	}
	if cfg.Interval == "" {
		cfg.Interval = domain.Interval5Minute
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 1
	}
	step, err := feed.IntervalDuration(cfg.Interval)
	if err != nil {
		return nil, err
	}
	if len(pipelines) == 0 {
		return nil, fmt.Errorf("%w: no instruments configured", domain.ErrInvalidInput)
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = utils.Nop()
	}

	return &Orchestrator{
		cfg:       cfg,
		step:      step,
		pipelines: pipelines,
		feed:      source,
		clk:       clk,
		logger:    logger,
		halted:    make(map[string]error),
	}, nil
}

// Start запускает циклы инструментов
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.isRunning {
		return fmt.Errorf("orchestrator already running")
	}
	o.isRunning = true
	o.stopChan = make(chan struct{})

	o.logger.Info("🚀 Orchestrator started for %d instruments (interval: %v)", len(o.pipelines), o.cfg.PollInterval)
	for _, p := range o.pipelines {
		o.wg.Add(1)
		go o.run(ctx, p, o.stopChan)
	}
	return nil
}

// Stop останавливает циклы и ждет их завершения
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.isRunning {
		o.mu.Unlock()
		return
	}
	o.logger.Info("🛑 Stopping orchestrator...")
	close(o.stopChan)
	o.isRunning = false
	o.mu.Unlock()

	o.wg.Wait()
	o.logger.Info("✅ Orchestrator stopped")
}

// Wait ждет завершения всех циклов (отмена контекста или остановка)
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// run основной цикл инструмента
func (o *Orchestrator) run(ctx context.Context, p Pipeline, stop <-chan struct{}) {
	defer o.wg.Done()

	logger := o.logger.With("instrument", p.Instrument())
	p.NotifyStarted(ctx, o.clk.Now(), fmt.Sprintf("Monitoring %s every %v", p.Instrument(), o.cfg.PollInterval))

	// stop прерывает и паузы повторов внутри цикла, а не только ожидание следующего цикла
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	for {
		if err := o.cycle(loopCtx, p); err != nil {
			logger.Error("❌ Loop halted: %v", err)
			o.mu.Lock()
			o.halted[p.Instrument()] = err
			o.mu.Unlock()
			p.NotifyStopped(context.WithoutCancel(ctx), o.clk.Now(), err.Error())
			return
		}

		select {
		case <-o.clk.After(o.cfg.PollInterval):
		case <-stop:
			p.NotifyStopped(context.WithoutCancel(ctx), o.clk.Now(), "shutdown")
			return
		case <-ctx.Done():
			p.NotifyStopped(context.WithoutCancel(ctx), o.clk.Now(), "context cancelled")
			return
		}
	}
}

// RunOnce выполняет по одному циклу для каждого инструмента по очереди (replay)
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	for _, p := range o.pipelines {
		if _, halted := o.Halted()[p.Instrument()]; halted {
			continue
		}
		if err := o.cycle(ctx, p); err != nil {
			o.mu.Lock()
			o.halted[p.Instrument()] = err
			o.mu.Unlock()
			return fmt.Errorf("%s: %w", p.Instrument(), err)
		}
	}
	return nil
}

// cycle загружает бары и прогоняет пайплайн; ошибку возвращает только порча состояния
func (o *Orchestrator) cycle(ctx context.Context, p Pipeline) error {
	now := o.clk.Now()
	if !o.marketOpen(now) {
		return nil
	}

	logger := o.logger.With("instrument", p.Instrument())
	from := domain.MarketOpen.On(tradingDaysBack(domain.SessionDate(now), o.cfg.HistoryDays))

	bars, err := o.feed.FetchBars(ctx, p.Instrument(), from, now, o.cfg.Interval)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("Fetch interrupted: %v", ctx.Err())
			return nil
		}
		logger.Warn("⚠️ Failed to fetch bars, skipping cycle: %v", err)
		return nil
	}
	bars = feed.Completed(bars, now, o.step)
	if len(bars) == 0 {
		logger.Debug("No completed bars yet")
		return nil
	}

	res, err := p.ProcessBars(ctx, bars, now)
	switch {
	case errors.Is(err, domain.ErrStateCorruption):
		return err
	case errors.Is(err, domain.ErrInsufficientData), errors.Is(err, domain.ErrMalformedBars):
		logger.Debug("Cycle skipped: %v", err)
		return nil
	case err != nil:
		logger.Warn("⚠️ Cycle failed: %v", err)
		return nil
	}

	if res != nil && res.Decision != nil {
		logger.Debug("Decision: admitted=%v gate=%s", res.Decision.Admitted, res.Decision.Verdict.Gate)
	}
	return nil
}

// marketOpen торговый день и время после закрытия первого бара
func (o *Orchestrator) marketOpen(now time.Time) bool {
	ist := now.In(domain.IST)
	if wd := ist.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	first := domain.MarketOpen.On(ist).Add(o.step)
	closeAt := domain.MarketClose.On(ist).Add(o.step)
	return !ist.Before(first) && !ist.After(closeAt)
}

// tradingDaysBack n-й будний день перед day
func tradingDaysBack(day time.Time, n int) time.Time {
	for n > 0 {
		day = day.AddDate(0, 0, -1)
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return day
}

// Status снимки всех инструментов
func (o *Orchestrator) Status() []engine.Status {
	out := make([]engine.Status, 0, len(o.pipelines))
	for _, p := range o.pipelines {
		out = append(out, p.Status())
	}
	return out
}

// Halted инструменты, чьи циклы остановлены ошибкой
func (o *Orchestrator) Halted() map[string]error {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]error, len(o.halted))
	for k, v := range o.halted {
		out[k] = v
	}
	return out
}

// IsRunning циклы запущены
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isRunning
}
