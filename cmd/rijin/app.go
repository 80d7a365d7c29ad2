package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"

	"github.com/kirillm/rijin-bot/internal/ai"
	"github.com/kirillm/rijin-bot/internal/breakers"
	"github.com/kirillm/rijin-bot/internal/clock"
	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/engine"
	"github.com/kirillm/rijin-bot/internal/metrics"
	"github.com/kirillm/rijin-bot/internal/notify"
	"github.com/kirillm/rijin-bot/internal/policy"
	"github.com/kirillm/rijin-bot/internal/signal"
	"github.com/kirillm/rijin-bot/internal/storage"
	"github.com/kirillm/rijin-bot/pkg/utils"
)

// app собранные зависимости процесса
type app struct {
	cfg        *config.Config
	thresholds *config.Thresholds
	matrix     *policy.Matrix
	logger     *utils.Logger
	registry   *prometheus.Registry
	recorder   *metrics.Recorder
	clk        clock.Clock
	sink       notify.Sink
	brake      *breakers.CorrelationBrake
	filter     *ai.FailOpen
	tgAPI      *tgbotapi.BotAPI
	engines    []*engine.Engine
	closers    []func() error
}

type appOptions struct {
	// external включает Telegram, Kafka, Postgres, Redis и AI фильтр, если они настроены
	external bool
}

// newApp собирает пайплайны всех инструментов
func newApp(ctx context.Context, cfg *config.Config, clk clock.Clock, opts appOptions) (*app, error) {
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}

	a := &app{
		cfg:      cfg,
		logger:   utils.NewLogger(level),
		registry: prometheus.NewRegistry(),
		clk:      clk,
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.recorder = metrics.New(a.registry)

	var err error
	if a.thresholds, a.matrix, err = loadRules(cfg); err != nil {
		return nil, err
	}

	if err := a.buildSink(ctx, opts); err != nil {
		_ = a.close()
		return nil, err
	}
	if err := a.buildBrake(ctx, opts); err != nil {
		_ = a.close()
		return nil, err
	}
	if opts.external && cfg.AI.Enabled {
		client := ai.NewAIClient(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.Timeout)
		a.filter = ai.NewFailOpen(ai.NewQualityFilter(client, clk), a.logger.With("component", "ai"), a.recorder.AIFailOpen)
		a.logger.Info("🤖 AI quality filter enabled (%s)", cfg.AI.Model)
	}
	if err := a.buildEngines(); err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

// loadRules загружает пороги и матрицу допуска; флаги приоритетнее окружения
func loadRules(cfg *config.Config) (*config.Thresholds, *policy.Matrix, error) {
	tp, pp := cfg.ThresholdsPath, cfg.PolicyPath
	if thresholdsPath != "" {
		tp = thresholdsPath
	}
	if policyPath != "" {
		pp = policyPath
	}

	thresholds, err := config.LoadThresholds(tp)
	if err != nil {
		return nil, nil, err
	}
	matrix, err := policy.LoadMatrix(pp)
	if err != nil {
		return nil, nil, err
	}
	return thresholds, matrix, nil
}

func (a *app) buildSink(ctx context.Context, opts appOptions) error {
	sinks := notify.Multi{notify.NewLogSink(a.logger.With("component", "events"))}
	if !opts.external {
		a.sink = sinks
		return nil
	}

	// повторы доставки идут по реальному времени и в replay
	retry := clock.Backoff{Attempts: 3, Base: time.Second, Max: 10 * time.Second}

	if a.cfg.Telegram.Enabled() {
		logger := a.logger.With("component", "telegram")
		api, err := notify.NewTelegramAPI(a.cfg.Telegram.BotToken, logger)
		if err != nil {
			return err
		}
		a.tgAPI = api
		tg := notify.NewTelegramSinkWithSender(api, a.cfg.Telegram.ChatID, logger)
		sinks = append(sinks, notify.NewRetrying(tg, clock.Real{}, retry, 10*time.Second))
		a.logger.Info("📱 Telegram notifications enabled")
	}

	if a.cfg.Kafka.Enabled() {
		k, err := notify.NewKafkaSink(a.cfg.Kafka)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, k.Close)
		sinks = append(sinks, notify.NewRetrying(k, clock.Real{}, retry, 10*time.Second))
		a.logger.Info("📨 Kafka event stream enabled (topic %s)", a.cfg.Kafka.Topic)
	}

	if a.cfg.Database.Enabled() {
		db, err := storage.NewPostgresStorage(ctx, a.cfg.Database)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		sinks = append(sinks, notify.NewJournalSink(db, db))
		a.logger.Info("🗄️ Postgres journal enabled (%s)", a.cfg.Database.DBName)
	}

	a.sink = sinks
	return nil
}

func (a *app) buildBrake(ctx context.Context, opts appOptions) error {
	var store breakers.Store = breakers.NewMemoryStore()
	if opts.external && a.cfg.Redis.Enabled() {
		client, err := breakers.NewRedisClient(ctx, a.cfg.Redis)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		store = breakers.NewRedisStore(client, "")
		a.logger.Info("🔗 Correlation brake state in Redis (%s)", a.cfg.Redis.Addr)
	}
	a.brake = breakers.NewCorrelationBrake(a.thresholds.Correlation, store, a.cfg.Engine.CorrelatedGroups)
	return nil
}

func (a *app) buildEngines() error {
	for _, instrument := range a.cfg.Engine.Instruments {
		deps := engine.Deps{
			Thresholds:   a.thresholds,
			Matrix:       a.matrix,
			Brake:        a.brake,
			Source:       a.source(),
			Sink:         a.sink,
			Metrics:      a.recorder,
			Logger:       a.logger,
			Capital:      decimal.NewFromFloat(a.cfg.Engine.Capital),
			RiskPerTrade: decimal.NewFromFloat(a.cfg.Engine.RiskPerTrade),
		}
		if a.filter != nil {
			deps.Filter = a.filter
		}

		e, err := engine.New(instrument, deps)
		if err != nil {
			return fmt.Errorf("engine %s: %w", instrument, err)
		}
		a.engines = append(a.engines, e)
	}
	return nil
}

// source генератор кандидатов по SIGNAL_SOURCE
func (a *app) source() signal.Source {
	switch a.cfg.Engine.SignalSource {
	case config.SignalSourceOpening:
		return signal.NewOpeningImpulse(a.thresholds.OpeningImpulse)
	case config.SignalSourceNone:
		return nil
	default:
		return signal.First{
			signal.NewOpeningImpulse(a.thresholds.OpeningImpulse),
			signal.NewModeF(),
		}
	}
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
