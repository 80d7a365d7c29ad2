package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillm/rijin-bot/internal/api"
	"github.com/kirillm/rijin-bot/internal/clock"
	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/feed"
	"github.com/kirillm/rijin-bot/internal/orchestrator"
)

// runCmd живой режим: Kite, уведомления, HTTP статус
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Monitor configured instruments live",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runLive(ctx)
	},
}

func runLive(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	clk := clock.Real{}
	a, err := newApp(ctx, cfg, clk, appOptions{external: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			a.logger.Warn("⚠️ Failed to close resources: %v", err)
		}
	}()

	bars := feed.NewFailover(
		feed.NewResilient(feed.NewKiteClient(cfg.Kite), feed.ResilientOptions{
			RequestsPerSec: cfg.Kite.RequestsPerSec,
			Backoff: clock.Backoff{
				Attempts: cfg.Engine.FeedRetryAttempts,
				Base:     time.Second,
				Max:      cfg.Engine.MaxFeedBackoff,
			},
			Clock:    clk,
			Observer: a.recorder,
		}),
		clk, 5*time.Minute, a.logger.With("component", "feed"),
	)

	orch, err := orchestrator.New(orchestrator.Config{
		PollInterval: cfg.Engine.PollInterval,
		HistoryDays:  cfg.Engine.HistoryDays,
		Interval:     cfg.Engine.Interval,
	}, bars, clk, a.logger, pipelines(a)...)
	if err != nil {
		return err
	}

	var aiStats api.AIStatsProvider
	if a.filter != nil {
		aiStats = a.filter
	}
	server := api.NewServer(a.logger, cfg.HTTP.Addr, orch, aiStats, a.registry)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start(ctx) }()

	if err := orch.Start(ctx); err != nil {
		return err
	}
	if a.tgAPI != nil && cfg.Telegram.Commands {
		go newCommandBot(a, newController(orch, a.engines)).Start(ctx)
	}
	a.logger.Info("✅ rijin running for %v", cfg.Engine.Instruments)

	select {
	case <-ctx.Done():
		a.logger.Info("🛑 Shutdown signal received")
		orch.Stop()
		if err := <-serverErr; err != nil {
			a.logger.Warn("⚠️ HTTP server shutdown: %v", err)
		}
		return nil
	case err := <-serverErr:
		orch.Stop()
		if err != nil {
			a.logger.Error("❌ HTTP server failed: %v", err)
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

func pipelines(a *app) []orchestrator.Pipeline {
	out := make([]orchestrator.Pipeline, 0, len(a.engines))
	for _, e := range a.engines {
		out = append(out, e)
	}
	return out
}
