package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kirillm/rijin-bot/internal/clock"
	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/engine"
	"github.com/kirillm/rijin-bot/internal/feed"
	"github.com/kirillm/rijin-bot/internal/orchestrator"
)

var (
	replayFile        string
	replayNotify      bool
	replayInstruments []string
)

// replayCmd прогон пайплайна по файлу баров с поддельными часами
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run the pipeline over a recorded bar file",
	Long: `Replays a JSON bar file ({"interval":"5minute","instruments":{"NIFTY":[...]}})
bar by bar on a simulated clock and prints the final per-instrument status.

Example usage:
  rijin replay --file bars.json
  rijin replay --file bars.json --instrument NIFTY --notify`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(cmd.Context(), replayFile, replayInstruments, replayNotify, cmd.OutOrStdout())
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayFile, "file", "", "Path to the replay JSON file")
	replayCmd.Flags().BoolVar(&replayNotify, "notify", false, "Send events to configured Telegram/Kafka/Postgres sinks")
	replayCmd.Flags().StringSliceVar(&replayInstruments, "instrument", nil, "Replay only these instruments")
	_ = replayCmd.MarkFlagRequired("file")
}

func runReplay(ctx context.Context, path string, only []string, notifySinks bool, out io.Writer) error {
	cfg, err := config.LoadOffline()
	if err != nil {
		return err
	}
	r, err := feed.LoadReplay(path)
	if err != nil {
		return err
	}
	instruments, err := selectInstruments(r.Instruments(), only)
	if err != nil {
		return err
	}
	cfg.Engine.Instruments = instruments

	steps := r.Steps()
	if len(steps) == 0 {
		return fmt.Errorf("replay file %s has no bars", path)
	}
	step, err := feed.IntervalDuration(r.Interval())
	if err != nil {
		return err
	}

	clk := clock.NewFake(steps[0])
	a, err := newApp(ctx, cfg, clk, appOptions{external: notifySinks})
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	orch, err := orchestrator.New(orchestrator.Config{
		PollInterval: step,
		HistoryDays:  cfg.Engine.HistoryDays,
		Interval:     r.Interval(),
	}, r, clk, a.logger, pipelines(a)...)
	if err != nil {
		return err
	}

	a.logger.Info("⏪ Replaying %d steps for %v", len(steps), instruments)
	for _, e := range a.engines {
		e.NotifyStarted(ctx, clk.Now(), "Replay started")
	}

	var runErr error
	for _, at := range steps {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		clk.Set(at)
		if err := orch.RunOnce(ctx); err != nil {
			runErr = err
			break
		}
	}

	reason := "replay finished"
	if runErr != nil {
		reason = runErr.Error()
	}
	for _, e := range a.engines {
		e.NotifyStopped(context.WithoutCancel(ctx), clk.Now(), reason)
	}

	if err := writeSummary(out, orch.Status()); err != nil {
		return err
	}
	return runErr
}

// selectInstruments пересечение инструментов файла с фильтром
func selectInstruments(available, only []string) ([]string, error) {
	if len(only) == 0 {
		return available, nil
	}
	have := make(map[string]bool, len(available))
	for _, name := range available {
		have[name] = true
	}
	var out []string
	for _, name := range only {
		if !have[name] {
			return nil, fmt.Errorf("instrument %s is not in the replay file", name)
		}
		out = append(out, name)
	}
	return out, nil
}

func writeSummary(out io.Writer, statuses []engine.Status) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(statuses)
}
