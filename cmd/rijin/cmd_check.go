package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/policy"
)

var checkOffline bool

// checkConfigCmd проверяет окружение, пороги и матрицу допуска
var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate environment, thresholds and permission matrix",
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkConfig(cmd.OutOrStdout(), checkOffline)
	},
}

func init() {
	checkConfigCmd.Flags().BoolVar(&checkOffline, "offline", false, "Skip Kite credential checks (replay setup)")
}

func checkConfig(out io.Writer, offline bool) error {
	load := config.Load
	if offline {
		load = config.LoadOffline
	}
	cfg, err := load()
	if err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	thresholds, matrix, err := loadRules(cfg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Instruments\t%s\n", strings.Join(cfg.Engine.Instruments, ", "))
	fmt.Fprintf(w, "Poll interval\t%v (%s bars, %d history days)\n", cfg.Engine.PollInterval, cfg.Engine.Interval, cfg.Engine.HistoryDays)
	fmt.Fprintf(w, "Signal source\t%s\n", cfg.Engine.SignalSource)
	fmt.Fprintf(w, "Trading cutoff\t%s (special day %s)\n", thresholds.Session.TradingCutoff, thresholds.Session.SpecialDayNoEntryAfter)
	fmt.Fprintf(w, "Expiry days\t%s\n", formatExpiry(thresholds.Session.ExpiryWeekdays))
	fmt.Fprintf(w, "Permission rows\t%s\n", strings.Join(categories(matrix), ", "))
	fmt.Fprintf(w, "Telegram\t%s\n", onOff(cfg.Telegram.Enabled()))
	fmt.Fprintf(w, "Kafka\t%s\n", onOff(cfg.Kafka.Enabled()))
	fmt.Fprintf(w, "Postgres journal\t%s\n", onOff(cfg.Database.Enabled()))
	fmt.Fprintf(w, "Redis brake store\t%s\n", onOff(cfg.Redis.Enabled()))
	fmt.Fprintf(w, "AI filter\t%s\n", onOff(cfg.AI.Enabled))
	fmt.Fprintf(w, "HTTP\t%s\n", cfg.HTTP.Addr)
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "✅ Configuration OK")
	return nil
}

func formatExpiry(days map[string]string) string {
	parts := make([]string, 0, len(days))
	for instrument, day := range days {
		parts = append(parts, instrument+"="+day)
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func categories(m *policy.Matrix) []string {
	out := make([]string, 0, len(m.Categories))
	for name := range m.Categories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
