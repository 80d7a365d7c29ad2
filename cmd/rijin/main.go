package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	thresholdsPath string
	policyPath     string
	logLevel       string
)

// rootCmd базовая команда rijin
var rootCmd = &cobra.Command{
	Use:   "rijin",
	Short: "Regime classification and admission gating for NIFTY/SENSEX intraday signals",
	Long: `rijin watches 5-minute bars, classifies the trading day, tracks the session impulse
and decides whether candidate entries may be taken. It only alerts and journals;
no orders are placed.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&thresholdsPath, "thresholds", "", "Path to thresholds YAML (overrides THRESHOLDS_PATH)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "Path to permission matrix YAML (overrides POLICY_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
