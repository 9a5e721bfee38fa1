package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "Trading session lifecycle and broker reconciliation daemon",
	Long: `Engine keeps a trading system's broker session alive and its cached
position state honest.

It provides:
  - Daily credential exchange with staged expiry countdown
  - Periodic session health probes with automatic re-login
  - Broker-vs-cache position reconciliation with audited resolutions
  - Startup recovery of risk state, journals, and paused strategies`,
}

var (
	configPath string
	paperMode  bool
)

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "", "path to YAML config file (defaults apply when omitted)")
	rootCmd.PersistentFlags().BoolVar(&paperMode, "paper", false, "use the in-memory simulated broker")
}
