package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	env     string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Harvest supply forecast pipeline",
	Long: `Harvest Unified CLI

Segmented harvest forecasting: one model per commodity and municipality,
plus a pooled Overall model per commodity, retrained as records are verified.

Usage:
  go run ./cmd/harvest [command]

Examples:
  go run ./cmd/harvest api
  go run ./cmd/harvest worker start --concurrency 4
  go run ./cmd/harvest forecast full
  go run ./cmd/harvest scheduler start
  go run ./cmd/harvest test-db`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
