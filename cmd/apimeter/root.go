package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apimeter",
	Short: "Usage accounting and rate-limit decision service",
	Long: `apimeter is the usage-accounting and rate-limit decision core of an
API-management backend.

For every metered request it checks per-period quotas, produces usage
reports, selects the most constraining limit for rate-limit headers, and
raises threshold-crossing alerts with rolling utilization history.

Quick start:
  apimeter serve    # Start the decision service`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "apimeter.yaml", "config file path")
}
