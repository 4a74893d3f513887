package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "mercator",
	Short: "mercator is an AI API gateway fronting a single upstream assistant endpoint",
	Long: `mercator is an HTTP gateway that accepts Anthropic, OpenAI, and
Gemini-dialect requests and dispatches them against a single upstream
assistant endpoint through a pool of rotating credentials, with
session affinity, history compaction, and rate-limited failover.

For more information, visit: https://github.com/kiroproxy/gateway`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Disable default completion command (we'll add our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
