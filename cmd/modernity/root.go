package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	logFile  string
)

var rootCmd = &cobra.Command{
	Use:   "modernity",
	Short: "Technology stack assessment assistant",
	Long: `Modernity classifies a request and routes it to the matching branch.

Greetings get a welcome message with usage examples. Source code is handed
to the code analyzer. Descriptions of a technology stack (languages,
frameworks, databases, tools, infrastructure) are categorized, analyzed per
category in parallel and consolidated into a scored modernization report.

Configuration is read from ~/.config/modernity/config.yaml, with
project overrides in .modernity.yaml.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: user and project config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(rubricsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
