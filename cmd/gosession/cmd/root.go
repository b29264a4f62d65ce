// Package cmd holds the gosession command tree.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goSession/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "gosession",
	Short: "Session authentication server and maintenance tool",
	Long: `gosession serves the reference HTTP API over a goSession engine and runs
maintenance tasks against its storage.

Settings come from GOSESSION_* environment variables and an optional config file.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (yaml, json or toml)")
}

func loadApp() (config.App, error) {
	src, err := config.NewSource(config.WithFile(configFile))
	if err != nil {
		return config.App{}, err
	}
	return config.LoadApp(src)
}
