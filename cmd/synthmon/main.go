package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"synthmon/internal/config"
)

var version = "1.0.0"

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:     "synthmon",
	Short:   "Synthetic monitoring engine driving real browser checks",
	Version: version,
	Long: `Synthmon checks registered URLs with a real headless browser on a fixed
interval, extracts page performance metrics (TTFB, DOM content loaded,
page load), captures a HAR network trace per check, and persists every
execution for dashboards and the control API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file before reading configuration")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
}

// loadConfig resolves the effective configuration: optional env file,
// then YAML file, then environment variable overrides.
func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}
	return config.Load(configFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
