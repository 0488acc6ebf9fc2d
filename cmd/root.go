package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceverify/internal/config"
	"github.com/kozaktomas/faceverify/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "faceverify",
	Short: "Face verification service for employee check-in",
	Long: `faceverify compares a face captured at check-in against the employee's
stored reference photo and reports whether they belong to the same person.

It runs as an HTTP service (serve) and ships a few operator commands for
checking models and reference photos from the command line.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads and validates the configuration and sets up logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Load()
	if level := mustGetString(cmd, "log-level"); level != "" {
		cfg.Log.Level = level
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
