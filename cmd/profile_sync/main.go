// Package main provides the profile_sync command: the LinkedIn profile sync API server and
// an interactive scraper.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/profile-sync/internal/config"
	"github.com/jonathan/profile-sync/internal/telemetry"
)

var (
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
	tel    telemetry.Telemetry
)

var rootCmd = &cobra.Command{
	Use:   "profile_sync",
	Short: "LinkedIn profile sync",
	Long:  "profile_sync signs in to LinkedIn with a headless browser, survives security challenges, and extracts profile text for import.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		var err error
		logger, err = newLogger(verbose)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		tel, err = telemetry.Setup(context.Background(), "profile-sync", cfg.Telemetry())
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output with development logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file")
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// shutdownTracing flushes spans whether or not the command succeeded.
func shutdownTracing() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil && logger != nil {
		logger.Warn("failed to flush traces", zap.Error(err))
	}
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	err := rootCmd.Execute()
	shutdownTracing()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
