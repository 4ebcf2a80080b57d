package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"plant-id/api/internal/config"
	"plant-id/api/internal/logging"
)

var (
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "plantid",
	Short: "Plant identification from a photo via vision LLMs",
	Long: `plantid sends a plant photo to a vision model (Gemini or OpenAI)
and normalizes the answer into a structured plant record.

Configuration comes from environment variables, an optional .env file
and an optional YAML file named by PLANTID_CONFIG.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		logger, err = logging.New(cfg.LogLevel, verbose)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging (raw model responses)")

	identifyCmd.Flags().StringVar(&identifyEngine, "engine", "", "engine to use: gemini | gpt (default from DEFAULT_ENGINE)")
	identifyCmd.Flags().DurationVar(&identifyTimeout, "timeout", 0, "identification timeout (default REQUEST_TIMEOUT)")
	purgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 0, "delete cached identifications older than this (default CACHE_MAX_AGE)")

	rootCmd.AddCommand(serveCmd, identifyCmd, purgeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
