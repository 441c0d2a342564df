package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/skeinhq/skein/internal/config"
	"github.com/skeinhq/skein/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "skein",
	Short: "Task dependency and execution-order engine",
	Long: `Skein turns flat task lists into validated dependency graphs so
autonomous agents pick up work in a safe order.

Core capabilities:
- Classifies tasks into lifecycle phases (design through deployment)
- Enforces phase ordering rules within feature groups
- Applies global rules for documentation and deployment tasks
- Infers cross-feature dependencies from patterns and external reasoning
- Validates graphs, suggests execution order, and applies safe fixes
- Serves the full pipeline over HTTP and answers agent eligibility checks`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (overrides discovery)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the engine configuration, honoring --config.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// cliLogger returns a logger for one-shot commands. Output goes to the
// configured log file; without one it is discarded so reports and the
// inspector keep the terminal to themselves.
func cliLogger(cfg *config.Config) (*logging.Logger, error) {
	if cfg.Log.File == "" {
		return logging.Nop(), nil
	}
	return logging.Open(cfg.Log.File, cfg.Log.Level)
}
