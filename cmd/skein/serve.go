package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skeinhq/skein/internal/engine"
	"github.com/skeinhq/skein/internal/logging"
	"github.com/skeinhq/skein/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dependency engine HTTP API",
	Long: `Start the HTTP server exposing the dependency engine.

Endpoints cover task type identification, dependency validation and
auto-fix, phase and global rule application, full project planning,
published graph views, and agent eligibility checks.

Configuration is read from ~/.config/skein/config.yaml with project
overrides in .skein.yaml. Bearer tokens come from auth.tokens or the
SKEIN_AUTH_TOKEN environment variable; with no tokens configured the
server runs unauthenticated.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	log, err := logging.Open(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer log.Close()

	eng, err := engine.FromConfig(cfg, log)
	if err != nil {
		return fmt.Errorf("assemble engine: %w", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	srv := server.New(eng, cfg.Server, cfg.Auth, log)
	fmt.Printf("Listening on %s\n", cfg.Server.Addr)
	return srv.Run(ctx)
}
