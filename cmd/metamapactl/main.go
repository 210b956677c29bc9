package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"metamapa/app"
	"metamapa/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "metamapactl",
		Short:         "One-shot MetaMapa pipeline jobs (ingest, refresh, export, backup)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newIngestCmd(),
		newRefreshCmd(),
		newExportCmd(),
		newBackupCmd(),
	)
	return rootCmd
}

// withApp lädt Konfiguration und verdrahtet die Anwendung für einen einzelnen Befehl.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building application: %w", err)
	}
	return fn(a)
}
