package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Harsh-BH/Intelligenter/internal/app"
	"github.com/Harsh-BH/Intelligenter/internal/config"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "intelctl",
	Short: "Operate the Intelligenter domain analysis service",
	Long: `intelctl runs maintenance tasks against the Intelligenter database:
schema migrations, on-demand refresh cycles and single domain lookups.
Settings are read from the environment and .env like the services.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, err := app.NewLogger(level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// withApp builds the application, runs fn and closes it within the analysis timeout.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Analysis.Timeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		logger.Warn("Shutdown incomplete", zap.Error(err))
	}
	return runErr
}
