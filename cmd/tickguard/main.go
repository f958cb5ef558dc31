package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tickguard/internal/config"
	"tickguard/internal/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "tickguard",
		Short: "Telemetry intake, detection and alerting for game server clusters",
		Long: `tickguard receives telemetry from game server and proxy plugins, detects
alt accounts and performance degradation, and forwards moderator alerts to a
notification sink.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("TICKGUARD_CONFIG"), "Path to a YAML or JSON config file")

	load := func() (*config.Manager, *slog.Logger, error) {
		m, err := config.NewManager(config.ResolvePath(configPath))
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		cfg := m.Get()
		logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
		slog.SetDefault(logger)
		return m, logger, nil
	}

	root.AddCommand(newServeCmd(load))
	root.AddCommand(newMigrateCmd(load))
	root.AddCommand(newSweepCmd(load))
	root.AddCommand(newVersionCmd())
	return root
}

type loader func() (*config.Manager, *slog.Logger, error)
