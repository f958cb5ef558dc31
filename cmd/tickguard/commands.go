package main

import (
	"runtime"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"tickguard/internal/retention"
)

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the storage schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, logger, err := load()
			if err != nil {
				return err
			}
			cfg := m.Get()
			store, err := openStore(cmd.Context(), cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()
			logger.Info("schema up to date", "driver", cfg.Storage.Driver)
			return nil
		},
	}
}

func newSweepCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention pass and print what was deleted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, logger, err := load()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), m.Get().Storage)
			if err != nil {
				return err
			}
			defer store.Close()
			deleted, err := retention.NewSweeper(store, m, logger).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			out, err := json.Marshal(deleted)
			if err != nil {
				return err
			}
			cmd.Println(string(out))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version)
			cmd.Printf("go: %s\n", runtime.Version())
			cmd.Printf("platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
