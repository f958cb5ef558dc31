package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"tickguard/internal/alerts"
	"tickguard/internal/api"
	"tickguard/internal/auth"
	"tickguard/internal/config"
	"tickguard/internal/engine"
	"tickguard/internal/ingest"
	"tickguard/internal/metrics"
	"tickguard/internal/normalize"
	"tickguard/internal/notify"
	"tickguard/internal/resolve"
	"tickguard/internal/retention"
	"tickguard/internal/storage"
	"tickguard/internal/supervisor"
)

const configWatchInterval = 3 * time.Second

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingest gateway, detectors, query API and retention sweeper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, logger, err := load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), m, logger)
		},
	}
}

func runServe(ctx context.Context, m *config.Manager, logger *slog.Logger) error {
	cfg := m.Get()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	hasher, err := engine.NewAddressHasher(cfg.Detection.AddressHashKey)
	if err != nil {
		return err
	}
	if !hasher.Keyed() {
		logger.Warn("detection.address_hash_key not set, address hashes are unkeyed")
	}

	sink, err := notify.New(cfg.Notify, logger)
	if err != nil {
		return fmt.Errorf("notification sink: %w", err)
	}
	defer sink.Close()

	ring := alerts.NewStore(cfg.Alerts.StoreLimit)
	controller := alerts.NewController(cfg, sink, ring, logger)
	snapshots := metrics.NewStore(cfg.Metrics.StoreLimit)
	eng := engine.NewEngine(cfg, logger,
		engine.NewAltDetector(store, hasher, controller, logger),
		engine.NewPerfMonitor(cfg, store, controller, snapshots, logger),
	)
	// in-flight handlers finish before the store closes
	defer eng.Wait()

	mode := auth.NewMode(cfg.Ingest.SharedSecret)
	mode.Warn(logger, "ingest")
	perm := resolve.NewAllowList(cfg.Resolution.AllowedActors)
	perm.Warn(logger)

	tree := supervisor.NewTree(logger, supervisor.DefaultTreeConfig())
	tree.AddBackground(retention.NewSweeper(store, m, logger))
	if m.Path() != "" {
		tree.AddBackground(supervisor.NewConfigWatcher(m, configWatchInterval, func(next *config.Config) {
			eng.UpdateConfig(next)
			controller.UpdateConfig(next)
			perm.UpdateConfig(next)
		}, logger))
	}

	intake := ingest.NewIntake(normalize.New(time.UTC), eng, logger)
	if rest := cfg.Ingest.REST; rest.Enabled {
		gw := ingest.NewGateway(rest, mode, intake, logger)
		tree.AddIntake(supervisor.NewHTTPService("ingest-gateway", newHTTPServer(rest.Addr, gw.Routes()), 0))
		logger.Info("rest ingest enabled", "addr", rest.Addr, "auth", mode.String())
	}
	if cfg.Ingest.Kafka.Enabled {
		tree.AddIntake(ingest.NewConsumer(cfg.Ingest.Kafka, intake, logger))
	}
	if cfg.API.Enabled {
		srv := api.NewServer(api.Deps{
			Config:    m,
			Store:     store,
			Snapshots: snapshots,
			Alerts:    ring,
			Cooldown:  controller.Cooldown(),
			Engine:    eng,
			Workflow:  resolve.NewWorkflow(store, perm, logger),
			Auth:      mode,
			Logger:    logger,
			Version:   version,
		})
		tree.AddIntake(supervisor.NewHTTPService("query-api", newHTTPServer(cfg.API.Addr, srv.Routes()), 0))
		logger.Info("api enabled", "addr", cfg.API.Addr)
	}

	logger.Info("tickguard started",
		"version", version,
		"storage", cfg.Storage.Driver,
		"notify", sink.Name(),
		"config", m.Path(),
	)
	err = tree.Serve(ctx)
	logger.Info("tickguard stopping")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	store, err := storage.NewStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return store, nil
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
