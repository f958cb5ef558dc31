package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tickguard/internal/config"
)

type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService adapts an http.Server to suture. Cancellation shuts the server
// down gracefully within shutdownTimeout.
type HTTPService struct {
	name            string
	server          HTTPServer
	shutdownTimeout time.Duration
}

func NewHTTPService(name string, server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	return &HTTPService{name: name, server: server, shutdownTimeout: shutdownTimeout}
}

func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s: %w", h.name, err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s shutdown: %w", h.name, err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string { return h.name }

// ConfigWatcher polls the config file and hands every successful reload to
// onReload. Reload errors keep the previous config.
type ConfigWatcher struct {
	manager  *config.Manager
	interval time.Duration
	onReload func(*config.Config)
	logger   *slog.Logger
}

func NewConfigWatcher(m *config.Manager, interval time.Duration, onReload func(*config.Config), logger *slog.Logger) *ConfigWatcher {
	return &ConfigWatcher{manager: m, interval: interval, onReload: onReload, logger: logger}
}

func (w *ConfigWatcher) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.manager.Watch(w.interval, func(cfg *config.Config) {
			if w.logger != nil {
				w.logger.Info("config reloaded", "path", w.manager.Path())
			}
			if w.onReload != nil {
				w.onReload(cfg)
			}
		}, func(err error) {
			if w.logger != nil {
				w.logger.Warn("config reload failed", "path", w.manager.Path(), "err", err)
			}
		}, stop)
	}()
	<-ctx.Done()
	close(stop)
	<-done
	return ctx.Err()
}

func (w *ConfigWatcher) String() string { return "config-watcher" }
