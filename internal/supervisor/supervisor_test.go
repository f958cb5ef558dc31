package supervisor

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"tickguard/internal/config"
)

type fakeServer struct {
	stop     chan struct{}
	shutdown atomic.Bool
	failWith error
}

func (s *fakeServer) ListenAndServe() error {
	if s.failWith != nil {
		return s.failWith
	}
	<-s.stop
	return http.ErrServerClosed
}

func (s *fakeServer) Shutdown(context.Context) error {
	s.shutdown.Store(true)
	close(s.stop)
	return nil
}

func TestHTTPServiceShutsDownOnCancel(t *testing.T) {
	srv := &fakeServer{stop: make(chan struct{})}
	svc := NewHTTPService("api", srv, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not return")
	}
	if !srv.shutdown.Load() {
		t.Fatalf("server was not shut down")
	}
}

func TestHTTPServiceReportsListenError(t *testing.T) {
	srv := &fakeServer{stop: make(chan struct{}), failWith: errors.New("address in use")}
	err := NewHTTPService("ingest", srv, time.Second).Serve(context.Background())
	if err == nil || err.Error() != "ingest: address in use" {
		t.Fatalf("unexpected error: %v", err)
	}
}

type countingService struct {
	started atomic.Int32
}

func (c *countingService) Serve(ctx context.Context) error {
	c.started.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestTreeRunsServices(t *testing.T) {
	tree := NewTree(nil, TreeConfig{ShutdownTimeout: time.Second})
	bg, in := &countingService{}, &countingService{}
	tree.AddBackground(bg)
	tree.AddIntake(in)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for bg.started.Load() == 0 || in.started.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("services not started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-errCh:
	case <-time.After(3 * time.Second):
		t.Fatalf("tree did not stop")
	}
}

func TestConfigWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickguard.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := config.NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	reloaded := make(chan *config.Config, 1)
	w := NewConfigWatcher(m, 10*time.Millisecond, func(cfg *config.Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Serve(ctx) }()

	later := time.Now().Add(2 * time.Second)
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	select {
	case cfg := <-reloaded:
		if cfg.LogLevel != "debug" {
			t.Fatalf("log level = %q", cfg.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no reload observed")
	}
}
