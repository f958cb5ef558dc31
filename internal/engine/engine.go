package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"tickguard/internal/config"
	"tickguard/internal/metrics"
	"tickguard/internal/model"
)

type Handler func(ctx context.Context, ev model.Event) error

// Engine routes normalized events to the detectors. Route runs inline;
// Dispatch runs the same routing detached from the caller.
type Engine struct {
	logger  *slog.Logger
	routes  map[model.EventType]Handler
	alts    *AltDetector
	perf    *PerfMonitor
	timeout atomic.Int64
	wg      sync.WaitGroup
}

func NewEngine(cfg *config.Config, logger *slog.Logger, alts *AltDetector, perf *PerfMonitor) *Engine {
	e := &Engine{
		logger: logger,
		alts:   alts,
		perf:   perf,
		routes: map[model.EventType]Handler{
			model.EventConnection:   route(alts.HandleConnection),
			model.EventAltDetected:  route(alts.HandleReport),
			model.EventTPSUpdate:    route(perf.HandleTick),
			model.EventChunkScan:    route(perf.HandleChunkScan),
			model.EventLagAlert:     route(perf.HandleLagReport),
			model.EventPlayerImpact: route(perf.HandleImpact),
		},
	}
	e.UpdateConfig(cfg)
	return e
}

func route[T model.Event](fn func(context.Context, T) error) Handler {
	return func(ctx context.Context, ev model.Event) error {
		typed, ok := ev.(T)
		if !ok {
			return fmt.Errorf("%w: unexpected payload %T for %s", model.ErrValidation, ev, ev.EventType())
		}
		return fn(ctx, typed)
	}
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.timeout.Store(int64(cfg.Detection.HandlerTimeout))
	if e.perf != nil {
		e.perf.UpdateConfig(cfg)
	}
}

func (e *Engine) handlerTimeout() time.Duration {
	if d := time.Duration(e.timeout.Load()); d > 0 {
		return d
	}
	return config.DefaultConfig().Detection.HandlerTimeout
}

// Route runs the handler registered for the event type. Unknown types are a
// no-op.
func (e *Engine) Route(ctx context.Context, ev model.Event) error {
	if ev == nil {
		return nil
	}
	h, ok := e.routes[ev.EventType()]
	if !ok {
		return nil
	}
	return h(ctx, ev)
}

// Dispatch handles ev in its own goroutine under the handler timeout. Errors
// and panics stop at this boundary and are logged with the event type and key.
func (e *Engine) Dispatch(ev model.Event) {
	if ev == nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.handlerTimeout())
		defer cancel()
		start := time.Now()
		err := e.safeRoute(ctx, ev)
		metrics.RecordHandler(string(ev.EventType()), time.Since(start), err)
		if err != nil && e.logger != nil {
			e.logger.Error("event handler failed",
				"event_type", ev.EventType(),
				"key", EventKey(ev),
				"err", err,
			)
		}
	}()
}

func (e *Engine) safeRoute(ctx context.Context, ev model.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			if e.logger != nil {
				e.logger.Debug("handler panic stack", "event_type", ev.EventType(), "stack", string(debug.Stack()))
			}
		}
	}()
	return e.Route(ctx, ev)
}

// Wait blocks until every dispatched event has been handled.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Reset clears the in-memory tick windows.
func (e *Engine) Reset() {
	if e.perf != nil {
		e.perf.ResetWindows()
	}
}

// EventKey identifies the subject of an event in logs.
func EventKey(ev model.Event) string {
	switch v := ev.(type) {
	case *model.ConnectionEvent:
		return v.AccountID
	case *model.AltReport:
		return v.AccountID
	case *model.TickSample:
		return v.ServerID
	case *model.ChunkScan:
		return v.ServerID
	case *model.LagReport:
		return v.ServerID + "_" + string(v.Kind)
	case *model.ImpactSample:
		return v.ServerID + "_" + v.AccountID
	}
	return ""
}
