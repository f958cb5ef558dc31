package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"tickguard/internal/config"
	"tickguard/internal/metrics"
	"tickguard/internal/model"
)

// Breaker stops calling a sink that keeps failing. While the circuit is open
// Send fails fast with gobreaker.ErrOpenState.
type Breaker struct {
	sink Sink
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreaker(sink Sink, cfg config.BreakerConfig, logger *slog.Logger) *Breaker {
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 10
	}
	rate := cfg.FailureRate
	if rate <= 0 {
		rate = 0.6
	}
	name := sink.Name()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= rate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
			if logger != nil {
				logger.Warn("notification sink circuit changed", "sink", name, "from", from.String(), "to", to.String())
			}
		},
	}
	metrics.SetBreakerState(name, int(gobreaker.StateClosed))
	return &Breaker{sink: sink, cb: gobreaker.NewCircuitBreaker[struct{}](settings)}
}

func (b *Breaker) Name() string { return b.sink.Name() }

func (b *Breaker) Send(ctx context.Context, n model.Notification) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.sink.Send(ctx, n)
	})
	return err
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) Close() error {
	return b.sink.Close()
}
