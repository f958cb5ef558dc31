package retention

import (
	"context"
	"log/slog"
	"time"

	"tickguard/internal/config"
	"tickguard/internal/metrics"
	"tickguard/internal/storage"
)

// Sweeper deletes records past their retention period on a fixed interval.
// Passes are idempotent and do not coordinate with ingestion.
type Sweeper struct {
	store  storage.Store
	cfg    *config.Manager
	logger *slog.Logger
	now    func() time.Time
}

func NewSweeper(store storage.Store, cfg *config.Manager, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Cutoffs converts the retention periods into the oldest kept timestamp per
// table. A zero period keeps the table forever.
func Cutoffs(r config.RetentionConfig, now time.Time) storage.Cutoffs {
	cut := func(d time.Duration) time.Time {
		if d <= 0 {
			return time.Time{}
		}
		return now.Add(-d)
	}
	return storage.Cutoffs{
		Connections:  cut(r.Connections),
		TickSamples:  cut(r.TickSamples),
		Impact:       cut(r.Impact),
		LagFindings:  cut(r.LagFindings),
		ChunkRecords: cut(r.ChunkRecords),
	}
}

// Sweep runs one retention pass.
func (s *Sweeper) Sweep(ctx context.Context) (storage.Deleted, error) {
	start := s.now()
	d, err := s.store.DeleteExpired(ctx, Cutoffs(s.cfg.Get().Retention, start))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("retention sweep failed", "err", err)
		}
		return d, err
	}
	metrics.RecordRetention("connections", d.Connections)
	metrics.RecordRetention("tick_samples", d.TickSamples)
	metrics.RecordRetention("impact_samples", d.Impact)
	metrics.RecordRetention("lag_findings", d.LagFindings)
	metrics.RecordRetention("chunk_records", d.ChunkRecords)
	if s.logger != nil {
		s.logger.Info("retention sweep done",
			"deleted", d.Total(),
			"connections", d.Connections,
			"tick_samples", d.TickSamples,
			"impact", d.Impact,
			"lag_findings", d.LagFindings,
			"chunk_records", d.ChunkRecords,
			"took", s.now().Sub(start),
		)
	}
	return d, nil
}

// Serve sweeps once at start and then every retention interval until ctx is
// done. The interval is re-read after each pass.
func (s *Sweeper) Serve(ctx context.Context) error {
	for {
		if s.cfg.Get().Retention.Enabled {
			_, _ = s.Sweep(ctx)
		}
		interval := s.cfg.Get().Retention.Interval
		if interval <= 0 {
			interval = time.Hour
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *Sweeper) String() string { return "retention-sweeper" }
