package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tickguard/internal/config"
	"tickguard/internal/metrics"
	"tickguard/internal/model"
	"tickguard/internal/storage"
)

const chunkBlocks = 16

type thresholds struct {
	tick  config.TickThresholds
	chunk config.ChunkThresholds
}

// PerfMonitor classifies tick samples and chunk scans against the configured
// thresholds and turns plugin lag reports into findings.
type PerfMonitor struct {
	store     storage.Store
	alerts    Notifier
	snapshots *metrics.Store
	logger    *slog.Logger
	limits    atomic.Value

	mu         sync.Mutex
	windows    map[string]*TickWindow
	windowSize time.Duration
}

func NewPerfMonitor(cfg *config.Config, store storage.Store, alerts Notifier, snapshots *metrics.Store, logger *slog.Logger) *PerfMonitor {
	p := &PerfMonitor{
		store:      store,
		alerts:     alerts,
		snapshots:  snapshots,
		logger:     logger,
		windows:    make(map[string]*TickWindow),
		windowSize: cfg.Metrics.TickWindow,
	}
	p.UpdateConfig(cfg)
	return p
}

func (p *PerfMonitor) UpdateConfig(cfg *config.Config) {
	p.limits.Store(thresholds{tick: cfg.Detection.Tick, chunk: cfg.Detection.Chunk})
}

func (p *PerfMonitor) thresholds() thresholds {
	if v, ok := p.limits.Load().(thresholds); ok {
		return v
	}
	def := config.DefaultConfig()
	return thresholds{tick: def.Detection.Tick, chunk: def.Detection.Chunk}
}

// TickSeverity grades a tick rate. ok is false when tps is at or above the
// alert threshold.
func TickSeverity(tps float64, t config.TickThresholds) (model.Severity, bool) {
	switch {
	case tps >= t.Alert:
		return "", false
	case tps < t.Critical:
		return model.SeverityCritical, true
	case tps < t.High:
		return model.SeverityHigh, true
	default:
		return model.SeverityMedium, true
	}
}

// ClassifyChunk applies the chunk rules in order; the first match wins.
func ClassifyChunk(c model.ChunkReport, t config.ChunkThresholds) (model.LagKind, model.Severity, bool) {
	switch {
	case c.EntityCount >= t.EntityCritical:
		return model.LagEntitySpam, model.SeverityCritical, true
	case c.EntityCount >= t.EntityHigh:
		return model.LagEntitySpam, model.SeverityHigh, true
	case c.Hoppers >= t.Hoppers:
		return model.LagHopper, model.SeverityHigh, true
	case c.Redstone >= t.Redstone:
		return model.LagRedstone, model.SeverityHigh, true
	}
	return "", "", false
}

// HandleTick stores the sample, refreshes the server snapshot and raises a
// tps_drop finding below the alert threshold.
func (p *PerfMonitor) HandleTick(ctx context.Context, s *model.TickSample) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if err := p.store.SaveTickSample(ctx, *s); err != nil {
		return fmt.Errorf("save tick sample: %w", err)
	}
	severity, degraded := TickSeverity(s.TicksPerSecond, p.thresholds().tick)
	p.updateSnapshot(*s, severity)
	if !degraded {
		return nil
	}
	finding := model.LagFinding{
		ID:       uuid.NewString(),
		ServerID: s.ServerID,
		Kind:     model.LagTPSDrop,
		Severity: severity,
		Details:  fmt.Sprintf("TPS dropped to %.2f (%.1f ms/tick)", s.TicksPerSecond, s.MillisPerTick),
		Metrics: map[string]float64{
			"tps":           s.TicksPerSecond,
			"mspt":          s.MillisPerTick,
			"loaded_chunks": float64(s.LoadedChunks),
			"entities":      float64(s.EntityCount),
			"players":       float64(s.PlayerCount),
		},
		Timestamp: s.Timestamp,
	}
	alert := model.Alert{
		Key:         "tps_" + s.ServerID,
		Kind:        model.AlertTPS,
		Severity:    severity,
		Title:       "Low TPS on " + s.ServerID,
		Description: finding.Details,
		Fields: []model.Field{
			{Name: "TPS", Value: fmt.Sprintf("%.2f", s.TicksPerSecond), Inline: true},
			{Name: "MSPT", Value: fmt.Sprintf("%.1f", s.MillisPerTick), Inline: true},
			{Name: "Players", Value: fmt.Sprint(s.PlayerCount), Inline: true},
			{Name: "Entities", Value: fmt.Sprint(s.EntityCount), Inline: true},
			{Name: "Loaded chunks", Value: fmt.Sprint(s.LoadedChunks), Inline: true},
		},
		ServerID: s.ServerID,
	}
	return p.persistAndAlert(ctx, finding, alert)
}

func (p *PerfMonitor) updateSnapshot(s model.TickSample, severity model.Severity) {
	p.mu.Lock()
	w, ok := p.windows[s.ServerID]
	if !ok {
		w = NewTickWindow(p.windowSize)
		p.windows[s.ServerID] = w
	}
	w.Add(s)
	stats := w.Stats()
	p.mu.Unlock()
	if p.snapshots == nil {
		return
	}
	p.snapshots.Update(model.ServerSnapshot{
		ServerID:  s.ServerID,
		Latest:    s,
		Window:    stats,
		Severity:  severity,
		UpdatedAt: s.Timestamp,
	})
}

// ResetWindows drops the rolling tick windows of every server.
func (p *PerfMonitor) ResetWindows() {
	p.mu.Lock()
	p.windows = make(map[string]*TickWindow)
	p.mu.Unlock()
}

// HandleChunkScan upserts every chunk record and raises findings for the
// flagged ones. A failing chunk does not stop the rest of the scan.
func (p *PerfMonitor) HandleChunkScan(ctx context.Context, scan *model.ChunkScan) error {
	limits := p.thresholds().chunk
	var errs []error
	for _, c := range scan.Chunks {
		if err := p.handleChunk(ctx, scan, c, limits); err != nil {
			errs = append(errs, fmt.Errorf("chunk %s/%d/%d: %w", c.World, c.ChunkX, c.ChunkZ, err))
		}
	}
	return errors.Join(errs...)
}

func (p *PerfMonitor) handleChunk(ctx context.Context, scan *model.ChunkScan, c model.ChunkReport, limits config.ChunkThresholds) error {
	kind, severity, flagged := ClassifyChunk(c, limits)
	record := model.ChunkRecord{
		ChunkKey:        model.ChunkKey{ServerID: scan.ServerID, World: c.World, ChunkX: c.ChunkX, ChunkZ: c.ChunkZ},
		EntityCount:     c.EntityCount,
		EntityBreakdown: c.EntityBreakdown,
		TileEntityCount: c.TileEntityCount,
		DeviceCounts:    model.DeviceCounts{Hoppers: c.Hoppers, Redstone: c.Redstone},
		Flagged:         flagged,
		FlagReason:      string(kind),
		LastUpdated:     scan.Timestamp,
	}
	if err := p.store.UpsertChunk(ctx, record); err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	if !flagged {
		return nil
	}

	cx, cz := c.ChunkX, c.ChunkZ
	finding := model.LagFinding{
		ID:       uuid.NewString(),
		ServerID: scan.ServerID,
		Kind:     kind,
		Severity: severity,
		Location: &model.Location{
			World:  c.World,
			X:      float64(cx * chunkBlocks),
			Z:      float64(cz * chunkBlocks),
			ChunkX: &cx,
			ChunkZ: &cz,
		},
		Details: chunkDetails(kind, c),
		Metrics: map[string]float64{
			"entities":      float64(c.EntityCount),
			"tile_entities": float64(c.TileEntityCount),
			"hoppers":       float64(c.Hoppers),
			"redstone":      float64(c.Redstone),
		},
		Timestamp: scan.Timestamp,
	}
	if len(c.PlayersNearby) > 0 {
		nearby := c.PlayersNearby[0]
		finding.PlayerNearby = &nearby
	}
	fields := []model.Field{
		{Name: "World", Value: c.World, Inline: true},
		{Name: "Chunk", Value: fmt.Sprintf("%d, %d", cx, cz), Inline: true},
		{Name: "Block", Value: fmt.Sprintf("%d, %d", cx*chunkBlocks, cz*chunkBlocks), Inline: true},
		{Name: "Entities", Value: fmt.Sprint(c.EntityCount), Inline: true},
		{Name: "Hoppers", Value: fmt.Sprint(c.Hoppers), Inline: true},
		{Name: "Redstone", Value: fmt.Sprint(c.Redstone), Inline: true},
	}
	if finding.PlayerNearby != nil {
		fields = append(fields, model.Field{Name: "Player nearby", Value: displayName(finding.PlayerNearby.Name, finding.PlayerNearby.AccountID)})
	}
	alert := model.Alert{
		Key:         fmt.Sprintf("chunk_%s_%d_%d", scan.ServerID, cx, cz),
		Kind:        model.AlertChunk,
		Severity:    severity,
		Title:       fmt.Sprintf("Problem chunk on %s", scan.ServerID),
		Description: finding.Details,
		Fields:      fields,
		ServerID:    scan.ServerID,
	}
	return p.persistAndAlert(ctx, finding, alert)
}

func chunkDetails(kind model.LagKind, c model.ChunkReport) string {
	switch kind {
	case model.LagHopper:
		return fmt.Sprintf("%d hoppers in chunk %d, %d (%s)", c.Hoppers, c.ChunkX, c.ChunkZ, c.World)
	case model.LagRedstone:
		return fmt.Sprintf("%d redstone components in chunk %d, %d (%s)", c.Redstone, c.ChunkX, c.ChunkZ, c.World)
	default:
		return fmt.Sprintf("%d entities in chunk %d, %d (%s)", c.EntityCount, c.ChunkX, c.ChunkZ, c.World)
	}
}

// HandleLagReport trusts the severity the plugin declared.
func (p *PerfMonitor) HandleLagReport(ctx context.Context, r *model.LagReport) error {
	finding := model.LagFinding{
		ID:           uuid.NewString(),
		ServerID:     r.ServerID,
		Kind:         r.Kind,
		Severity:     r.Severity,
		Location:     r.Location,
		Details:      r.Details,
		Metrics:      r.Metrics,
		PlayerNearby: r.PlayerNearby,
		Timestamp:    r.Timestamp,
	}
	fields := []model.Field{
		{Name: "Server", Value: r.ServerID, Inline: true},
		{Name: "Type", Value: string(r.Kind), Inline: true},
		{Name: "Severity", Value: string(r.Severity), Inline: true},
	}
	if loc := r.Location; loc != nil {
		fields = append(fields, model.Field{Name: "Location", Value: fmt.Sprintf("%s %.0f, %.0f", loc.World, loc.X, loc.Z)})
	}
	if r.PlayerNearby != nil {
		fields = append(fields, model.Field{Name: "Player nearby", Value: displayName(r.PlayerNearby.Name, r.PlayerNearby.AccountID)})
	}
	alert := model.Alert{
		Key:         fmt.Sprintf("lag_%s_%s", r.ServerID, r.Kind),
		Kind:        model.AlertLag,
		Severity:    r.Severity,
		Title:       fmt.Sprintf("Lag detected on %s", r.ServerID),
		Description: r.Details,
		Fields:      fields,
		ServerID:    r.ServerID,
	}
	return p.persistAndAlert(ctx, finding, alert)
}

func (p *PerfMonitor) HandleImpact(ctx context.Context, s *model.ImpactSample) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if err := p.store.SaveImpactSample(ctx, *s); err != nil {
		return fmt.Errorf("save impact sample: %w", err)
	}
	return nil
}

// persistAndAlert stores the finding and forwards the alert carrying its id.
// Nothing is stored while the alert key is cooling down.
func (p *PerfMonitor) persistAndAlert(ctx context.Context, finding model.LagFinding, alert model.Alert) error {
	if !p.alerts.Permit(alert.Key, alert.Kind) {
		return nil
	}
	if err := p.store.CreateLagFinding(ctx, finding); err != nil {
		return fmt.Errorf("create lag finding: %w", err)
	}
	metrics.RecordFinding(string(finding.Kind), string(finding.Severity))
	if p.logger != nil {
		p.logger.Info("lag finding recorded",
			"finding_id", finding.ID,
			"server_id", finding.ServerID,
			"kind", finding.Kind,
			"severity", finding.Severity,
		)
	}
	alert.FindingID = finding.ID
	p.alerts.Deliver(ctx, alert)
	return nil
}
