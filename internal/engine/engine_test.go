package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tickguard/internal/config"
	"tickguard/internal/metrics"
	"tickguard/internal/model"
	"tickguard/internal/storage"
)

type recordingNotifier struct {
	mu      sync.Mutex
	alerts  []model.Alert
	blocked map[string]bool
}

func (r *recordingNotifier) Permit(key string, _ model.AlertKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.blocked[key]
}

func (r *recordingNotifier) Deliver(_ context.Context, a model.Alert) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return true
}

func (r *recordingNotifier) all() []model.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Alert(nil), r.alerts...)
}

type harness struct {
	cfg       *config.Config
	store     storage.Store
	notifier  *recordingNotifier
	snapshots *metrics.Store
	engine    *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	hasher, err := NewAddressHasher("test-key")
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	h := &harness{
		cfg:       cfg,
		store:     storage.NewMemory(),
		notifier:  &recordingNotifier{},
		snapshots: metrics.NewStore(10),
	}
	alts := NewAltDetector(h.store, hasher, h.notifier, nil)
	perf := NewPerfMonitor(cfg, h.store, h.notifier, h.snapshots, nil)
	h.engine = NewEngine(cfg, nil, alts, perf)
	return h
}

func join(account, name, address string) *model.ConnectionEvent {
	return &model.ConnectionEvent{
		AccountID:   account,
		DisplayName: name,
		Address:     address,
		ServerID:    "proxy",
		Kind:        model.ConnectionJoin,
		Timestamp:   time.Now().UTC(),
	}
}

func (h *harness) route(t *testing.T, ev model.Event) {
	t.Helper()
	if err := h.engine.Route(context.Background(), ev); err != nil {
		t.Fatalf("route %s: %v", ev.EventType(), err)
	}
}

func TestRiskScore(t *testing.T) {
	cases := []struct {
		siblings int
		overlap  bool
		want     int
	}{
		{1, false, 45},
		{2, false, 60},
		{3, true, 85},
		{10, true, 85},
		{0, false, 30},
	}
	for _, tc := range cases {
		if got := RiskScore(tc.siblings, tc.overlap); got != tc.want {
			t.Fatalf("RiskScore(%d, %v) = %d, want %d", tc.siblings, tc.overlap, got, tc.want)
		}
	}
}

func TestNamesOverlap(t *testing.T) {
	if !NamesOverlap("Steve", []string{"xxSTEvexx"}) {
		t.Fatalf("expected overlap on shared prefix")
	}
	if !NamesOverlap("notch_alt", []string{"Notch"}) {
		t.Fatalf("expected overlap in reverse direction")
	}
	if NamesOverlap("Steve", []string{"Alex"}) {
		t.Fatalf("unexpected overlap")
	}
	if NamesOverlap("", []string{"Steve"}) || NamesOverlap("Steve", []string{""}) {
		t.Fatalf("empty names must not overlap")
	}
}

func TestNoGroupForUnseenAddress(t *testing.T) {
	h := newHarness(t)
	h.route(t, join("acc-a", "Steve", "10.0.0.1"))
	h.route(t, join("acc-b", "Alex", "10.0.0.2"))
	if n := len(h.notifier.all()); n != 0 {
		t.Fatalf("expected no alerts, got %d", n)
	}
	groups, _ := h.store.ListAltGroups(context.Background(), storage.AltFilter{})
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func TestAltGroupCreatedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.route(t, join("acc-a", "Steve", "10.0.0.1"))
	h.route(t, join("acc-b", "Alex", "10.0.0.1"))

	alerts := h.notifier.all()
	if len(alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Key != "alt_acc-b" || a.Kind != model.AlertAlt || a.FindingID == "" {
		t.Fatalf("unexpected alert: %+v", a)
	}
	group, err := h.store.GetAltGroup(ctx, a.FindingID)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if group.RiskScore != 45 || group.Status != model.AltPending || len(group.LinkedAccounts) != 1 {
		t.Fatalf("unexpected group: %+v", group)
	}
	if len(group.SharedAddressHashes) != 1 || group.SharedAddressHashes[0] == "10.0.0.1" {
		t.Fatalf("group must carry the hash, not the address: %v", group.SharedAddressHashes)
	}

	// acc-a is now linked; joining again must not create a second group
	h.route(t, join("acc-a", "Steve", "10.0.0.1"))
	h.route(t, join("acc-b", "Alex", "10.0.0.1"))
	groups, _ := h.store.ListAltGroups(ctx, storage.AltFilter{})
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d", len(groups))
	}

	// nor from a new address shared with an ungrouped account
	h.route(t, join("acc-d", "Dana", "10.0.0.9"))
	h.route(t, join("acc-a", "Steve", "10.0.0.9"))
	groups, _ = h.store.ListAltGroups(ctx, storage.AltFilter{})
	if len(groups) != 1 {
		t.Fatalf("grouped account joining from a new address created a group: %d groups", len(groups))
	}
	if n := len(h.notifier.all()); n != 1 {
		t.Fatalf("expected a single alert, got %d", n)
	}
}

func TestLeaveSkipsAltCheck(t *testing.T) {
	h := newHarness(t)
	h.route(t, join("acc-a", "Steve", "10.0.0.1"))
	leave := join("acc-b", "Alex", "10.0.0.1")
	leave.Kind = model.ConnectionLeave
	h.route(t, leave)
	if n := len(h.notifier.all()); n != 0 {
		t.Fatalf("leave must not trigger alt detection, got %d alerts", n)
	}
	p, err := h.store.GetProfile(context.Background(), "acc-b")
	if err != nil || p.ConnectionCount != 1 {
		t.Fatalf("profile not upserted: %+v %v", p, err)
	}
}

func TestAltReportUsesDeclaredScore(t *testing.T) {
	h := newHarness(t)
	score := 140
	h.route(t, &model.AltReport{
		AccountID:      "main",
		DisplayName:    "Steve",
		LinkedAccounts: []model.LinkedAccount{{AccountID: "alt", Name: "Steve2"}, {AccountID: "main"}},
		RiskScore:      &score,
		Timestamp:      time.Now().UTC(),
	})
	alerts := h.notifier.all()
	if len(alerts) != 1 || alerts[0].Severity != model.SeverityCritical {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
	g, err := h.store.GetAltGroup(context.Background(), alerts[0].FindingID)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if g.RiskScore != 100 || len(g.LinkedAccounts) != 1 {
		t.Fatalf("unexpected group: %+v", g)
	}

	// a second report for a grouped account re-alerts on the same group
	h.route(t, &model.AltReport{AccountID: "alt", LinkedAccounts: []model.LinkedAccount{{AccountID: "other"}}})
	alerts = h.notifier.all()
	if len(alerts) != 2 || alerts[1].FindingID != g.ID {
		t.Fatalf("expected re-alert on existing group, got %+v", alerts)
	}
}

func TestTickSeverity(t *testing.T) {
	limits := config.DefaultConfig().Detection.Tick
	cases := []struct {
		tps  float64
		want model.Severity
		ok   bool
	}{
		{11.9, model.SeverityCritical, true},
		{14.9, model.SeverityHigh, true},
		{17.9, model.SeverityMedium, true},
		{18.0, "", false},
		{20, "", false},
	}
	for _, tc := range cases {
		got, ok := TickSeverity(tc.tps, limits)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("TickSeverity(%v) = %q, %v; want %q, %v", tc.tps, got, ok, tc.want, tc.ok)
		}
	}
}

func TestClassifyChunkFirstMatch(t *testing.T) {
	limits := config.DefaultConfig().Detection.Chunk
	kind, sev, ok := ClassifyChunk(model.ChunkReport{EntityCount: 300, Hoppers: 60}, limits)
	if !ok || kind != model.LagEntitySpam || sev != model.SeverityCritical {
		t.Fatalf("got %s/%s/%v, want entity_spam/critical", kind, sev, ok)
	}
	kind, sev, _ = ClassifyChunk(model.ChunkReport{EntityCount: 10, Hoppers: 50, Redstone: 500}, limits)
	if kind != model.LagHopper || sev != model.SeverityHigh {
		t.Fatalf("got %s/%s, want hopper_lag/high", kind, sev)
	}
	if _, _, ok := ClassifyChunk(model.ChunkReport{EntityCount: 99, Hoppers: 49, Redstone: 99}, limits); ok {
		t.Fatalf("expected unflagged chunk")
	}
}

func TestTickSampleRaisesFinding(t *testing.T) {
	h := newHarness(t)
	h.route(t, &model.TickSample{ServerID: "survival", TicksPerSecond: 19.5, MillisPerTick: 40, Timestamp: time.Now().UTC()})
	h.route(t, &model.TickSample{ServerID: "survival", TicksPerSecond: 11.9, MillisPerTick: 84, Timestamp: time.Now().UTC()})

	alerts := h.notifier.all()
	if len(alerts) != 1 || alerts[0].Key != "tps_survival" || alerts[0].Severity != model.SeverityCritical {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
	f, err := h.store.GetLagFinding(context.Background(), alerts[0].FindingID)
	if err != nil || f.Kind != model.LagTPSDrop {
		t.Fatalf("finding not persisted: %+v %v", f, err)
	}
	snap, ok := h.snapshots.Get("survival")
	if !ok || snap.Window.Samples != 2 || snap.Window.MinTPS != 11.9 || snap.Latest.TicksPerSecond != 11.9 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestChunkScanUpsertsAndFlags(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	scan := func(entities, hoppers int) *model.ChunkScan {
		return &model.ChunkScan{
			ServerID:  "survival",
			Timestamp: time.Now().UTC(),
			Chunks: []model.ChunkReport{
				{World: "world", ChunkX: 2, ChunkZ: -3, EntityCount: entities, Hoppers: hoppers},
				{World: "world", ChunkX: 9, ChunkZ: 9, EntityCount: 4},
			},
		}
	}
	h.route(t, scan(300, 60))
	h.route(t, scan(20, 0))

	rec, err := h.store.GetChunk(ctx, model.ChunkKey{ServerID: "survival", World: "world", ChunkX: 2, ChunkZ: -3})
	if err != nil {
		t.Fatalf("get chunk: %v", err)
	}
	if rec.EntityCount != 20 || rec.Flagged {
		t.Fatalf("expected latest unflagged counts, got %+v", rec)
	}
	all, _ := h.store.ListChunks(ctx, storage.ChunkFilter{ServerID: "survival"})
	if len(all) != 2 {
		t.Fatalf("expected two chunk records, got %d", len(all))
	}

	alerts := h.notifier.all()
	if len(alerts) != 1 || alerts[0].Key != "chunk_survival_2_-3" {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
	f, err := h.store.GetLagFinding(ctx, alerts[0].FindingID)
	if err != nil {
		t.Fatalf("get finding: %v", err)
	}
	if f.Kind != model.LagEntitySpam || f.Severity != model.SeverityCritical {
		t.Fatalf("unexpected finding: %+v", f)
	}
	if f.Location == nil || f.Location.X != 32 || f.Location.Z != -48 {
		t.Fatalf("expected block coordinates, got %+v", f.Location)
	}
}

func TestCoolingDownKeyStoresNoFinding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.notifier.blocked = map[string]bool{"tps_survival": true, "chunk_survival_1_1": true}
	h.route(t, &model.TickSample{ServerID: "survival", TicksPerSecond: 10, Timestamp: time.Now().UTC()})
	h.route(t, &model.ChunkScan{
		ServerID:  "survival",
		Timestamp: time.Now().UTC(),
		Chunks:    []model.ChunkReport{{World: "world", ChunkX: 1, ChunkZ: 1, EntityCount: 300}},
	})
	if n := len(h.notifier.all()); n != 0 {
		t.Fatalf("blocked keys delivered %d alerts", n)
	}
	findings, _ := h.store.ListLagFindings(ctx, storage.LagFilter{})
	if len(findings) != 0 {
		t.Fatalf("expected no findings while cooling down, got %d", len(findings))
	}
	rec, err := h.store.GetChunk(ctx, model.ChunkKey{ServerID: "survival", World: "world", ChunkX: 1, ChunkZ: 1})
	if err != nil || !rec.Flagged || rec.EntityCount != 300 {
		t.Fatalf("chunk record must still be upserted: %+v %v", rec, err)
	}
	if _, ok := h.snapshots.Get("survival"); !ok {
		t.Fatalf("snapshot must still be updated")
	}
}

func TestLagReportBypassesThresholds(t *testing.T) {
	h := newHarness(t)
	h.route(t, &model.LagReport{ServerID: "survival", Kind: model.LagPistonSpam, Severity: model.SeverityLow, Details: "pistons", Timestamp: time.Now().UTC()})
	alerts := h.notifier.all()
	if len(alerts) != 1 || alerts[0].Key != "lag_survival_piston_spam" || alerts[0].Severity != model.SeverityLow {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
}

func TestUnknownRouteIsNoop(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Route(context.Background(), unknownEvent{}); err != nil {
		t.Fatalf("unknown type should be a no-op, got %v", err)
	}
}

type unknownEvent struct{}

func (unknownEvent) EventType() model.EventType { return "heartbeat" }

type failingStore struct {
	storage.Store
}

func (failingStore) SaveTickSample(context.Context, model.TickSample) error {
	return model.ErrDependency
}

func TestDispatchIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	perf := NewPerfMonitor(h.cfg, failingStore{Store: h.store}, h.notifier, nil, nil)
	eng := NewEngine(h.cfg, nil, NewAltDetector(h.store, mustHasher(t), h.notifier, nil), perf)

	eng.Dispatch(&model.TickSample{ServerID: "s", TicksPerSecond: 5})
	eng.Dispatch(join("acc-a", "Steve", "10.0.0.1"))
	eng.Wait()

	if _, err := h.store.GetProfile(context.Background(), "acc-a"); err != nil {
		t.Fatalf("connection handler should run despite tick failure: %v", err)
	}
	if err := eng.Route(context.Background(), &model.TickSample{ServerID: "s"}); !errors.Is(err, model.ErrDependency) {
		t.Fatalf("expected dependency error from Route, got %v", err)
	}
}

type panickingNotifier struct{}

func (panickingNotifier) Permit(string, model.AlertKind) bool { return true }

func (panickingNotifier) Deliver(context.Context, model.Alert) bool { panic("sink exploded") }

func TestDispatchRecoversPanics(t *testing.T) {
	h := newHarness(t)
	perf := NewPerfMonitor(h.cfg, h.store, panickingNotifier{}, nil, nil)
	eng := NewEngine(h.cfg, nil, NewAltDetector(h.store, mustHasher(t), h.notifier, nil), perf)
	eng.Dispatch(&model.TickSample{ServerID: "s", TicksPerSecond: 5, Timestamp: time.Now().UTC()})
	eng.Wait()
}

func mustHasher(t *testing.T) *AddressHasher {
	t.Helper()
	h, err := NewAddressHasher("k")
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	return h
}

func TestCooldownWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewCooldown(3 * time.Second)
	c.now = func() time.Time { return now }

	if !c.ShouldSend("tps_s") {
		t.Fatalf("first send should pass")
	}
	c.MarkSent("tps_s")
	if c.ShouldSend("tps_s") {
		t.Fatalf("back-to-back send should be suppressed")
	}
	if !c.ShouldSend("tps_other") {
		t.Fatalf("other keys are independent")
	}
	now = now.Add(3 * time.Second)
	if !c.ShouldSend("tps_s") {
		t.Fatalf("send after the window should pass")
	}
}

func TestCooldownAllow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewCooldown(3 * time.Second)
	c.now = func() time.Time { return now }
	if !c.Allow("chunk_s_1_1") || c.Allow("chunk_s_1_1") {
		t.Fatalf("Allow must pass once per window")
	}
	now = now.Add(3 * time.Second)
	if !c.Allow("chunk_s_1_1") {
		t.Fatalf("Allow after the window should pass")
	}
}

func TestCooldownCompaction(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewCooldown(time.Second)
	c.now = func() time.Time { return now }
	for i := 0; i < cooldownCompactThreshold; i++ {
		c.MarkSent(string(rune('a'+i%26)) + time.Duration(i).String())
	}
	now = now.Add(2 * time.Second)
	c.MarkSent("fresh")
	if c.Len() != 1 {
		t.Fatalf("expected compaction to keep only fresh key, got %d", c.Len())
	}
}

func TestAddressHasher(t *testing.T) {
	a, _ := NewAddressHasher("key-one")
	b, _ := NewAddressHasher("key-two")
	if a.Hash("10.0.0.1") != a.Hash("10.0.0.1") {
		t.Fatalf("hash must be stable")
	}
	if a.Hash("10.0.0.1") == b.Hash("10.0.0.1") {
		t.Fatalf("hash must depend on the key")
	}
	if len(a.Hash("10.0.0.1")) != 32 || a.Hash("") != "" {
		t.Fatalf("unexpected hash shape")
	}
	if _, err := NewAddressHasher(string(make([]byte, 65))); err == nil {
		t.Fatalf("expected error for oversized key")
	}
}

func TestTickWindowStats(t *testing.T) {
	w := NewTickWindow(time.Minute)
	base := time.Unix(1_700_000_000, 0)
	w.Add(model.TickSample{TicksPerSecond: 10, MillisPerTick: 100, Timestamp: base})
	w.Add(model.TickSample{TicksPerSecond: 20, MillisPerTick: 50, Timestamp: base.Add(30 * time.Second)})
	stats := w.Stats()
	if stats.Samples != 2 || stats.AvgTPS != 15 || stats.MinTPS != 10 || stats.MaxTPS != 20 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	w.Add(model.TickSample{TicksPerSecond: 18, MillisPerTick: 55, Timestamp: base.Add(90 * time.Second)})
	stats = w.Stats()
	if stats.Samples != 2 || stats.MinTPS != 18 || stats.MaxTPS != 20 {
		t.Fatalf("old sample not evicted: %+v", stats)
	}
}
