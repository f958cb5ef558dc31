package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tickguard/internal/model"
)

var ErrUnknownType = fmt.Errorf("%w: unknown event type", model.ErrValidation)

const (
	defaultServerID    = "proxy"
	defaultWorld       = "world"
	nominalTicksPerSec = 20.0
	nominalMillisTick  = 50.0
)

type Normalizer struct {
	loc *time.Location
	now func() time.Time
}

func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc, now: func() time.Time { return time.Now().UTC() }}
}

// ParseType maps a declared type, including the legacy plugin aliases, to an
// event type.
func ParseType(s string) (model.EventType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "connection":
		return model.EventConnection, true
	case "alt_detected":
		return model.EventAltDetected, true
	case "tps_update", "tps_critical":
		return model.EventTPSUpdate, true
	case "chunk_scan", "problem_chunks":
		return model.EventChunkScan, true
	case "lag_alert":
		return model.EventLagAlert, true
	case "player_impact":
		return model.EventPlayerImpact, true
	}
	return "", false
}

// Normalize converts one decoded payload into a typed event using its "type"
// discriminator.
func (n *Normalizer) Normalize(obj map[string]any) (model.Event, error) {
	f := NewFields(obj)
	declared := f.String("type")
	if declared == "" {
		return nil, fmt.Errorf("%w: missing type", model.ErrValidation)
	}
	t, ok := ParseType(declared)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownType, declared)
	}
	return n.normalize(t, f)
}

// NormalizeAs converts a payload whose type is implied by the route it
// arrived on. Inside such payloads "type" names the sub-kind (the connection
// kind or the lag kind), as the game plugins send it.
func (n *Normalizer) NormalizeAs(t model.EventType, obj map[string]any) (model.Event, error) {
	f := NewFields(obj)
	if kind := f.String("type"); kind != "" && !f.Has("kind") {
		f["kind"] = kind
	}
	return n.normalize(t, f)
}

func (n *Normalizer) normalize(t model.EventType, f Fields) (model.Event, error) {
	ts, err := n.timestamp(f)
	if err != nil {
		return nil, err
	}
	var ev model.Event
	switch t {
	case model.EventConnection:
		ev, err = n.connection(f, ts)
	case model.EventAltDetected:
		ev, err = n.altReport(f, ts)
	case model.EventTPSUpdate:
		ev, err = n.tickSample(f, ts)
	case model.EventChunkScan:
		ev, err = n.chunkScan(f, ts)
	case model.EventLagAlert:
		ev, err = n.lagReport(f, ts)
	case model.EventPlayerImpact:
		ev, err = n.impact(f, ts)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, t)
	}
	if err != nil {
		return nil, err
	}
	if err := ValidateStruct(ev); err != nil {
		return nil, fmt.Errorf("%s: %w", t, err)
	}
	return ev, nil
}

func (n *Normalizer) timestamp(f Fields) (time.Time, error) {
	raw := f.String("timestamp", "time", "ts")
	if raw == "" {
		return n.now(), nil
	}
	ts, err := ParseTimestamp(raw, n.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: parse timestamp: %v", model.ErrValidation, err)
	}
	return ts.UTC(), nil
}

func (n *Normalizer) connection(f Fields, ts time.Time) (*model.ConnectionEvent, error) {
	duration, _, err := f.Int("sessionDuration")
	if err != nil {
		return nil, invalid(err)
	}
	ping, _, err := f.Int("ping")
	if err != nil {
		return nil, invalid(err)
	}
	server := f.String("serverId", "server")
	if server == "" {
		server = defaultServerID
	}
	return &model.ConnectionEvent{
		AccountID:       f.String("accountId", "uuid"),
		DisplayName:     f.String("displayName", "username", "name"),
		Address:         f.String("address", "ip"),
		ServerID:        server,
		Kind:            ParseConnectionKind(f.String("kind")),
		SessionDuration: duration,
		Ping:            int(ping),
		Timestamp:       ts,
	}, nil
}

// ParseConnectionKind defaults to join, as the proxy plugin does.
func ParseConnectionKind(s string) model.ConnectionKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "join":
		return model.ConnectionJoin
	case "leave", "quit", "disconnect":
		return model.ConnectionLeave
	case "switch", "server_switch":
		return model.ConnectionSwitch
	}
	return model.ConnectionKind(strings.ToLower(s))
}

func (n *Normalizer) tickSample(f Fields, ts time.Time) (*model.TickSample, error) {
	s := &model.TickSample{
		ServerID:       f.String("serverId", "server"),
		TicksPerSecond: nominalTicksPerSec,
		MillisPerTick:  nominalMillisTick,
		Timestamp:      ts,
	}
	var errs []error
	if v, ok, err := f.Float("ticksPerSecond", "tps"); err != nil {
		errs = append(errs, err)
	} else if ok {
		s.TicksPerSecond = v
	}
	if v, ok, err := f.Float("millisPerTick", "mspt"); err != nil {
		errs = append(errs, err)
	} else if ok {
		s.MillisPerTick = v
	}
	ints := []struct {
		dst  *int64
		keys []string
	}{
		{dst: &s.MemoryUsed, keys: []string{"memoryUsed"}},
		{dst: &s.MemoryMax, keys: []string{"memoryMax"}},
	}
	for _, it := range ints {
		v, _, err := f.Int(it.keys...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*it.dst = v
	}
	var err error
	if s.LoadedChunks, err = intField(f, "loadedChunks"); err != nil {
		errs = append(errs, err)
	}
	if s.EntityCount, err = intField(f, "entityCount", "entities"); err != nil {
		errs = append(errs, err)
	}
	if s.PlayerCount, err = intField(f, "playerCount", "players"); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, invalid(errors.Join(errs...))
	}
	return s, nil
}

func (n *Normalizer) chunkScan(f Fields, ts time.Time) (*model.ChunkScan, error) {
	items, ok := f.List("chunks")
	if !ok {
		return nil, fmt.Errorf("%w: chunks missing or not a list", model.ErrValidation)
	}
	scan := &model.ChunkScan{
		ServerID:  f.String("serverId", "server"),
		Chunks:    make([]model.ChunkReport, 0, len(items)),
		Timestamp: ts,
	}
	for i, c := range items {
		if !c.Has("chunkX", "x") || !c.Has("chunkZ", "z") {
			continue
		}
		report, err := chunkReport(c)
		if err != nil {
			return nil, invalid(fmt.Errorf("chunk %d: %w", i, err))
		}
		scan.Chunks = append(scan.Chunks, report)
	}
	return scan, nil
}

func chunkReport(c Fields) (model.ChunkReport, error) {
	x, _, err := c.Int("chunkX", "x")
	if err != nil {
		return model.ChunkReport{}, err
	}
	z, _, err := c.Int("chunkZ", "z")
	if err != nil {
		return model.ChunkReport{}, err
	}
	r := model.ChunkReport{
		World:           c.String("world"),
		ChunkX:          int(x),
		ChunkZ:          int(z),
		EntityBreakdown: c.Counts("entityBreakdown"),
		PlayersNearby:   linkedAccounts(c, "playersNearby"),
	}
	if r.World == "" {
		r.World = defaultWorld
	}
	var errs []error
	if r.EntityCount, err = intField(c, "entityCount", "entities"); err != nil {
		errs = append(errs, err)
	}
	if r.TileEntityCount, err = intField(c, "tileEntityCount", "tileEntities"); err != nil {
		errs = append(errs, err)
	}
	if r.Hoppers, err = intField(c, "hopperCount", "hoppers"); err != nil {
		errs = append(errs, err)
	}
	if r.Redstone, err = intField(c, "redstoneCount", "redstone"); err != nil {
		errs = append(errs, err)
	}
	if devices := c.Sub("deviceCounts"); devices != nil {
		if r.Hoppers, err = intField(devices, "hoppers"); err != nil {
			errs = append(errs, err)
		}
		if r.Redstone, err = intField(devices, "redstone"); err != nil {
			errs = append(errs, err)
		}
	}
	return r, errors.Join(errs...)
}

func (n *Normalizer) lagReport(f Fields, ts time.Time) (*model.LagReport, error) {
	r := &model.LagReport{
		ServerID:  f.String("serverId", "server"),
		Kind:      model.LagKind(strings.ToLower(f.String("kind"))),
		Severity:  model.Severity(strings.ToLower(f.String("severity"))),
		Details:   f.String("details"),
		Metrics:   f.Numbers("metrics"),
		Timestamp: ts,
	}
	if r.Severity == "" {
		r.Severity = model.SeverityMedium
	}
	if !r.Severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", model.ErrValidation, r.Severity)
	}
	if r.Kind != "" && !r.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown lag kind %q", model.ErrValidation, r.Kind)
	}
	if r.Details == "" && r.Kind != "" {
		r.Details = fmt.Sprintf("%s alert on %s", r.Kind, r.ServerID)
	}
	if loc := f.Sub("location"); loc != nil {
		l, err := location(loc)
		if err != nil {
			return nil, invalid(err)
		}
		r.Location = l
	}
	if p := f.Sub("playerNearby"); p != nil {
		if la := linkedAccount(p); la.AccountID != "" {
			r.PlayerNearby = &la
		}
	}
	return r, nil
}

func location(f Fields) (*model.Location, error) {
	l := &model.Location{World: f.String("world")}
	var err error
	if l.X, _, err = f.Float("x"); err != nil {
		return nil, err
	}
	if l.Z, _, err = f.Float("z"); err != nil {
		return nil, err
	}
	if y, ok, err := f.Float("y"); err != nil {
		return nil, err
	} else if ok {
		l.Y = &y
	}
	if cx, ok, err := f.Int("chunkX"); err != nil {
		return nil, err
	} else if ok {
		v := int(cx)
		l.ChunkX = &v
	}
	if cz, ok, err := f.Int("chunkZ"); err != nil {
		return nil, err
	} else if ok {
		v := int(cz)
		l.ChunkZ = &v
	}
	return l, nil
}

func (n *Normalizer) altReport(f Fields, ts time.Time) (*model.AltReport, error) {
	r := &model.AltReport{
		AccountID:   f.String("accountId", "uuid"),
		DisplayName: f.String("displayName", "username", "name"),
		Timestamp:   ts,
	}
	for _, key := range []string{"primary", "newPlayer"} {
		if p := f.Sub(key); p != nil && r.AccountID == "" {
			la := linkedAccount(p)
			r.AccountID, r.DisplayName = la.AccountID, la.Name
		}
	}
	r.LinkedAccounts = linkedAccounts(f, "linkedAccounts", "alts")
	if score, ok, err := f.Int("riskScore"); err != nil {
		return nil, invalid(err)
	} else if ok {
		v := int(score)
		r.RiskScore = &v
	}
	return r, nil
}

func (n *Normalizer) impact(f Fields, ts time.Time) (*model.ImpactSample, error) {
	s := &model.ImpactSample{
		AccountID:   f.String("accountId", "uuid"),
		DisplayName: f.String("displayName", "username", "name"),
		ServerID:    f.String("serverId", "server"),
		Metrics:     f.Numbers("metrics"),
		Timestamp:   ts,
	}
	var err error
	if s.EntityCount, err = intField(f, "entityCount", "entities"); err != nil {
		return nil, invalid(err)
	}
	if s.LoadedChunks, err = intField(f, "loadedChunks"); err != nil {
		return nil, invalid(err)
	}
	for _, counter := range impactCounters {
		v, ok, err := f.Float(counter)
		if err != nil {
			return nil, invalid(err)
		}
		if !ok {
			continue
		}
		if s.Metrics == nil {
			s.Metrics = make(map[string]float64)
		}
		s.Metrics[counter] = v
	}
	return s, nil
}

var impactCounters = []string{
	"tickContribution",
	"blocksPlaced",
	"blocksBroken",
	"entitiesSpawned",
	"redstoneTriggered",
	"hoppersInteracted",
	"chunkLoads",
}

func linkedAccounts(f Fields, keys ...string) []model.LinkedAccount {
	items, ok := f.List(keys...)
	if !ok {
		return nil
	}
	out := make([]model.LinkedAccount, 0, len(items))
	for _, item := range items {
		out = append(out, linkedAccount(item))
	}
	return out
}

func linkedAccount(f Fields) model.LinkedAccount {
	return model.LinkedAccount{
		AccountID: f.String("accountId", "uuid", "_id", "id"),
		Name:      f.String("name", "username", "displayName"),
	}
}

func intField(f Fields, keys ...string) (int, error) {
	v, _, err := f.Int(keys...)
	return int(v), err
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", model.ErrValidation, err)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
