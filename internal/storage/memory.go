package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"tickguard/internal/model"
)

type memoryConnection struct {
	event   model.ConnectionEvent
	address string
}

// memoryStore keeps everything in process memory. It backs tests and
// deployments that do not need persistence across restarts.
type memoryStore struct {
	mu          sync.RWMutex
	connections []memoryConnection
	profiles    map[string]model.AccountProfile
	groups      map[string]model.AltGroup
	members     map[string]string
	ticks       []model.TickSample
	impact      []model.ImpactSample
	chunks      map[model.ChunkKey]model.ChunkRecord
	lag         map[string]model.LagFinding
}

func NewMemory() Store {
	return &memoryStore{
		profiles: make(map[string]model.AccountProfile),
		groups:   make(map[string]model.AltGroup),
		members:  make(map[string]string),
		chunks:   make(map[model.ChunkKey]model.ChunkRecord),
		lag:      make(map[string]model.LagFinding),
	}
}

func (m *memoryStore) Init(context.Context) error { return nil }
func (m *memoryStore) Close() error               { return nil }

func (m *memoryStore) SaveConnection(_ context.Context, ev model.ConnectionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	address := ev.Address
	ev.Address = ""
	m.connections = append(m.connections, memoryConnection{event: ev, address: address})
	return nil
}

func (m *memoryStore) UpsertProfile(_ context.Context, ev model.ConnectionEvent) (model.AccountProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[ev.AccountID]
	if !ok {
		p = model.AccountProfile{AccountID: ev.AccountID, FirstSeen: ev.Timestamp}
	}
	p.DisplayName = ev.DisplayName
	p.LastSeen = ev.Timestamp
	p.ConnectionCount++
	if ev.SessionDuration > 0 {
		p.TotalPlaytime += ev.SessionDuration
		p.SessionCount++
	}
	m.profiles[ev.AccountID] = p
	return p, nil
}

func (m *memoryStore) GetProfile(_ context.Context, accountID string) (model.AccountProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[accountID]
	if !ok {
		return p, notFound("profile", accountID)
	}
	return p, nil
}

func (m *memoryStore) SiblingAccounts(_ context.Context, addressHash, exclude string) ([]model.LinkedAccount, error) {
	if addressHash == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []model.LinkedAccount
	for _, c := range m.connections {
		id := c.event.AccountID
		if c.event.HashedAddress != addressHash || id == exclude || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, model.LinkedAccount{AccountID: id, Name: m.profiles[id].DisplayName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (m *memoryStore) FindAltGroupByAccount(_ context.Context, accountID string) (model.AltGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.members[accountID]
	if !ok {
		return model.AltGroup{}, notFound("alt group for account", accountID)
	}
	return cloneGroup(m.groups[id]), nil
}

func (m *memoryStore) CreateAltGroup(_ context.Context, g model.AltGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g = cloneGroup(g)
	m.groups[g.ID] = g
	if _, ok := m.members[g.PrimaryAccountID]; !ok {
		m.members[g.PrimaryAccountID] = g.ID
	}
	for _, la := range g.LinkedAccounts {
		if _, ok := m.members[la.AccountID]; !ok {
			m.members[la.AccountID] = g.ID
		}
	}
	return nil
}

func (m *memoryStore) GetAltGroup(_ context.Context, id string) (model.AltGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return g, notFound("alt group", id)
	}
	return cloneGroup(g), nil
}

func (m *memoryStore) ListAltGroups(_ context.Context, filter AltFilter) ([]model.AltGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.AltGroup
	for _, g := range m.groups {
		if filter.Status != "" && g.Status != filter.Status {
			continue
		}
		out = append(out, cloneGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, filter.Limit), nil
}

func (m *memoryStore) ResolveAltGroup(_ context.Context, id string, status model.AltStatus, actor string, at time.Time) (model.AltGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return g, notFound("alt group", id)
	}
	if g.Status == model.AltPending {
		g.Status = status
		g.ReviewedBy = actor
		reviewed := at.UTC()
		g.ReviewedAt = &reviewed
		m.groups[id] = g
	}
	return cloneGroup(g), nil
}

func (m *memoryStore) SaveTickSample(_ context.Context, s model.TickSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks = append(m.ticks, s)
	return nil
}

func (m *memoryStore) SaveImpactSample(_ context.Context, s model.ImpactSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.impact = append(m.impact, s)
	return nil
}

func (m *memoryStore) UpsertChunk(_ context.Context, r model.ChunkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[r.ChunkKey] = r
	return nil
}

func (m *memoryStore) GetChunk(_ context.Context, key model.ChunkKey) (model.ChunkRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.chunks[key]
	if !ok {
		return r, notFound("chunk", chunkID(key))
	}
	return r, nil
}

func (m *memoryStore) ListChunks(_ context.Context, filter ChunkFilter) ([]model.ChunkRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ChunkRecord
	for _, r := range m.chunks {
		if filter.ServerID != "" && r.ServerID != filter.ServerID {
			continue
		}
		if filter.FlaggedOnly && !r.Flagged {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityCount != out[j].EntityCount {
			return out[i].EntityCount > out[j].EntityCount
		}
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return truncate(out, filter.Limit), nil
}

func (m *memoryStore) CreateLagFinding(_ context.Context, f model.LagFinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lag[f.ID] = f
	return nil
}

func (m *memoryStore) GetLagFinding(_ context.Context, id string) (model.LagFinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.lag[id]
	if !ok {
		return f, notFound("lag finding", id)
	}
	return f, nil
}

func (m *memoryStore) ListLagFindings(_ context.Context, filter LagFilter) ([]model.LagFinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.LagFinding
	for _, f := range m.lag {
		if filter.ServerID != "" && f.ServerID != filter.ServerID {
			continue
		}
		if filter.Severity != "" && f.Severity != filter.Severity {
			continue
		}
		if filter.Resolved != nil && f.Resolved != *filter.Resolved {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return truncate(out, filter.Limit), nil
}

func (m *memoryStore) ResolveLagFinding(_ context.Context, id, actor string, at time.Time) (model.LagFinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.lag[id]
	if !ok {
		return f, notFound("lag finding", id)
	}
	if !f.Resolved {
		f.Resolved = true
		f.ResolvedBy = actor
		resolved := at.UTC()
		f.ResolvedAt = &resolved
		m.lag[id] = f
	}
	return f, nil
}

func (m *memoryStore) DeleteExpired(_ context.Context, c Cutoffs) (Deleted, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var d Deleted
	if !c.Connections.IsZero() {
		kept := m.connections[:0]
		for _, conn := range m.connections {
			if conn.event.Timestamp.Before(c.Connections) {
				d.Connections++
				continue
			}
			kept = append(kept, conn)
		}
		m.connections = kept
	}
	if !c.TickSamples.IsZero() {
		kept := m.ticks[:0]
		for _, s := range m.ticks {
			if s.Timestamp.Before(c.TickSamples) {
				d.TickSamples++
				continue
			}
			kept = append(kept, s)
		}
		m.ticks = kept
	}
	if !c.Impact.IsZero() {
		kept := m.impact[:0]
		for _, s := range m.impact {
			if s.Timestamp.Before(c.Impact) {
				d.Impact++
				continue
			}
			kept = append(kept, s)
		}
		m.impact = kept
	}
	if !c.LagFindings.IsZero() {
		for id, f := range m.lag {
			if f.Timestamp.Before(c.LagFindings) {
				delete(m.lag, id)
				d.LagFindings++
			}
		}
	}
	if !c.ChunkRecords.IsZero() {
		for key, r := range m.chunks {
			if r.LastUpdated.Before(c.ChunkRecords) {
				delete(m.chunks, key)
				d.ChunkRecords++
			}
		}
	}
	return d, nil
}

func cloneGroup(g model.AltGroup) model.AltGroup {
	g.LinkedAccounts = append([]model.LinkedAccount(nil), g.LinkedAccounts...)
	g.SharedAddressHashes = append([]string(nil), g.SharedAddressHashes...)
	if g.ReviewedAt != nil {
		t := *g.ReviewedAt
		g.ReviewedAt = &t
	}
	return g
}

func truncate[T any](items []T, limit int) []T {
	limit = listLimit(limit)
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
