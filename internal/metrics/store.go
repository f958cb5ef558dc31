package metrics

import (
	"sort"
	"sync"
	"time"

	"tickguard/internal/model"
)

// Store caches the latest performance snapshot per server for the query API.
type Store struct {
	mu       sync.RWMutex
	byServer map[string]model.ServerSnapshot
	limit    int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 500
	}
	return &Store{
		byServer: make(map[string]model.ServerSnapshot),
		limit:    limit,
	}
}

func (s *Store) Update(snap model.ServerSnapshot) {
	if snap.ServerID == "" {
		return
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byServer[snap.ServerID] = snap
	if len(s.byServer) > s.limit {
		s.evictOldest()
	}
	serverTPS.WithLabelValues(snap.ServerID).Set(snap.Latest.TicksPerSecond)
}

func (s *Store) Get(serverID string) (model.ServerSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byServer[serverID]
	return snap, ok
}

// GetAll returns snapshots ordered by server id.
func (s *Store) GetAll() []model.ServerSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ServerSnapshot, 0, len(s.byServer))
	for _, snap := range s.byServer {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byServer)
}

func (s *Store) evictOldest() {
	var oldestServer string
	var oldest time.Time
	for id, snap := range s.byServer {
		if oldestServer == "" || snap.UpdatedAt.Before(oldest) {
			oldestServer = id
			oldest = snap.UpdatedAt
		}
	}
	if oldestServer != "" {
		delete(s.byServer, oldestServer)
		serverTPS.DeleteLabelValues(oldestServer)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.byServer {
		serverTPS.DeleteLabelValues(id)
	}
	s.byServer = make(map[string]model.ServerSnapshot)
}
