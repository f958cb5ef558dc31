package alerts

import (
	"sync"
	"time"

	"tickguard/internal/model"
)

// Store is a bounded ring of sent notifications, oldest overwritten first.
type Store struct {
	mu    sync.RWMutex
	buf   []model.Notification
	next  int
	full  bool
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{buf: make([]model.Notification, limit), limit: limit}
}

func (s *Store) Add(n model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.next] = n
	s.next = (s.next + 1) % s.limit
	if s.next == 0 {
		s.full = true
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.len()
}

func (s *Store) len() int {
	if s.full {
		return s.limit
	}
	return s.next
}

// List returns up to limit notifications, newest first.
func (s *Store) List(limit int) []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.len()
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.Notification, 0, limit)
	for i := 1; i <= limit; i++ {
		out = append(out, s.buf[(s.next-i+s.limit)%s.limit])
	}
	return out
}

func (s *Store) Since(ts time.Time) []model.Notification {
	out := make([]model.Notification, 0)
	for _, n := range s.List(0) {
		if !n.Timestamp.Before(ts) {
			out = append(out, n)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = make([]model.Notification, s.limit)
	s.next = 0
	s.full = false
}
