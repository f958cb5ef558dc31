package engine

import (
	"sync"
	"time"
)

const cooldownCompactThreshold = 10000

// Cooldown suppresses repeat notifications for the same alert key. State is
// process-local and lost on restart.
type Cooldown struct {
	mu     sync.Mutex
	last   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{
		last:   make(map[string]time.Time),
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (c *Cooldown) SetWindow(window time.Duration) {
	c.mu.Lock()
	c.window = window
	c.mu.Unlock()
}

// ShouldSend reports whether key is outside its cooldown window. It does not
// record anything; callers follow a successful hand-off with MarkSent.
func (c *Cooldown) ShouldSend(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready(key, c.now())
}

func (c *Cooldown) MarkSent(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mark(key, c.now())
}

// Allow is ShouldSend followed by MarkSent under one lock.
func (c *Cooldown) Allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !c.ready(key, now) {
		return false
	}
	c.mark(key, now)
	return true
}

func (c *Cooldown) ready(key string, now time.Time) bool {
	if c.window <= 0 {
		return true
	}
	ts, ok := c.last[key]
	return !ok || now.Sub(ts) >= c.window
}

func (c *Cooldown) mark(key string, now time.Time) {
	c.last[key] = now
	if len(c.last) > cooldownCompactThreshold {
		c.compact(now)
	}
}

func (c *Cooldown) compact(now time.Time) {
	for k, ts := range c.last {
		if now.Sub(ts) >= c.window {
			delete(c.last, k)
		}
	}
}

func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}

func (c *Cooldown) Reset() {
	c.mu.Lock()
	c.last = make(map[string]time.Time)
	c.mu.Unlock()
}
