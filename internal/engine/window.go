package engine

import (
	"time"

	"tickguard/internal/model"
)

type tickEntry struct {
	at   time.Time
	tps  float64
	mspt float64
}

// TickWindow keeps the tick samples of one server inside a sliding window.
// Not safe for concurrent use.
type TickWindow struct {
	duration time.Duration
	entries  []tickEntry
	head     int
	sumTPS   float64
	sumMSPT  float64
}

func NewTickWindow(duration time.Duration) *TickWindow {
	return &TickWindow{
		duration: duration,
		entries:  make([]tickEntry, 0, 64),
	}
}

func (w *TickWindow) Add(s model.TickSample) {
	w.entries = append(w.entries, tickEntry{at: s.Timestamp, tps: s.TicksPerSecond, mspt: s.MillisPerTick})
	w.sumTPS += s.TicksPerSecond
	w.sumMSPT += s.MillisPerTick
	w.Evict(s.Timestamp.Add(-w.duration))
}

func (w *TickWindow) Evict(cutoff time.Time) {
	for w.head < len(w.entries) {
		e := w.entries[w.head]
		if !e.at.Before(cutoff) {
			break
		}
		w.sumTPS -= e.tps
		w.sumMSPT -= e.mspt
		w.head++
	}
	if w.head > 0 && w.head*2 >= len(w.entries) {
		w.entries = append([]tickEntry{}, w.entries[w.head:]...)
		w.head = 0
	}
}

func (w *TickWindow) Len() int {
	return len(w.entries) - w.head
}

func (w *TickWindow) Stats() model.TickWindowStats {
	stats := model.TickWindowStats{WindowSec: int(w.duration.Seconds())}
	n := w.Len()
	if n == 0 {
		return stats
	}
	stats.Samples = n
	stats.AvgTPS = w.sumTPS / float64(n)
	stats.AvgMSPT = w.sumMSPT / float64(n)
	stats.MinTPS = w.entries[w.head].tps
	stats.MaxTPS = w.entries[w.head].tps
	for _, e := range w.entries[w.head+1:] {
		stats.MinTPS = min(stats.MinTPS, e.tps)
		stats.MaxTPS = max(stats.MaxTPS, e.tps)
	}
	return stats
}
