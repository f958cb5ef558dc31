package model

import "time"

// TickWindowStats summarizes the tick samples seen for one server over the
// rolling window.
type TickWindowStats struct {
	WindowSec int     `json:"window_sec"`
	Samples   int     `json:"samples"`
	AvgTPS    float64 `json:"avg_tps"`
	MinTPS    float64 `json:"min_tps"`
	MaxTPS    float64 `json:"max_tps"`
	AvgMSPT   float64 `json:"avg_mspt"`
}

type ServerSnapshot struct {
	ServerID  string          `json:"server_id"`
	Latest    TickSample      `json:"latest"`
	Window    TickWindowStats `json:"window"`
	Severity  Severity        `json:"severity,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}
