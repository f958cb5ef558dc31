package model

import "time"

type EventType string

const (
	EventConnection   EventType = "connection"
	EventAltDetected  EventType = "alt_detected"
	EventTPSUpdate    EventType = "tps_update"
	EventChunkScan    EventType = "chunk_scan"
	EventLagAlert     EventType = "lag_alert"
	EventPlayerImpact EventType = "player_impact"
)

// Event is a normalized telemetry event ready for classification.
type Event interface {
	EventType() EventType
}

func (*ConnectionEvent) EventType() EventType { return EventConnection }
func (*TickSample) EventType() EventType      { return EventTPSUpdate }
func (*ImpactSample) EventType() EventType    { return EventPlayerImpact }
func (*ChunkScan) EventType() EventType       { return EventChunkScan }
func (*LagReport) EventType() EventType       { return EventLagAlert }
func (*AltReport) EventType() EventType       { return EventAltDetected }

type ChunkReport struct {
	World           string          `json:"world" validate:"required"`
	ChunkX          int             `json:"chunk_x"`
	ChunkZ          int             `json:"chunk_z"`
	EntityCount     int             `json:"entity_count" validate:"gte=0"`
	EntityBreakdown map[string]int  `json:"entity_breakdown,omitempty"`
	TileEntityCount int             `json:"tile_entity_count" validate:"gte=0"`
	Hoppers         int             `json:"hoppers" validate:"gte=0"`
	Redstone        int             `json:"redstone" validate:"gte=0"`
	PlayersNearby   []LinkedAccount `json:"players_nearby,omitempty"`
}

type ChunkScan struct {
	ServerID  string        `json:"server_id" validate:"required"`
	Chunks    []ChunkReport `json:"chunks" validate:"dive"`
	Timestamp time.Time     `json:"timestamp"`
}

// LagReport is a lag event already classified by the sending plugin.
type LagReport struct {
	ServerID     string             `json:"server_id" validate:"required"`
	Kind         LagKind            `json:"kind" validate:"required"`
	Severity     Severity           `json:"severity"`
	Details      string             `json:"details"`
	Location     *Location          `json:"location,omitempty"`
	PlayerNearby *LinkedAccount     `json:"player_nearby,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}

// AltReport is an alt association computed outside this service.
type AltReport struct {
	AccountID      string          `json:"account_id" validate:"required"`
	DisplayName    string          `json:"display_name"`
	LinkedAccounts []LinkedAccount `json:"linked_accounts" validate:"min=1,dive"`
	RiskScore      *int            `json:"risk_score,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}
