package model

import "time"

type ConnectionKind string

const (
	ConnectionJoin   ConnectionKind = "join"
	ConnectionLeave  ConnectionKind = "leave"
	ConnectionSwitch ConnectionKind = "switch"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type AltStatus string

const (
	AltPending       AltStatus = "pending"
	AltConfirmed     AltStatus = "confirmed"
	AltFalsePositive AltStatus = "false_positive"
)

type LagKind string

const (
	LagTPSDrop             LagKind = "tps_drop"
	LagEntitySpam          LagKind = "entity_spam"
	LagRedstone            LagKind = "redstone_lag"
	LagChunkOverload       LagKind = "chunk_overload"
	LagHopper              LagKind = "hopper_lag"
	LagPistonSpam          LagKind = "piston_spam"
	LagSuspectedLagMachine LagKind = "suspected_lag_machine"
)

func (k LagKind) Valid() bool {
	switch k {
	case LagTPSDrop, LagEntitySpam, LagRedstone, LagChunkOverload, LagHopper, LagPistonSpam, LagSuspectedLagMachine:
		return true
	}
	return false
}

type ConnectionEvent struct {
	ID              string         `json:"id"`
	AccountID       string         `json:"account_id" validate:"required"`
	DisplayName     string         `json:"display_name" validate:"required"`
	Address         string         `json:"-"`
	HashedAddress   string         `json:"hashed_address,omitempty"`
	ServerID        string         `json:"server_id"`
	Kind            ConnectionKind `json:"kind" validate:"oneof=join leave switch"`
	SessionDuration int64          `json:"session_duration,omitempty" validate:"gte=0"`
	Ping            int            `json:"ping,omitempty" validate:"gte=0"`
	Timestamp       time.Time      `json:"timestamp"`
}

type AccountProfile struct {
	AccountID       string    `json:"account_id"`
	DisplayName     string    `json:"display_name"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	ConnectionCount int64     `json:"connection_count"`
	TotalPlaytime   int64     `json:"total_playtime"`
	SessionCount    int64     `json:"session_count"`
}

type LinkedAccount struct {
	AccountID string `json:"account_id" validate:"required"`
	Name      string `json:"name"`
}

type AltGroup struct {
	ID                  string          `json:"id"`
	PrimaryAccountID    string          `json:"primary_account_id"`
	PrimaryName         string          `json:"primary_name"`
	LinkedAccounts      []LinkedAccount `json:"linked_accounts"`
	SharedAddressHashes []string        `json:"shared_address_hashes"`
	RiskScore           int             `json:"risk_score"`
	Status              AltStatus       `json:"status"`
	ReviewedBy          string          `json:"reviewed_by,omitempty"`
	ReviewedAt          *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Contains reports whether accountID is the primary or one of the linked accounts.
func (g *AltGroup) Contains(accountID string) bool {
	if g.PrimaryAccountID == accountID {
		return true
	}
	for _, la := range g.LinkedAccounts {
		if la.AccountID == accountID {
			return true
		}
	}
	return false
}

type TickSample struct {
	ID             string    `json:"id"`
	ServerID       string    `json:"server_id" validate:"required"`
	TicksPerSecond float64   `json:"ticks_per_second" validate:"gte=0"`
	MillisPerTick  float64   `json:"millis_per_tick" validate:"gte=0"`
	LoadedChunks   int       `json:"loaded_chunks" validate:"gte=0"`
	EntityCount    int       `json:"entity_count" validate:"gte=0"`
	PlayerCount    int       `json:"player_count" validate:"gte=0"`
	MemoryUsed     int64     `json:"memory_used" validate:"gte=0"`
	MemoryMax      int64     `json:"memory_max" validate:"gte=0"`
	Timestamp      time.Time `json:"timestamp"`
}

type ChunkKey struct {
	ServerID string `json:"server_id"`
	World    string `json:"world"`
	ChunkX   int    `json:"chunk_x"`
	ChunkZ   int    `json:"chunk_z"`
}

type DeviceCounts struct {
	Hoppers  int `json:"hoppers"`
	Redstone int `json:"redstone"`
}

type ChunkRecord struct {
	ChunkKey
	EntityCount     int            `json:"entity_count"`
	EntityBreakdown map[string]int `json:"entity_breakdown,omitempty"`
	TileEntityCount int            `json:"tile_entity_count"`
	DeviceCounts    DeviceCounts   `json:"device_counts"`
	Flagged         bool           `json:"flagged"`
	FlagReason      string         `json:"flag_reason,omitempty"`
	LastUpdated     time.Time      `json:"last_updated"`
}

type Location struct {
	World  string   `json:"world,omitempty"`
	X      float64  `json:"x"`
	Y      *float64 `json:"y,omitempty"`
	Z      float64  `json:"z"`
	ChunkX *int     `json:"chunk_x,omitempty"`
	ChunkZ *int     `json:"chunk_z,omitempty"`
}

type LagFinding struct {
	ID           string             `json:"id"`
	ServerID     string             `json:"server_id"`
	Kind         LagKind            `json:"kind"`
	Severity     Severity           `json:"severity"`
	Location     *Location          `json:"location,omitempty"`
	Details      string             `json:"details"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	PlayerNearby *LinkedAccount     `json:"player_nearby,omitempty"`
	Resolved     bool               `json:"resolved"`
	ResolvedBy   string             `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time         `json:"resolved_at,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}

type ImpactSample struct {
	ID           string             `json:"id"`
	AccountID    string             `json:"account_id" validate:"required"`
	DisplayName  string             `json:"display_name,omitempty"`
	ServerID     string             `json:"server_id" validate:"required"`
	EntityCount  int                `json:"entity_count" validate:"gte=0"`
	LoadedChunks int                `json:"loaded_chunks" validate:"gte=0"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}
