package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tickguard/internal/config"
	"tickguard/internal/model"
)

type Store interface {
	Init(ctx context.Context) error
	Close() error

	// SaveConnection persists the event and, when present, its raw address
	// in a separate table keyed by the connection id.
	SaveConnection(ctx context.Context, ev model.ConnectionEvent) error
	UpsertProfile(ctx context.Context, ev model.ConnectionEvent) (model.AccountProfile, error)
	GetProfile(ctx context.Context, accountID string) (model.AccountProfile, error)
	// SiblingAccounts lists distinct accounts other than exclude that have
	// connected from addressHash.
	SiblingAccounts(ctx context.Context, addressHash, exclude string) ([]model.LinkedAccount, error)

	FindAltGroupByAccount(ctx context.Context, accountID string) (model.AltGroup, error)
	CreateAltGroup(ctx context.Context, g model.AltGroup) error
	GetAltGroup(ctx context.Context, id string) (model.AltGroup, error)
	ListAltGroups(ctx context.Context, filter AltFilter) ([]model.AltGroup, error)
	// ResolveAltGroup moves a pending group to status. A group that is no
	// longer pending is returned unchanged.
	ResolveAltGroup(ctx context.Context, id string, status model.AltStatus, actor string, at time.Time) (model.AltGroup, error)

	SaveTickSample(ctx context.Context, s model.TickSample) error
	SaveImpactSample(ctx context.Context, s model.ImpactSample) error

	UpsertChunk(ctx context.Context, rec model.ChunkRecord) error
	GetChunk(ctx context.Context, key model.ChunkKey) (model.ChunkRecord, error)
	ListChunks(ctx context.Context, filter ChunkFilter) ([]model.ChunkRecord, error)

	CreateLagFinding(ctx context.Context, f model.LagFinding) error
	GetLagFinding(ctx context.Context, id string) (model.LagFinding, error)
	ListLagFindings(ctx context.Context, filter LagFilter) ([]model.LagFinding, error)
	// ResolveLagFinding flips resolved once; later calls return the record as is.
	ResolveLagFinding(ctx context.Context, id, actor string, at time.Time) (model.LagFinding, error)

	DeleteExpired(ctx context.Context, cutoffs Cutoffs) (Deleted, error)
}

type AltFilter struct {
	Status model.AltStatus
	Limit  int
}

type ChunkFilter struct {
	ServerID    string
	FlaggedOnly bool
	Limit       int
}

type LagFilter struct {
	ServerID string
	Severity model.Severity
	Resolved *bool
	Limit    int
}

// Cutoffs hold the oldest timestamp kept per table. A zero value skips the table.
type Cutoffs struct {
	Connections  time.Time
	TickSamples  time.Time
	Impact       time.Time
	LagFindings  time.Time
	ChunkRecords time.Time
}

type Deleted struct {
	Connections  int64 `json:"connections"`
	TickSamples  int64 `json:"tick_samples"`
	Impact       int64 `json:"impact"`
	LagFindings  int64 `json:"lag_findings"`
	ChunkRecords int64 `json:"chunk_records"`
}

func (d Deleted) Total() int64 {
	return d.Connections + d.TickSamples + d.Impact + d.LagFindings + d.ChunkRecords
}

const defaultListLimit = 100

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return NewMemory(), nil
	case "", "sqlite":
		return NewSQLite(cfg.DSN, cfg.Timeout)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN, cfg.Timeout)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

func dependency(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrDependency, op, err)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", model.ErrNotFound, kind, id)
}
