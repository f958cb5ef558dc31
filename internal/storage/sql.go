package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"tickguard/internal/model"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "pgx5"
	}
	return "sqlite"
}

// rebind rewrites ? placeholders into $n for postgres.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

type sqlStore struct {
	db      *sql.DB
	dialect dialect
	timeout time.Duration
}

func (s *sqlStore) Init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return dependency("ping", err)
	}
	if err := migrateUp(s.db, s.dialect); err != nil {
		return dependency("migrate", err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *sqlStore) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

func (s *sqlStore) SaveConnection(ctx context.Context, ev model.ConnectionEvent) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dependency("save connection", err)
	}
	_, err = tx.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO connections (id, account_id, display_name, address_hash, server_id, kind, session_duration, ping, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		ev.ID, ev.AccountID, ev.DisplayName, ev.HashedAddress, ev.ServerID, string(ev.Kind),
		ev.SessionDuration, ev.Ping, unixNano(ev.Timestamp),
	)
	if err == nil && ev.Address != "" {
		_, err = tx.ExecContext(ctx, s.dialect.rebind(
			`INSERT INTO connection_addresses (connection_id, address, ts) VALUES (?, ?, ?)`),
			ev.ID, ev.Address, unixNano(ev.Timestamp),
		)
	}
	if err != nil {
		_ = tx.Rollback()
		return dependency("save connection", err)
	}
	if err := tx.Commit(); err != nil {
		return dependency("save connection", err)
	}
	return nil
}

func (s *sqlStore) UpsertProfile(ctx context.Context, ev model.ConnectionEvent) (model.AccountProfile, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	var sessions int64
	if ev.SessionDuration > 0 {
		sessions = 1
	}
	ts := unixNano(ev.Timestamp)
	_, err := s.exec(ctx,
		`INSERT INTO account_profiles (account_id, display_name, first_seen, last_seen, connection_count, total_playtime, session_count)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			display_name = excluded.display_name,
			last_seen = excluded.last_seen,
			connection_count = account_profiles.connection_count + 1,
			total_playtime = account_profiles.total_playtime + excluded.total_playtime,
			session_count = account_profiles.session_count + excluded.session_count`,
		ev.AccountID, ev.DisplayName, ts, ts, ev.SessionDuration, sessions,
	)
	if err != nil {
		return model.AccountProfile{}, dependency("upsert profile", err)
	}
	return s.getProfile(ctx, ev.AccountID)
}

func (s *sqlStore) GetProfile(ctx context.Context, accountID string) (model.AccountProfile, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.getProfile(ctx, accountID)
}

func (s *sqlStore) getProfile(ctx context.Context, accountID string) (model.AccountProfile, error) {
	var p model.AccountProfile
	var first, last int64
	err := s.queryRow(ctx,
		`SELECT account_id, display_name, first_seen, last_seen, connection_count, total_playtime, session_count
		FROM account_profiles WHERE account_id = ?`, accountID,
	).Scan(&p.AccountID, &p.DisplayName, &first, &last, &p.ConnectionCount, &p.TotalPlaytime, &p.SessionCount)
	if errors.Is(err, sql.ErrNoRows) {
		return p, notFound("profile", accountID)
	}
	if err != nil {
		return p, dependency("get profile", err)
	}
	p.FirstSeen, p.LastSeen = fromUnixNano(first), fromUnixNano(last)
	return p, nil
}

func (s *sqlStore) SiblingAccounts(ctx context.Context, addressHash, exclude string) ([]model.LinkedAccount, error) {
	if addressHash == "" {
		return nil, nil
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	rows, err := s.query(ctx,
		`SELECT DISTINCT c.account_id, COALESCE(p.display_name, '')
		FROM connections c LEFT JOIN account_profiles p ON p.account_id = c.account_id
		WHERE c.address_hash = ? AND c.account_id <> ?
		ORDER BY c.account_id`, addressHash, exclude)
	if err != nil {
		return nil, dependency("sibling accounts", err)
	}
	defer rows.Close()
	var out []model.LinkedAccount
	for rows.Next() {
		var la model.LinkedAccount
		if err := rows.Scan(&la.AccountID, &la.Name); err != nil {
			return nil, dependency("sibling accounts", err)
		}
		out = append(out, la)
	}
	if err := rows.Err(); err != nil {
		return nil, dependency("sibling accounts", err)
	}
	return out, nil
}

func (s *sqlStore) FindAltGroupByAccount(ctx context.Context, accountID string) (model.AltGroup, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	var groupID string
	err := s.queryRow(ctx,
		`SELECT group_id FROM alt_group_members WHERE account_id = ? ORDER BY group_id LIMIT 1`, accountID,
	).Scan(&groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AltGroup{}, notFound("alt group for account", accountID)
	}
	if err != nil {
		return model.AltGroup{}, dependency("find alt group", err)
	}
	return s.getAltGroup(ctx, groupID)
}

func (s *sqlStore) CreateAltGroup(ctx context.Context, g model.AltGroup) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dependency("create alt group", err)
	}
	_, err = tx.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO alt_groups (id, primary_account_id, primary_name, shared_address_hashes, risk_score, status, reviewed_by, reviewed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		g.ID, g.PrimaryAccountID, g.PrimaryName, encodeJSON(g.SharedAddressHashes), g.RiskScore,
		string(g.Status), g.ReviewedBy, nullableTime(g.ReviewedAt), unixNano(g.CreatedAt),
	)
	members := append([]model.LinkedAccount{{AccountID: g.PrimaryAccountID, Name: g.PrimaryName}}, g.LinkedAccounts...)
	for i, m := range members {
		if err != nil {
			break
		}
		_, err = tx.ExecContext(ctx, s.dialect.rebind(
			`INSERT INTO alt_group_members (group_id, account_id, name, is_primary, position) VALUES (?, ?, ?, ?, ?)`),
			g.ID, m.AccountID, m.Name, boolInt(i == 0), i,
		)
	}
	if err != nil {
		_ = tx.Rollback()
		return dependency("create alt group", err)
	}
	if err := tx.Commit(); err != nil {
		return dependency("create alt group", err)
	}
	return nil
}

func (s *sqlStore) GetAltGroup(ctx context.Context, id string) (model.AltGroup, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.getAltGroup(ctx, id)
}

const altGroupColumns = `id, primary_account_id, primary_name, shared_address_hashes, risk_score, status, reviewed_by, reviewed_at, created_at`

func scanAltGroup(scan func(...any) error) (model.AltGroup, error) {
	var g model.AltGroup
	var hashes, status string
	var reviewedAt sql.NullInt64
	var created int64
	if err := scan(&g.ID, &g.PrimaryAccountID, &g.PrimaryName, &hashes, &g.RiskScore, &status, &g.ReviewedBy, &reviewedAt, &created); err != nil {
		return g, err
	}
	g.Status = model.AltStatus(status)
	g.CreatedAt = fromUnixNano(created)
	g.ReviewedAt = timePtr(reviewedAt)
	decodeJSON(hashes, &g.SharedAddressHashes)
	return g, nil
}

func (s *sqlStore) getAltGroup(ctx context.Context, id string) (model.AltGroup, error) {
	g, err := scanAltGroup(s.queryRow(ctx, `SELECT `+altGroupColumns+` FROM alt_groups WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return g, notFound("alt group", id)
	}
	if err != nil {
		return g, dependency("get alt group", err)
	}
	if err := s.loadMembers(ctx, &g); err != nil {
		return g, err
	}
	return g, nil
}

func (s *sqlStore) loadMembers(ctx context.Context, g *model.AltGroup) error {
	rows, err := s.query(ctx,
		`SELECT account_id, name FROM alt_group_members WHERE group_id = ? AND is_primary = 0 ORDER BY position`, g.ID)
	if err != nil {
		return dependency("load alt members", err)
	}
	defer rows.Close()
	g.LinkedAccounts = g.LinkedAccounts[:0]
	for rows.Next() {
		var la model.LinkedAccount
		if err := rows.Scan(&la.AccountID, &la.Name); err != nil {
			return dependency("load alt members", err)
		}
		g.LinkedAccounts = append(g.LinkedAccounts, la)
	}
	if err := rows.Err(); err != nil {
		return dependency("load alt members", err)
	}
	return nil
}

func (s *sqlStore) ListAltGroups(ctx context.Context, filter AltFilter) ([]model.AltGroup, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	query := `SELECT ` + altGroupColumns + ` FROM alt_groups`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, dependency("list alt groups", err)
	}
	var out []model.AltGroup
	for rows.Next() {
		g, err := scanAltGroup(rows.Scan)
		if err != nil {
			rows.Close()
			return nil, dependency("list alt groups", err)
		}
		out = append(out, g)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, dependency("list alt groups", err)
	}
	// members are loaded after the cursor is released; sqlite runs on one connection
	for i := range out {
		if err := s.loadMembers(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *sqlStore) ResolveAltGroup(ctx context.Context, id string, status model.AltStatus, actor string, at time.Time) (model.AltGroup, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	_, err := s.exec(ctx,
		`UPDATE alt_groups SET status = ?, reviewed_by = ?, reviewed_at = ? WHERE id = ? AND status = ?`,
		string(status), actor, unixNano(at), id, string(model.AltPending),
	)
	if err != nil {
		return model.AltGroup{}, dependency("resolve alt group", err)
	}
	return s.getAltGroup(ctx, id)
}

func (s *sqlStore) SaveTickSample(ctx context.Context, t model.TickSample) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	_, err := s.exec(ctx,
		`INSERT INTO tick_samples (id, server_id, tps, mspt, loaded_chunks, entity_count, player_count, memory_used, memory_max, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ServerID, t.TicksPerSecond, t.MillisPerTick, t.LoadedChunks, t.EntityCount,
		t.PlayerCount, t.MemoryUsed, t.MemoryMax, unixNano(t.Timestamp),
	)
	if err != nil {
		return dependency("save tick sample", err)
	}
	return nil
}

func (s *sqlStore) SaveImpactSample(ctx context.Context, m model.ImpactSample) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	_, err := s.exec(ctx,
		`INSERT INTO impact_samples (id, account_id, display_name, server_id, entity_count, loaded_chunks, metrics, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AccountID, m.DisplayName, m.ServerID, m.EntityCount, m.LoadedChunks,
		encodeJSON(m.Metrics), unixNano(m.Timestamp),
	)
	if err != nil {
		return dependency("save impact sample", err)
	}
	return nil
}

func (s *sqlStore) UpsertChunk(ctx context.Context, r model.ChunkRecord) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	_, err := s.exec(ctx,
		`INSERT INTO chunk_records (server_id, world, chunk_x, chunk_z, entity_count, entity_breakdown, tile_entity_count, hoppers, redstone, flagged, flag_reason, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (server_id, world, chunk_x, chunk_z) DO UPDATE SET
			entity_count = excluded.entity_count,
			entity_breakdown = excluded.entity_breakdown,
			tile_entity_count = excluded.tile_entity_count,
			hoppers = excluded.hoppers,
			redstone = excluded.redstone,
			flagged = excluded.flagged,
			flag_reason = excluded.flag_reason,
			last_updated = excluded.last_updated`,
		r.ServerID, r.World, r.ChunkX, r.ChunkZ, r.EntityCount, encodeJSON(r.EntityBreakdown),
		r.TileEntityCount, r.DeviceCounts.Hoppers, r.DeviceCounts.Redstone, boolInt(r.Flagged),
		r.FlagReason, unixNano(r.LastUpdated),
	)
	if err != nil {
		return dependency("upsert chunk", err)
	}
	return nil
}

const chunkColumns = `server_id, world, chunk_x, chunk_z, entity_count, entity_breakdown, tile_entity_count, hoppers, redstone, flagged, flag_reason, last_updated`

func scanChunk(scan func(...any) error) (model.ChunkRecord, error) {
	var r model.ChunkRecord
	var breakdown string
	var flagged int
	var updated int64
	err := scan(&r.ServerID, &r.World, &r.ChunkX, &r.ChunkZ, &r.EntityCount, &breakdown, &r.TileEntityCount,
		&r.DeviceCounts.Hoppers, &r.DeviceCounts.Redstone, &flagged, &r.FlagReason, &updated)
	if err != nil {
		return r, err
	}
	r.Flagged = flagged != 0
	r.LastUpdated = fromUnixNano(updated)
	decodeJSON(breakdown, &r.EntityBreakdown)
	return r, nil
}

func (s *sqlStore) GetChunk(ctx context.Context, key model.ChunkKey) (model.ChunkRecord, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	r, err := scanChunk(s.queryRow(ctx,
		`SELECT `+chunkColumns+` FROM chunk_records WHERE server_id = ? AND world = ? AND chunk_x = ? AND chunk_z = ?`,
		key.ServerID, key.World, key.ChunkX, key.ChunkZ,
	).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return r, notFound("chunk", chunkID(key))
	}
	if err != nil {
		return r, dependency("get chunk", err)
	}
	return r, nil
}

func (s *sqlStore) ListChunks(ctx context.Context, filter ChunkFilter) ([]model.ChunkRecord, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	var where []string
	var args []any
	if filter.ServerID != "" {
		where = append(where, "server_id = ?")
		args = append(args, filter.ServerID)
	}
	if filter.FlaggedOnly {
		where = append(where, "flagged = 1")
	}
	query := `SELECT ` + chunkColumns + ` FROM chunk_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY entity_count DESC, last_updated DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, dependency("list chunks", err)
	}
	defer rows.Close()
	var out []model.ChunkRecord
	for rows.Next() {
		r, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, dependency("list chunks", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dependency("list chunks", err)
	}
	return out, nil
}

func (s *sqlStore) CreateLagFinding(ctx context.Context, f model.LagFinding) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	_, err := s.exec(ctx,
		`INSERT INTO lag_findings (id, server_id, kind, severity, location, details, metrics, player_nearby, resolved, resolved_by, resolved_at, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ServerID, string(f.Kind), string(f.Severity), encodeJSON(f.Location), f.Details,
		encodeJSON(f.Metrics), encodeJSON(f.PlayerNearby), boolInt(f.Resolved), f.ResolvedBy,
		nullableTime(f.ResolvedAt), unixNano(f.Timestamp),
	)
	if err != nil {
		return dependency("create lag finding", err)
	}
	return nil
}

const lagColumns = `id, server_id, kind, severity, location, details, metrics, player_nearby, resolved, resolved_by, resolved_at, ts`

func scanLag(scan func(...any) error) (model.LagFinding, error) {
	var f model.LagFinding
	var kind, severity, location, metrics, player string
	var resolved int
	var resolvedAt sql.NullInt64
	var ts int64
	err := scan(&f.ID, &f.ServerID, &kind, &severity, &location, &f.Details, &metrics, &player,
		&resolved, &f.ResolvedBy, &resolvedAt, &ts)
	if err != nil {
		return f, err
	}
	f.Kind = model.LagKind(kind)
	f.Severity = model.Severity(severity)
	f.Resolved = resolved != 0
	f.ResolvedAt = timePtr(resolvedAt)
	f.Timestamp = fromUnixNano(ts)
	decodeJSON(location, &f.Location)
	decodeJSON(metrics, &f.Metrics)
	decodeJSON(player, &f.PlayerNearby)
	return f, nil
}

func (s *sqlStore) GetLagFinding(ctx context.Context, id string) (model.LagFinding, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.getLagFinding(ctx, id)
}

func (s *sqlStore) getLagFinding(ctx context.Context, id string) (model.LagFinding, error) {
	f, err := scanLag(s.queryRow(ctx, `SELECT `+lagColumns+` FROM lag_findings WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return f, notFound("lag finding", id)
	}
	if err != nil {
		return f, dependency("get lag finding", err)
	}
	return f, nil
}

func (s *sqlStore) ListLagFindings(ctx context.Context, filter LagFilter) ([]model.LagFinding, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	var where []string
	var args []any
	if filter.ServerID != "" {
		where = append(where, "server_id = ?")
		args = append(args, filter.ServerID)
	}
	if filter.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.Resolved != nil {
		where = append(where, "resolved = ?")
		args = append(args, boolInt(*filter.Resolved))
	}
	query := `SELECT ` + lagColumns + ` FROM lag_findings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, dependency("list lag findings", err)
	}
	defer rows.Close()
	var out []model.LagFinding
	for rows.Next() {
		f, err := scanLag(rows.Scan)
		if err != nil {
			return nil, dependency("list lag findings", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, dependency("list lag findings", err)
	}
	return out, nil
}

func (s *sqlStore) ResolveLagFinding(ctx context.Context, id, actor string, at time.Time) (model.LagFinding, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	_, err := s.exec(ctx,
		`UPDATE lag_findings SET resolved = 1, resolved_by = ?, resolved_at = ? WHERE id = ? AND resolved = 0`,
		actor, unixNano(at), id,
	)
	if err != nil {
		return model.LagFinding{}, dependency("resolve lag finding", err)
	}
	return s.getLagFinding(ctx, id)
}

func (s *sqlStore) DeleteExpired(ctx context.Context, c Cutoffs) (Deleted, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	var d Deleted
	steps := []struct {
		cutoff time.Time
		query  string
		count  *int64
	}{
		{c.Connections, `DELETE FROM connection_addresses WHERE ts < ?`, nil},
		{c.Connections, `DELETE FROM connections WHERE ts < ?`, &d.Connections},
		{c.TickSamples, `DELETE FROM tick_samples WHERE ts < ?`, &d.TickSamples},
		{c.Impact, `DELETE FROM impact_samples WHERE ts < ?`, &d.Impact},
		{c.LagFindings, `DELETE FROM lag_findings WHERE ts < ?`, &d.LagFindings},
		{c.ChunkRecords, `DELETE FROM chunk_records WHERE last_updated < ?`, &d.ChunkRecords},
	}
	for _, step := range steps {
		if step.cutoff.IsZero() {
			continue
		}
		res, err := s.exec(ctx, step.query, unixNano(step.cutoff))
		if err != nil {
			return d, dependency("delete expired", err)
		}
		if step.count != nil {
			n, _ := res.RowsAffected()
			*step.count = n
		}
	}
	return d, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: unixNano(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnixNano(n.Int64)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// encodeJSON stores nil values as the empty string.
func encodeJSON(value any) string {
	data, err := json.Marshal(value)
	if err != nil || string(data) == "null" {
		return ""
	}
	return string(data)
}

func decodeJSON(raw string, dst any) {
	if raw == "" {
		return
	}
	_ = json.Unmarshal([]byte(raw), dst)
}

func chunkID(k model.ChunkKey) string {
	return k.ServerID + "/" + k.World + "/" + strconv.Itoa(k.ChunkX) + "/" + strconv.Itoa(k.ChunkZ)
}
