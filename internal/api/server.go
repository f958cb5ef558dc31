package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tickguard/internal/alerts"
	"tickguard/internal/auth"
	"tickguard/internal/config"
	"tickguard/internal/engine"
	"tickguard/internal/metrics"
	"tickguard/internal/model"
	"tickguard/internal/resolve"
	"tickguard/internal/storage"
)

type EngineControl interface {
	Reset()
}

// Deps are the collaborators the API reads from and acts on.
type Deps struct {
	Config    *config.Manager
	Store     storage.Store
	Snapshots *metrics.Store
	Alerts    *alerts.Store
	Cooldown  *engine.Cooldown
	Engine    EngineControl
	Workflow  *resolve.Workflow
	Auth      auth.Mode
	Logger    *slog.Logger
	Version   string
}

type Server struct {
	cfg       *config.Manager
	store     storage.Store
	snapshots *metrics.Store
	alerts    *alerts.Store
	cooldown  *engine.Cooldown
	engine    EngineControl
	workflow  *resolve.Workflow
	mode      auth.Mode
	logger    *slog.Logger
	version   string
	started   time.Time
}

type statusResponse struct {
	Status        string       `json:"status"`
	Time          string       `json:"time"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	ConfigPath    string       `json:"config_path"`
	AuthMode      string       `json:"auth_mode"`
	Ingest        ingestStatus `json:"ingest"`
	Notify        string       `json:"notify_driver"`
	Storage       string       `json:"storage_driver"`
	Servers       int          `json:"servers"`
	Alerts        int          `json:"alerts"`
	CooldownKeys  int          `json:"cooldown_keys"`
}

type ingestStatus struct {
	REST  bool `json:"rest"`
	Kafka bool `json:"kafka"`
}

func NewServer(d Deps) *Server {
	return &Server{
		cfg:       d.Config,
		store:     d.Store,
		snapshots: d.Snapshots,
		alerts:    d.Alerts,
		cooldown:  d.Cooldown,
		engine:    d.Engine,
		workflow:  d.Workflow,
		mode:      d.Auth,
		logger:    d.Logger,
		version:   d.Version,
		started:   time.Now(),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.mode.Middleware)

	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/servers", s.handleServers)
	r.Get("/servers/{id}", s.handleServer)
	r.Get("/alerts", s.handleAlerts)
	r.Get("/alts", s.handleAlts)
	r.Get("/alts/{id}", s.handleAlt)
	r.Get("/lag", s.handleLag)
	r.Get("/lag/{id}", s.handleLagFinding)
	r.Get("/chunks", s.handleChunks)
	r.Get("/chunks/{server}/{world}/{x}/{z}", s.handleChunk)
	r.Get("/players/{id}", s.handlePlayer)
	r.Post("/admin/clear", s.handleClear)
	r.Post("/api/resolutions", s.handleResolution)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:        "ok",
		Time:          time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		ConfigPath:    s.cfg.Path(),
		AuthMode:      s.mode.String(),
		Ingest:        ingestStatus{REST: cfg.Ingest.REST.Enabled, Kafka: cfg.Ingest.Kafka.Enabled},
		Notify:        cfg.Notify.Driver,
		Storage:       cfg.Storage.Driver,
	}
	if s.snapshots != nil {
		resp.Servers = s.snapshots.Len()
	}
	if s.alerts != nil {
		resp.Alerts = s.alerts.Len()
	}
	if s.cooldown != nil {
		resp.CooldownKeys = s.cooldown.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleServers(w http.ResponseWriter, _ *http.Request) {
	all := s.snapshots.GetAll()
	writeJSON(w, http.StatusOK, map[string]any{"servers": all, "count": len(all)})
}

func (s *Server) handleServer(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshots.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var list []model.Notification
	if since := r.URL.Query().Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		list = s.alerts.Since(ts)
	} else {
		list = s.alerts.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": list, "count": len(list)})
}

func (s *Server) handleAlts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := model.AltStatus(strings.ToLower(r.URL.Query().Get("status")))
	switch status {
	case "", model.AltPending, model.AltConfirmed, model.AltFalsePositive:
	default:
		writeError(w, http.StatusBadRequest, "status must be pending, confirmed or false_positive")
		return
	}
	groups, err := s.store.ListAltGroups(r.Context(), storage.AltFilter{Status: status, Limit: limit})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alt_groups": groups, "count": len(groups)})
}

func (s *Server) handleAlt(w http.ResponseWriter, r *http.Request) {
	g, err := s.store.GetAltGroup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleLag(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := storage.LagFilter{ServerID: q.Get("server"), Limit: limit}
	if v := q.Get("severity"); v != "" {
		filter.Severity = model.Severity(strings.ToLower(v))
		if !filter.Severity.Valid() {
			writeError(w, http.StatusBadRequest, "unknown severity")
			return
		}
	}
	if v := q.Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "resolved must be a boolean")
			return
		}
		filter.Resolved = &b
	}
	findings, err := s.store.ListLagFindings(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": findings, "count": len(findings)})
}

func (s *Server) handleLagFinding(w http.ResponseWriter, r *http.Request) {
	f, err := s.store.GetLagFinding(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := storage.ChunkFilter{ServerID: q.Get("server"), Limit: limit}
	if v := q.Get("flagged"); v != "" {
		if filter.FlaggedOnly, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "flagged must be a boolean")
			return
		}
	}
	chunks, err := s.store.ListChunks(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks, "count": len(chunks)})
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	if errX != nil || errZ != nil {
		writeError(w, http.StatusBadRequest, "chunk coordinates must be integers")
		return
	}
	rec, err := s.store.GetChunk(r.Context(), model.ChunkKey{
		ServerID: chi.URLParam(r, "server"),
		World:    chi.URLParam(r, "world"),
		ChunkX:   x,
		ChunkZ:   z,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	profile, err := s.store.GetProfile(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := map[string]any{"profile": profile}
	g, err := s.store.FindAltGroupByAccount(r.Context(), id)
	switch {
	case err == nil:
		resp["alt_group"] = g
	case !errors.Is(err, model.ErrNotFound):
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		s.clearAlerts()
		s.clearCooldowns()
		s.clearServers()
	case "alerts":
		s.clearAlerts()
	case "cooldowns":
		s.clearCooldowns()
	case "servers":
		s.clearServers()
	default:
		writeError(w, http.StatusBadRequest, "target must be alerts, cooldowns, servers or all")
		return
	}
	if s.logger != nil {
		s.logger.Info("admin clear", "target", target, "remote", r.RemoteAddr)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "target": target})
}

func (s *Server) clearAlerts() {
	if s.alerts != nil {
		s.alerts.Clear()
	}
}

func (s *Server) clearCooldowns() {
	if s.cooldown != nil {
		s.cooldown.Reset()
	}
}

func (s *Server) clearServers() {
	if s.snapshots != nil {
		s.snapshots.Clear()
	}
	if s.engine != nil {
		s.engine.Reset()
	}
}

func (s *Server) handleResolution(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	var req resolve.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := s.workflow.Apply(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// fail maps the error taxonomy onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrAuth):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrDependency):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 && s.logger != nil {
		s.logger.Error("api request failed", "path", r.URL.Path, "err", err)
	}
	writeError(w, status, err.Error())
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
