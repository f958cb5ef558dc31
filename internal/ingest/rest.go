package ingest

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"

	"tickguard/internal/auth"
	"tickguard/internal/config"
	"tickguard/internal/model"
)

const sourceREST = "rest"

// Gateway is the authenticated HTTP surface the game and proxy plugins post
// telemetry to. Handling is detached: the response only reports how many
// items were accepted for processing.
type Gateway struct {
	cfg    config.RESTConfig
	mode   auth.Mode
	intake *Intake
	logger *slog.Logger
}

func NewGateway(cfg config.RESTConfig, mode auth.Mode, intake *Intake, logger *slog.Logger) *Gateway {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = config.DefaultConfig().Ingest.REST.MaxBodyBytes
	}
	return &Gateway{cfg: cfg, mode: mode, intake: intake, logger: logger}
}

func (g *Gateway) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if rl := g.cfg.RateLimit; rl.Requests > 0 {
			r.Use(httprate.LimitByIP(rl.Requests, rl.Window))
		}
		r.Use(g.mode.Middleware)
		r.Post("/api/events", g.handle(""))
		r.Route("/api/analytics", func(r chi.Router) {
			r.Post("/tps", g.handle(model.EventTPSUpdate))
			r.Post("/chunks", g.handle(model.EventChunkScan))
			r.Post("/lag-alert", g.handle(model.EventLagAlert))
			r.Post("/connection", g.handle(model.EventConnection))
			r.Post("/impact", g.handle(model.EventPlayerImpact))
		})
	})
	return r
}

func (g *Gateway) handle(forced model.EventType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.cfg.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read body"})
			return
		}
		counts, err := g.intake.AcceptBody(sourceREST, body, forced)
		if err != nil {
			if g.logger != nil {
				g.logger.Warn("rejected ingest body", "path", r.URL.Path, "remote", r.RemoteAddr, "err", err)
			}
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
