package resolve

import (
	"log/slog"
	"strings"
	"sync/atomic"

	"tickguard/internal/config"
)

// Permission decides whether an actor may resolve findings.
type Permission interface {
	CanResolve(actorID string) bool
}

// AllowList permits the configured actor ids. An empty list permits every
// actor.
type AllowList struct {
	set atomic.Pointer[map[string]struct{}]
}

func NewAllowList(actors []string) *AllowList {
	a := &AllowList{}
	a.Update(actors)
	return a
}

func (a *AllowList) UpdateConfig(cfg *config.Config) {
	a.Update(cfg.Resolution.AllowedActors)
}

func (a *AllowList) Update(actors []string) {
	set := buildActorSet(actors)
	a.set.Store(&set)
}

func (a *AllowList) Open() bool {
	set := a.set.Load()
	return set == nil || len(*set) == 0
}

func (a *AllowList) CanResolve(actorID string) bool {
	actorID = normalizeActor(actorID)
	if actorID == "" {
		return false
	}
	set := a.set.Load()
	if set == nil || len(*set) == 0 {
		return true
	}
	_, ok := (*set)[actorID]
	return ok
}

// Warn logs the startup warning for an empty allow-list.
func (a *AllowList) Warn(logger *slog.Logger) {
	if logger != nil && a.Open() {
		logger.Warn("resolution.allowed_actors is empty, any actor may resolve findings")
	}
}

func buildActorSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		id := normalizeActor(v)
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func normalizeActor(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// PermissionFunc adapts a plain predicate to Permission.
type PermissionFunc func(actorID string) bool

func (f PermissionFunc) CanResolve(actorID string) bool { return f(actorID) }
