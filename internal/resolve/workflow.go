// Package resolve applies moderator decisions to persisted findings.
//
// Alt groups move from pending to confirmed or false_positive, lag findings
// flip resolved once. Repeating a resolution returns the record unchanged.
// ResolveAlt and ResolveLag perform no authorization; Apply is the intake
// and gates on the Permission predicate first.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tickguard/internal/model"
	"tickguard/internal/storage"
)

var ErrForbidden = fmt.Errorf("%w: actor may not resolve findings", model.ErrAuth)

// Request is the resolution intake. Either FindingID with Decision, or a
// rendered ActionID, names what to resolve.
type Request struct {
	FindingID string         `json:"findingId"`
	Decision  model.Decision `json:"decision"`
	ActionID  string         `json:"actionId"`
	ActorID   string         `json:"actorId"`
}

// Result holds the updated record. Exactly one of AltGroup and LagFinding is set.
type Result struct {
	Kind       model.AlertKind   `json:"kind"`
	AltGroup   *model.AltGroup   `json:"alt_group,omitempty"`
	LagFinding *model.LagFinding `json:"lag_finding,omitempty"`
}

type Workflow struct {
	store  storage.Store
	perm   Permission
	logger *slog.Logger
	now    func() time.Time
}

func NewWorkflow(store storage.Store, perm Permission, logger *slog.Logger) *Workflow {
	if perm == nil {
		perm = NewAllowList(nil)
	}
	return &Workflow{
		store:  store,
		perm:   perm,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Apply validates req, checks the actor and resolves the named finding.
func (w *Workflow) Apply(ctx context.Context, req Request) (Result, error) {
	findingID, decision, err := req.target()
	if err != nil {
		return Result{}, err
	}
	actorID, err := actor(req.ActorID)
	if err != nil {
		return Result{}, err
	}
	if !w.perm.CanResolve(actorID) {
		if w.logger != nil {
			w.logger.Warn("resolution denied", "actor_id", actorID, "finding_id", findingID)
		}
		return Result{}, ErrForbidden
	}
	switch decision {
	case model.DecisionConfirm, model.DecisionDeny:
		g, err := w.ResolveAlt(ctx, findingID, decision, actorID)
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: model.AlertAlt, AltGroup: &g}, nil
	default:
		f, err := w.ResolveLag(ctx, findingID, actorID)
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: model.AlertLag, LagFinding: &f}, nil
	}
}

func (r Request) target() (string, model.Decision, error) {
	if id := strings.TrimSpace(r.ActionID); id != "" {
		d, findingID, ok := model.ParseActionID(id)
		if !ok {
			return "", "", fmt.Errorf("%w: unknown action id %q", model.ErrValidation, id)
		}
		return findingID, d, nil
	}
	findingID := strings.TrimSpace(r.FindingID)
	if findingID == "" {
		return "", "", fmt.Errorf("%w: findingId or actionId required", model.ErrValidation)
	}
	d := model.Decision(strings.ToLower(strings.TrimSpace(string(r.Decision))))
	switch d {
	case model.DecisionConfirm, model.DecisionDeny, model.DecisionResolve:
		return findingID, d, nil
	}
	return "", "", fmt.Errorf("%w: decision must be confirm, deny or resolve", model.ErrValidation)
}

func (w *Workflow) ResolveAlt(ctx context.Context, groupID string, decision model.Decision, actorID string) (model.AltGroup, error) {
	var status model.AltStatus
	switch decision {
	case model.DecisionConfirm:
		status = model.AltConfirmed
	case model.DecisionDeny:
		status = model.AltFalsePositive
	default:
		return model.AltGroup{}, fmt.Errorf("%w: alt groups take confirm or deny, got %q", model.ErrValidation, decision)
	}
	actorID, err := actor(actorID)
	if err != nil {
		return model.AltGroup{}, err
	}
	g, err := w.store.ResolveAltGroup(ctx, groupID, status, actorID, w.now())
	if err != nil {
		return model.AltGroup{}, err
	}
	if w.logger != nil {
		w.logger.Info("alt group resolved",
			"group_id", g.ID,
			"status", g.Status,
			"reviewed_by", g.ReviewedBy,
			"requested_by", actorID,
		)
	}
	return g, nil
}

func (w *Workflow) ResolveLag(ctx context.Context, findingID, actorID string) (model.LagFinding, error) {
	actorID, err := actor(actorID)
	if err != nil {
		return model.LagFinding{}, err
	}
	f, err := w.store.ResolveLagFinding(ctx, findingID, actorID, w.now())
	if err != nil {
		return model.LagFinding{}, err
	}
	if w.logger != nil {
		w.logger.Info("lag finding resolved",
			"finding_id", f.ID,
			"resolved_by", f.ResolvedBy,
			"requested_by", actorID,
		)
	}
	return f, nil
}

func actor(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: actorId required", model.ErrValidation)
	}
	return id, nil
}
