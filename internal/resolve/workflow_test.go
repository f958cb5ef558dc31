package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"tickguard/internal/model"
	"tickguard/internal/storage"
)

func seeded(t *testing.T) (storage.Store, *Workflow) {
	t.Helper()
	ctx := context.Background()
	st := storage.NewMemory()
	if err := st.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := st.CreateAltGroup(ctx, model.AltGroup{
		ID:               "g1",
		PrimaryAccountID: "a1",
		PrimaryName:      "Steve",
		LinkedAccounts:   []model.LinkedAccount{{AccountID: "a2", Name: "Steve2"}},
		RiskScore:        60,
		Status:           model.AltPending,
		CreatedAt:        now,
	}); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := st.CreateLagFinding(ctx, model.LagFinding{
		ID:        "l1",
		ServerID:  "survival",
		Kind:      model.LagEntitySpam,
		Severity:  model.SeverityCritical,
		Details:   "entities",
		Timestamp: now,
	}); err != nil {
		t.Fatalf("create finding: %v", err)
	}
	return st, NewWorkflow(st, NewAllowList([]string{"Mod-1"}), nil)
}

func TestResolveAltConfirm(t *testing.T) {
	_, w := seeded(t)
	g, err := w.ResolveAlt(context.Background(), "g1", model.DecisionConfirm, "mod-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if g.Status != model.AltConfirmed || g.ReviewedBy != "mod-1" || g.ReviewedAt == nil {
		t.Fatalf("unexpected group: %+v", g)
	}
	again, err := w.ResolveAlt(context.Background(), "g1", model.DecisionDeny, "mod-1")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if again.Status != model.AltConfirmed {
		t.Fatalf("terminal status changed to %s", again.Status)
	}
}

func TestResolveLagTwiceKeepsFirstTimestamp(t *testing.T) {
	_, w := seeded(t)
	first := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return first }
	f, err := w.ResolveLag(context.Background(), "l1", "mod-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	w.now = func() time.Time { return first.Add(time.Hour) }
	f2, err := w.ResolveLag(context.Background(), "l1", "mod-1")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !f2.Resolved || f2.ResolvedAt == nil || !f2.ResolvedAt.Equal(*f.ResolvedAt) {
		t.Fatalf("resolvedAt moved: %v -> %v", f.ResolvedAt, f2.ResolvedAt)
	}
}

func TestResolveErrors(t *testing.T) {
	_, w := seeded(t)
	ctx := context.Background()
	if _, err := w.ResolveLag(ctx, "missing", "mod-1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := w.ResolveAlt(ctx, "missing", model.DecisionConfirm, "mod-1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := w.Apply(ctx, Request{ActionID: "lag_resolve_l1", ActorID: "stranger"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := w.ResolveLag(ctx, "l1", " "); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := w.ResolveAlt(ctx, "g1", model.DecisionResolve, "mod-1"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestForbiddenLeavesRecordUntouched(t *testing.T) {
	st, w := seeded(t)
	if _, err := w.Apply(context.Background(), Request{FindingID: "g1", Decision: model.DecisionConfirm, ActorID: "stranger"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	g, err := st.GetAltGroup(context.Background(), "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if g.Status != model.AltPending {
		t.Fatalf("denied resolution changed status to %s", g.Status)
	}
}

func TestApplyActionID(t *testing.T) {
	_, w := seeded(t)
	ctx := context.Background()
	res, err := w.Apply(ctx, Request{ActionID: "alt_deny_g1", ActorID: "mod-1"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Kind != model.AlertAlt || res.AltGroup == nil || res.AltGroup.Status != model.AltFalsePositive {
		t.Fatalf("unexpected result: %+v", res)
	}
	res, err = w.Apply(ctx, Request{FindingID: "l1", Decision: "Resolve", ActorID: "mod-1"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.LagFinding == nil || !res.LagFinding.Resolved {
		t.Fatalf("unexpected result: %+v", res)
	}
	for _, bad := range []Request{
		{ActorID: "mod-1"},
		{ActionID: "reboot_g1", ActorID: "mod-1"},
		{FindingID: "l1", Decision: "maybe", ActorID: "mod-1"},
	} {
		if _, err := w.Apply(ctx, bad); !errors.Is(err, model.ErrValidation) {
			t.Fatalf("%+v: expected validation error, got %v", bad, err)
		}
	}
}

func TestAllowList(t *testing.T) {
	open := NewAllowList(nil)
	if !open.Open() || !open.CanResolve("anyone") {
		t.Fatalf("empty allow-list should permit everyone")
	}
	if open.CanResolve("") {
		t.Fatalf("empty actor must never be permitted")
	}
	a := NewAllowList([]string{" Mod-1 ", ""})
	if !a.CanResolve("mod-1") || a.CanResolve("mod-2") {
		t.Fatalf("allow-list mismatch")
	}
	a.Update(nil)
	if !a.CanResolve("mod-2") {
		t.Fatalf("cleared allow-list should permit everyone")
	}
	deny := PermissionFunc(func(string) bool { return false })
	if deny.CanResolve("mod-1") {
		t.Fatalf("PermissionFunc not applied")
	}
}
