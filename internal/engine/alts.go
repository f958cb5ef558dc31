package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tickguard/internal/metrics"
	"tickguard/internal/model"
	"tickguard/internal/storage"
)

// Notifier receives alerts from the detectors. Permit consumes the cooldown
// slot for a key; Deliver hands an alert to the sink and reports whether it
// arrived.
type Notifier interface {
	Permit(key string, kind model.AlertKind) bool
	Deliver(ctx context.Context, alert model.Alert) bool
}

func submit(ctx context.Context, n Notifier, alert model.Alert) bool {
	return n.Permit(alert.Key, alert.Kind) && n.Deliver(ctx, alert)
}

const (
	riskBase        = 30
	riskPerSibling  = 15
	riskSiblingCap  = 40
	riskNameOverlap = 15
	namePrefixLen   = 3
)

type AltDetector struct {
	store  storage.Store
	hasher *AddressHasher
	alerts Notifier
	logger *slog.Logger
	now    func() time.Time
}

func NewAltDetector(store storage.Store, hasher *AddressHasher, alerts Notifier, logger *slog.Logger) *AltDetector {
	return &AltDetector{
		store:  store,
		hasher: hasher,
		alerts: alerts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// HandleConnection records the connection and, for joins, looks for other
// accounts behind the same hashed address.
func (d *AltDetector) HandleConnection(ctx context.Context, ev *model.ConnectionEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.HashedAddress = d.hasher.Hash(ev.Address)
	if err := d.store.SaveConnection(ctx, *ev); err != nil {
		return fmt.Errorf("save connection: %w", err)
	}
	if _, err := d.store.UpsertProfile(ctx, *ev); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	if ev.Kind != model.ConnectionJoin || ev.HashedAddress == "" {
		return nil
	}

	siblings, err := d.store.SiblingAccounts(ctx, ev.HashedAddress, ev.AccountID)
	if err != nil {
		return fmt.Errorf("sibling accounts: %w", err)
	}
	if len(siblings) == 0 {
		return nil
	}
	grouped, err := d.grouped(ctx, ev.AccountID)
	if err != nil || grouped {
		return err
	}

	// check-then-insert: two truly concurrent joins can both create a group
	names := make([]string, 0, len(siblings))
	for _, s := range siblings {
		names = append(names, s.Name)
	}
	group := model.AltGroup{
		ID:                  uuid.NewString(),
		PrimaryAccountID:    ev.AccountID,
		PrimaryName:         ev.DisplayName,
		LinkedAccounts:      siblings,
		SharedAddressHashes: []string{ev.HashedAddress},
		RiskScore:           RiskScore(len(siblings), NamesOverlap(ev.DisplayName, names)),
		Status:              model.AltPending,
		CreatedAt:           d.now(),
	}
	return d.createAndAlert(ctx, group)
}

// HandleReport takes an alt association computed by a sender. An account
// that is already grouped is alerted on again instead of regrouped.
func (d *AltDetector) HandleReport(ctx context.Context, r *model.AltReport) error {
	existing, err := d.store.FindAltGroupByAccount(ctx, r.AccountID)
	switch {
	case err == nil:
		submit(ctx, d.alerts, AltAlert(existing))
		return nil
	case !errors.Is(err, model.ErrNotFound):
		return fmt.Errorf("find alt group: %w", err)
	}

	linked := make([]model.LinkedAccount, 0, len(r.LinkedAccounts))
	seen := map[string]bool{r.AccountID: true}
	names := make([]string, 0, len(r.LinkedAccounts))
	for _, la := range r.LinkedAccounts {
		if seen[la.AccountID] {
			continue
		}
		seen[la.AccountID] = true
		linked = append(linked, la)
		names = append(names, la.Name)
	}
	if len(linked) == 0 {
		return fmt.Errorf("%w: alt report for %s links no other account", model.ErrValidation, r.AccountID)
	}
	score := RiskScore(len(linked), NamesOverlap(r.DisplayName, names))
	if r.RiskScore != nil {
		score = clampRisk(*r.RiskScore)
	}
	group := model.AltGroup{
		ID:               uuid.NewString(),
		PrimaryAccountID: r.AccountID,
		PrimaryName:      r.DisplayName,
		LinkedAccounts:   linked,
		RiskScore:        score,
		Status:           model.AltPending,
		CreatedAt:        d.now(),
	}
	return d.createAndAlert(ctx, group)
}

func (d *AltDetector) grouped(ctx context.Context, accountID string) (bool, error) {
	_, err := d.store.FindAltGroupByAccount(ctx, accountID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, model.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("find alt group: %w", err)
	}
}

func (d *AltDetector) createAndAlert(ctx context.Context, group model.AltGroup) error {
	if err := d.store.CreateAltGroup(ctx, group); err != nil {
		return fmt.Errorf("create alt group: %w", err)
	}
	alert := AltAlert(group)
	metrics.RecordFinding(string(model.AlertAlt), string(alert.Severity))
	if d.logger != nil {
		d.logger.Info("alt group created",
			"group_id", group.ID,
			"account_id", group.PrimaryAccountID,
			"linked", len(group.LinkedAccounts),
			"risk_score", group.RiskScore,
		)
	}
	submit(ctx, d.alerts, alert)
	return nil
}

// RiskScore is 30 plus 15 per sibling account (capped at 40) plus 15 when the
// names overlap, clamped to 0..100.
func RiskScore(siblings int, nameOverlap bool) int {
	score := riskBase + min(riskPerSibling*siblings, riskSiblingCap)
	if nameOverlap {
		score += riskNameOverlap
	}
	return clampRisk(score)
}

func clampRisk(score int) int {
	return max(0, min(score, 100))
}

// NamesOverlap reports whether name and any sibling name contain each
// other's first three characters, ignoring case. Empty names never match.
func NamesOverlap(name string, siblings []string) bool {
	a := strings.ToLower(strings.TrimSpace(name))
	if a == "" {
		return false
	}
	for _, s := range siblings {
		b := strings.ToLower(strings.TrimSpace(s))
		if b == "" {
			continue
		}
		if strings.Contains(a, namePrefix(b)) || strings.Contains(b, namePrefix(a)) {
			return true
		}
	}
	return false
}

func namePrefix(s string) string {
	r := []rune(s)
	if len(r) > namePrefixLen {
		r = r[:namePrefixLen]
	}
	return string(r)
}

// AltSeverity maps a risk score to the alert severity.
func AltSeverity(risk int) model.Severity {
	switch {
	case risk >= 70:
		return model.SeverityCritical
	case risk >= 50:
		return model.SeverityHigh
	default:
		return model.SeverityLow
	}
}

// AltAlert builds the moderator alert for a pending alt group.
func AltAlert(g model.AltGroup) model.Alert {
	linked := make([]string, 0, len(g.LinkedAccounts))
	for _, la := range g.LinkedAccounts {
		name := la.Name
		if name == "" {
			name = la.AccountID
		}
		linked = append(linked, name)
	}
	return model.Alert{
		Key:         "alt_" + g.PrimaryAccountID,
		Kind:        model.AlertAlt,
		Severity:    AltSeverity(g.RiskScore),
		Title:       "Possible alt account: " + displayName(g.PrimaryName, g.PrimaryAccountID),
		Description: fmt.Sprintf("%s shares a network address with %d other account(s)", displayName(g.PrimaryName, g.PrimaryAccountID), len(g.LinkedAccounts)),
		Fields: []model.Field{
			{Name: "Account", Value: g.PrimaryAccountID, Inline: true},
			{Name: "Risk score", Value: fmt.Sprintf("%d/100", g.RiskScore), Inline: true},
			{Name: "Status", Value: string(g.Status), Inline: true},
			{Name: "Linked accounts", Value: strings.Join(linked, ", ")},
		},
		FindingID: g.ID,
		AccountID: g.PrimaryAccountID,
	}
}

func displayName(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
