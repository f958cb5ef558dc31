package alerts

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"tickguard/internal/config"
	"tickguard/internal/engine"
	"tickguard/internal/metrics"
	"tickguard/internal/model"
)

// Sink delivers a rendered notification to moderators.
type Sink interface {
	Send(ctx context.Context, n model.Notification) error
}

var severityColors = map[model.Severity]int{
	model.SeverityCritical: 0xef4444,
	model.SeverityHigh:     0xf59e0b,
	model.SeverityMedium:   0xeab308,
	model.SeverityLow:      0x3b82f6,
}

func SeverityColor(s model.Severity) int {
	if c, ok := severityColors[s]; ok {
		return c
	}
	return severityColors[model.SeverityLow]
}

// Controller applies the per-key cooldown, renders alerts and hands them to
// the sink once. Sink failures are logged and dropped.
type Controller struct {
	cooldown *engine.Cooldown
	sink     Sink
	store    *Store
	logger   *slog.Logger
	timeout  atomic.Int64
	now      func() time.Time
}

func NewController(cfg *config.Config, sink Sink, store *Store, logger *slog.Logger) *Controller {
	c := &Controller{
		cooldown: engine.NewCooldown(cfg.Alerts.Cooldown),
		sink:     sink,
		store:    store,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	c.timeout.Store(int64(cfg.Notify.Timeout))
	return c
}

func (c *Controller) UpdateConfig(cfg *config.Config) {
	c.cooldown.SetWindow(cfg.Alerts.Cooldown)
	c.timeout.Store(int64(cfg.Notify.Timeout))
}

func (c *Controller) Cooldown() *engine.Cooldown {
	return c.cooldown
}

// Permit consumes the cooldown slot for key. It reports false while key is
// inside its window.
func (c *Controller) Permit(key string, kind model.AlertKind) bool {
	if c.cooldown.Allow(key) {
		return true
	}
	metrics.RecordNotification(string(kind), "suppressed")
	if c.logger != nil {
		c.logger.Debug("alert suppressed by cooldown", "key", key)
	}
	return false
}

// Deliver renders alert and hands it to the sink without consulting the
// cooldown. Callers gate it with Permit.
func (c *Controller) Deliver(ctx context.Context, alert model.Alert) bool {
	kind := string(alert.Kind)
	n := Render(alert, c.now())
	sendCtx := ctx
	if d := time.Duration(c.timeout.Load()); d > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	if err := c.sink.Send(sendCtx, n); err != nil {
		metrics.RecordNotification(kind, "failed")
		if c.logger != nil {
			c.logger.Warn("notification dropped",
				"key", alert.Key,
				"finding_id", alert.FindingID,
				"err", err,
			)
		}
		return false
	}
	metrics.RecordNotification(kind, "sent")
	if c.store != nil {
		c.store.Add(n)
	}
	return true
}

// Submit is Permit followed by Deliver. A failed send still starts the
// cooldown.
func (c *Controller) Submit(ctx context.Context, alert model.Alert) bool {
	if !c.Permit(alert.Key, alert.Kind) {
		return false
	}
	return c.Deliver(ctx, alert)
}

// Render builds the notification for alert, attaching the resolution
// actions that apply to its kind.
func Render(alert model.Alert, ts time.Time) model.Notification {
	n := model.Notification{
		Key:           alert.Key,
		Kind:          alert.Kind,
		Title:         alert.Title,
		Description:   alert.Description,
		Severity:      alert.Severity,
		SeverityColor: SeverityColor(alert.Severity),
		Fields:        append([]model.Field(nil), alert.Fields...),
		FindingID:     alert.FindingID,
		Timestamp:     ts,
	}
	if n.Fields == nil {
		n.Fields = []model.Field{}
	}
	switch {
	case alert.FindingID == "":
		n.Actions = []model.Action{}
	case alert.Kind == model.AlertAlt:
		n.Actions = model.AltActions(alert.FindingID)
	default:
		n.Actions = model.LagActions(alert.FindingID)
	}
	return n
}
