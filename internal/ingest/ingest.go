package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tickguard/internal/metrics"
	"tickguard/internal/model"
	"tickguard/internal/normalize"
)

// Dispatcher takes ownership of a normalized event and handles it in the
// background.
type Dispatcher interface {
	Dispatch(ev model.Event)
}

// Counts is the per-request outcome returned to senders.
type Counts struct {
	Accepted int `json:"accepted"`
	Failed   int `json:"failed"`
}

// Intake is the decode, normalize and dispatch path shared by every ingestion
// surface. A malformed item is counted and logged and never fails the rest
// of its batch.
type Intake struct {
	normalizer *normalize.Normalizer
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewIntake(n *normalize.Normalizer, d Dispatcher, logger *slog.Logger) *Intake {
	if n == nil {
		n = normalize.New(time.UTC)
	}
	return &Intake{normalizer: n, dispatcher: d, logger: logger}
}

// AcceptBody decodes a single object or an array of objects. forced, when
// set, is the event type implied by the route. Only undecodable JSON is an
// error.
func (in *Intake) AcceptBody(source string, body []byte, forced model.EventType) (Counts, error) {
	items, err := ParseBody(body)
	if err != nil {
		metrics.RecordRejected(source, "invalid_json")
		return Counts{}, err
	}
	var c Counts
	for _, obj := range items {
		if err := in.Accept(source, obj, forced); err != nil {
			c.Failed++
			continue
		}
		c.Accepted++
	}
	return c, nil
}

func (in *Intake) Accept(source string, obj map[string]any, forced model.EventType) error {
	var (
		ev  model.Event
		err error
	)
	if forced != "" {
		ev, err = in.normalizer.NormalizeAs(forced, obj)
	} else {
		ev, err = in.normalizer.Normalize(obj)
	}
	if err != nil {
		reason := "invalid"
		if errors.Is(err, normalize.ErrUnknownType) {
			reason = "unknown_type"
		}
		metrics.RecordRejected(source, reason)
		if in.logger != nil {
			in.logger.Warn("event dropped", "source", source, "reason", reason, "err", err)
		}
		return err
	}
	metrics.RecordEvent(source, string(ev.EventType()))
	if in.dispatcher != nil {
		in.dispatcher.Dispatch(ev)
	}
	return nil
}

// BackoffSleep waits d, or 200ms when d is not positive. It reports false
// when ctx ended first.
func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
