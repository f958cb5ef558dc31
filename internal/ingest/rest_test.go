package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"tickguard/internal/auth"
	"tickguard/internal/config"
	"tickguard/internal/model"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []model.Event
}

func (d *recordingDispatcher) Dispatch(ev model.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *recordingDispatcher) list() []model.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.Event(nil), d.events...)
}

func newGateway(secret string) (http.Handler, *recordingDispatcher) {
	d := &recordingDispatcher{}
	cfg := config.DefaultConfig().Ingest.REST
	g := NewGateway(cfg, auth.NewMode(secret), NewIntake(nil, d, nil), nil)
	return g.Routes(), d
}

func post(h http.Handler, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeCounts(t *testing.T, rec *httptest.ResponseRecorder) Counts {
	t.Helper()
	var c Counts
	if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return c
}

func TestGatewayAuth(t *testing.T) {
	h, d := newGateway("s3cret")
	body := `{"type":"tps_update","server":"survival","tps":19.5}`

	if rec := post(h, "/api/events", "", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: status %d", rec.Code)
	}
	if rec := post(h, "/api/events", "wrong", body); rec.Code != http.StatusForbidden {
		t.Fatalf("wrong secret: status %d", rec.Code)
	}
	if len(d.list()) != 0 {
		t.Fatalf("auth failures must not dispatch")
	}
	rec := post(h, "/api/events", "s3cret", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if c := decodeCounts(t, rec); c.Accepted != 1 || c.Failed != 0 {
		t.Fatalf("unexpected counts: %+v", c)
	}
	if len(d.list()) != 1 {
		t.Fatalf("dispatched %d events", len(d.list()))
	}
}

func TestGatewayOpenModeAndHealth(t *testing.T) {
	h, d := newGateway("")
	rec := post(h, "/api/events", "", `{"type":"tps_update","server":"survival"}`)
	if rec.Code != http.StatusOK || len(d.list()) != 1 {
		t.Fatalf("open mode should accept, status %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestGatewayBatchKeepsGoodItems(t *testing.T) {
	h, d := newGateway("")
	body := `[
		{"type":"tps_update","server":"survival","tps":17},
		{"type":"heartbeat"},
		{"type":"connection","username":"Steve"},
		42,
		{"type":"lag_alert","server":"survival","kind":"hopper_lag"}
	]`
	rec := post(h, "/api/events", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if c := decodeCounts(t, rec); c.Accepted != 2 || c.Failed != 3 {
		t.Fatalf("unexpected counts: %+v", c)
	}
	evs := d.list()
	if len(evs) != 2 || evs[0].EventType() != model.EventTPSUpdate || evs[1].EventType() != model.EventLagAlert {
		t.Fatalf("unexpected dispatch: %+v", evs)
	}
}

func TestGatewayInvalidJSON(t *testing.T) {
	h, d := newGateway("")
	for _, body := range []string{`{"type":`, ``, `   `} {
		if rec := post(h, "/api/events", "", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%q: status %d", body, rec.Code)
		}
	}
	if len(d.list()) != 0 {
		t.Fatalf("invalid bodies must not dispatch")
	}
}

func TestGatewayLegacyRoutes(t *testing.T) {
	h, d := newGateway("")
	cases := []struct {
		path string
		body string
		want model.EventType
	}{
		{"/api/analytics/tps", `{"server":"survival","tps":12}`, model.EventTPSUpdate},
		{"/api/analytics/chunks", `{"server":"survival","chunks":[{"x":1,"z":2,"entities":5}]}`, model.EventChunkScan},
		{"/api/analytics/lag-alert", `{"server":"survival","type":"entity_spam","severity":"high"}`, model.EventLagAlert},
		{"/api/analytics/connection", `{"type":"join","uuid":"a1","username":"Steve","ip":"10.0.0.1"}`, model.EventConnection},
		{"/api/analytics/impact", `{"server":"survival","uuid":"a1","username":"Steve"}`, model.EventPlayerImpact},
	}
	for _, tc := range cases {
		rec := post(h, tc.path, "", tc.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", tc.path, rec.Code)
		}
		if c := decodeCounts(t, rec); c.Accepted != 1 {
			t.Fatalf("%s: counts %+v", tc.path, c)
		}
	}
	evs := d.list()
	if len(evs) != len(cases) {
		t.Fatalf("dispatched %d events", len(evs))
	}
	for i, tc := range cases {
		if evs[i].EventType() != tc.want {
			t.Fatalf("%s dispatched %s", tc.path, evs[i].EventType())
		}
	}
	if lag := evs[2].(*model.LagReport); lag.Kind != model.LagEntitySpam {
		t.Fatalf("lag kind = %s", lag.Kind)
	}
}

func TestGatewayBodyLimit(t *testing.T) {
	d := &recordingDispatcher{}
	cfg := config.DefaultConfig().Ingest.REST
	cfg.MaxBodyBytes = 16
	h := NewGateway(cfg, auth.NewMode(""), NewIntake(nil, d, nil), nil).Routes()
	rec := post(h, "/api/events", "", `{"type":"tps_update","server":"survival"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d", rec.Code)
	}
}

type scriptedReader struct {
	msgs []kafka.Message
	i    int
	stop context.CancelFunc
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if r.i < len(r.msgs) {
		m := r.msgs[r.i]
		r.i++
		return m, nil
	}
	r.stop()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *scriptedReader) Close() error { return nil }

func TestConsumerFeedsIntake(t *testing.T) {
	d := &recordingDispatcher{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &scriptedReader{stop: cancel, msgs: []kafka.Message{
		{Value: []byte(`{"type":"tps_update","server":"survival","tps":19}`)},
		{Value: []byte(`not json`)},
		{Value: []byte(`[{"type":"player_impact","server":"s","uuid":"a"},{"type":"nope"}]`)},
	}}
	c := NewConsumer(config.KafkaConfig{Topic: "telemetry"}, NewIntake(nil, d, nil), nil)
	c.newReader = func(config.KafkaConfig) messageReader { return reader }
	if err := c.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("serve returned %v", err)
	}
	if n := len(d.list()); n != 2 {
		t.Fatalf("dispatched %d events, want 2", n)
	}
}
