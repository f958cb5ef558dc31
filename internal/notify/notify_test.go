package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"

	"tickguard/internal/config"
	"tickguard/internal/model"
)

func sampleNotification() model.Notification {
	return model.Notification{
		Key:           "lag_survival_entity_spam",
		Kind:          model.AlertLag,
		Title:         "Entity spam on survival",
		Severity:      model.SeverityCritical,
		SeverityColor: 0xef4444,
		Fields:        []model.Field{{Name: "Entities", Value: "312", Inline: true}, {Name: "World", Value: ""}},
		Actions:       model.LagActions("f-1"),
		FindingID:     "f-1",
		Timestamp:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestWebhookSinkPostsPayload(t *testing.T) {
	var got webhookPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("X-Token")
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, map[string]string{"X-Token": "abc"}, time.Second)
	if err := sink.Send(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if auth != "abc" {
		t.Fatalf("custom header not sent, got %q", auth)
	}
	if got.EventType != "tickguard_alert" || got.Notification.FindingID != "f-1" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if len(got.Notification.Actions) != 1 || got.Notification.Actions[0].ID != "lag_resolve_f-1" {
		t.Fatalf("actions not forwarded: %+v", got.Notification.Actions)
	}
}

func TestWebhookSinkStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSink(srv.URL, nil, time.Second).Send(context.Background(), sampleNotification())
	if !errors.Is(err, model.ErrDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestDiscordEmbed(t *testing.T) {
	e := buildEmbed(sampleNotification())
	if e.Color != 0xef4444 || e.Timestamp != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected embed header: %+v", e)
	}
	if len(e.Fields) != 3 {
		t.Fatalf("fields = %d, want 3", len(e.Fields))
	}
	if e.Fields[1].Value != "-" {
		t.Fatalf("empty field value should be replaced, got %q", e.Fields[1].Value)
	}
	if e.Fields[2].Name != "Actions" || e.Fields[2].Value != "Mark Resolved: `lag_resolve_f-1`" {
		t.Fatalf("unexpected actions field: %+v", e.Fields[2])
	}
	if e.Footer == nil || e.Footer.Text != "tickguard | f-1" {
		t.Fatalf("unexpected footer: %+v", e.Footer)
	}
}

func TestDiscordSinkSends(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var p discordPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil || len(p.Embeds) != 1 {
			t.Errorf("bad discord payload: %v %+v", err, p)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordSink(srv.URL, time.Second).Send(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d", hits.Load())
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaSinkKeysByAlert(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w}
	if err := sink.Send(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "lag_survival_entity_spam" {
		t.Fatalf("unexpected messages: %+v", w.msgs)
	}
	var n model.Notification
	if err := json.Unmarshal(w.msgs[0].Value, &n); err != nil || n.FindingID != "f-1" {
		t.Fatalf("unexpected value: %v %+v", err, n)
	}

	w.err = errors.New("broker gone")
	if err := sink.Send(context.Background(), sampleNotification()); !errors.Is(err, model.ErrDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

type failingSink struct {
	calls atomic.Int32
}

func (s *failingSink) Name() string { return "failing" }
func (s *failingSink) Send(context.Context, model.Notification) error {
	s.calls.Add(1)
	return errors.New("down")
}
func (s *failingSink) Close() error { return nil }

func TestBreakerOpensAfterFailures(t *testing.T) {
	inner := &failingSink{}
	b := NewBreaker(inner, config.BreakerConfig{Enabled: true, MinRequests: 3, FailureRate: 0.5, OpenTimeout: time.Minute}, nil)
	for i := 0; i < 3; i++ {
		if err := b.Send(context.Background(), sampleNotification()); err == nil {
			t.Fatalf("send %d should fail", i)
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}
	err := b.Send(context.Background(), sampleNotification())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if inner.calls.Load() != 3 {
		t.Fatalf("open breaker must not call the sink, calls = %d", inner.calls.Load())
	}
}

func TestNewSelectsDriver(t *testing.T) {
	cases := map[string]string{
		"log":     "log",
		"none":    "none",
		"webhook": "webhook",
		"discord": "discord",
	}
	for driver, want := range cases {
		s, err := New(config.NotifyConfig{Driver: driver, WebhookURL: "http://127.0.0.1:1"}, nil)
		if err != nil {
			t.Fatalf("%s: %v", driver, err)
		}
		if s.Name() != want {
			t.Fatalf("%s: name = %q", driver, s.Name())
		}
	}
	s, err := New(config.NotifyConfig{Driver: "webhook", WebhookURL: "http://x", Breaker: config.BreakerConfig{Enabled: true}}, nil)
	if err != nil {
		t.Fatalf("breaker: %v", err)
	}
	if _, ok := s.(*Breaker); !ok {
		t.Fatalf("expected breaker wrapper, got %T", s)
	}
	if _, err := New(config.NotifyConfig{Driver: "carrier-pigeon"}, nil); err == nil {
		t.Fatalf("unknown driver should fail")
	}
	if _, err := New(config.NotifyConfig{Driver: "kafka"}, nil); err == nil {
		t.Fatalf("kafka without brokers should fail")
	}
}

func TestLogSinkNeverFails(t *testing.T) {
	if err := NewLogSink(nil).Send(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("log sink: %v", err)
	}
}
