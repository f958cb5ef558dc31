package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tickguard/internal/config"
	"tickguard/internal/model"
)

// Sink delivers rendered notifications to moderators.
type Sink interface {
	Name() string
	Send(ctx context.Context, n model.Notification) error
	Close() error
}

// New builds the sink selected by cfg.Driver, wrapped in a circuit breaker
// when the breaker is enabled.
func New(cfg config.NotifyConfig, logger *slog.Logger) (Sink, error) {
	var sink Sink
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "log":
		sink = NewLogSink(logger)
	case "none":
		return Discard{}, nil
	case "webhook":
		sink = NewWebhookSink(cfg.WebhookURL, cfg.Headers, cfg.Timeout)
	case "discord":
		sink = NewDiscordSink(cfg.WebhookURL, cfg.Timeout)
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
			return nil, fmt.Errorf("kafka sink requires brokers and topic")
		}
		sink = NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	default:
		return nil, fmt.Errorf("unsupported notify driver %q", cfg.Driver)
	}
	if cfg.Breaker.Enabled {
		sink = NewBreaker(sink, cfg.Breaker, logger)
	}
	return sink, nil
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Name() string                                    { return "none" }
func (Discard) Send(context.Context, model.Notification) error { return nil }
func (Discard) Close() error                                    { return nil }

// LogSink writes notifications to the service log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(ctx context.Context, n model.Notification) error {
	actions := make([]string, 0, len(n.Actions))
	for _, a := range n.Actions {
		actions = append(actions, a.ID)
	}
	attrs := []any{
		"key", n.Key,
		"kind", n.Kind,
		"severity", n.Severity,
		"title", n.Title,
		"finding_id", n.FindingID,
		"actions", actions,
	}
	for _, f := range n.Fields {
		attrs = append(attrs, "field."+fieldKey(f.Name), f.Value)
	}
	s.logger.InfoContext(ctx, "alert", attrs...)
	return nil
}

func (s *LogSink) Close() error { return nil }

func fieldKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
