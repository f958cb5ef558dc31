package ingest

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"tickguard/internal/config"
)

const sourceKafka = "kafka"

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer feeds telemetry published to a Kafka topic into the same intake
// path as the HTTP gateway. The broker is a trusted transport, so no bearer
// check applies.
type Consumer struct {
	cfg       config.KafkaConfig
	intake    *Intake
	logger    *slog.Logger
	newReader func(config.KafkaConfig) messageReader
}

func NewConsumer(cfg config.KafkaConfig, intake *Intake, logger *slog.Logger) *Consumer {
	return &Consumer{cfg: cfg, intake: intake, logger: logger, newReader: newKafkaReader}
}

func newKafkaReader(cfg config.KafkaConfig) messageReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
}

// Serve reads until ctx is done. Read errors back off and retry.
func (c *Consumer) Serve(ctx context.Context) error {
	if c.logger != nil {
		c.logger.Info("kafka ingest enabled", "brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group_id", c.cfg.GroupID)
	}
	reader := c.newReader(c.cfg)
	defer reader.Close()
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if c.logger != nil {
				c.logger.Warn("kafka read error", "err", err)
			}
			if !BackoffSleep(ctx, 0) {
				return ctx.Err()
			}
			continue
		}
		counts, err := c.intake.AcceptBody(sourceKafka, m.Value, "")
		if err != nil && c.logger != nil {
			c.logger.Warn("kafka message dropped", "partition", m.Partition, "offset", m.Offset, "err", err)
			continue
		}
		if counts.Failed > 0 && c.logger != nil {
			c.logger.Debug("kafka message partially accepted", "offset", m.Offset, "accepted", counts.Accepted, "failed", counts.Failed)
		}
	}
}

func (c *Consumer) String() string { return "kafka-consumer" }
