/**
 * @description
 * This package streams admin audit events to Kafka so downstream compliance
 * tooling can follow every admin mutation without polling the database.
 *
 * @dependencies
 * - github.com/segmentio/kafka-go: The Kafka client library.
 *
 * @notes
 * - The admin_logs row is the source of truth. Streaming is best-effort and a
 *   failed write never rolls back the mutation that produced it.
 */
package auditstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/segmentio/kafka-go"
)

// Streamer publishes audit events.
type Streamer interface {
	PublishAudit(ctx context.Context, event domain.AuditEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaStreamer writes audit events to a single topic keyed by target user.
type KafkaStreamer struct {
	writer messageWriter
	topic  string
}

// NewKafkaStreamer creates a streamer for the given brokers and topic.
func NewKafkaStreamer(brokers []string, topic string) *KafkaStreamer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            3,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaStreamer{writer: writer, topic: topic}
}

// PublishAudit writes one audit event. Events for the same target share a partition.
func (s *KafkaStreamer) PublishAudit(ctx context.Context, event domain.AuditEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	key := event.AdminID.String()
	if event.TargetUserID != nil {
		key = event.TargetUserID.String()
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "action_type", Value: []byte(event.ActionType)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write audit event to %s: %w", s.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaStreamer) Close() error {
	return s.writer.Close()
}

// NoopStreamer is used when no brokers are configured.
type NoopStreamer struct{}

func (NoopStreamer) PublishAudit(ctx context.Context, event domain.AuditEvent) error {
	log.Printf("level=debug component=auditstream mode=noop msg=\"audit stream disabled\" action=%s", event.ActionType)
	return nil
}

func (NoopStreamer) Close() error { return nil }
