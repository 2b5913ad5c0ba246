package auditstream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishAuditKeysByTargetUser(t *testing.T) {
	writer := &fakeWriter{}
	streamer := &KafkaStreamer{writer: writer, topic: "audit"}

	target := uuid.New()
	event := domain.AuditEvent{
		ID:           uuid.New(),
		AdminID:      uuid.New(),
		ActionType:   domain.AdminActionBalanceAdd,
		TargetUserID: &target,
		Details:      json.RawMessage(`{"amount":100}`),
		OccurredAt:   time.Now().UTC(),
	}
	if err := streamer.PublishAudit(context.Background(), event); err != nil {
		t.Fatalf("PublishAudit returned error: %v", err)
	}

	if len(writer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != target.String() {
		t.Fatalf("expected key %s, got %s", target, msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != domain.AdminActionBalanceAdd {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}

	var decoded domain.AuditEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if decoded.ID != event.ID {
		t.Fatalf("expected event id %s, got %s", event.ID, decoded.ID)
	}
}

func TestPublishAuditWithoutTargetUsesAdminKey(t *testing.T) {
	writer := &fakeWriter{}
	streamer := &KafkaStreamer{writer: writer, topic: "audit"}
	admin := uuid.New()

	if err := streamer.PublishAudit(context.Background(), domain.AuditEvent{AdminID: admin}); err != nil {
		t.Fatalf("PublishAudit returned error: %v", err)
	}
	if string(writer.messages[0].Key) != admin.String() {
		t.Fatalf("expected admin key, got %s", writer.messages[0].Key)
	}
}

func TestPublishAuditWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	streamer := &KafkaStreamer{writer: &fakeWriter{err: boom}, topic: "audit"}
	err := streamer.PublishAudit(context.Background(), domain.AuditEvent{AdminID: uuid.New()})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}
