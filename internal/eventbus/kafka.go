// Package eventbus provides best-effort, non-blocking publication of
// session progress events to Kafka, alongside (not replacing) the Session
// Engine's own in-process progress channel. Spec §9 domain stack.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/webpdtool/testcore/internal/session"
)

// ProgressTopic is the topic session progress events are published to.
const ProgressTopic = "testcore.session.progress"

// publishTimeout bounds a single best-effort publish attempt so a stalled
// broker never blocks the session loop for long (spec §9: progress
// reporting must never slow down execution).
const publishTimeout = 2 * time.Second

// KafkaProgressPublisher publishes ProgressEvents to Kafka. A failed publish
// is logged and discarded — it never surfaces to the session.
type KafkaProgressPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaProgressPublisher constructs a publisher writing to brokers.
// Async=true and RequiredAcks=0 keep Publish non-blocking at the caller.
func NewKafkaProgressPublisher(brokers []string) *KafkaProgressPublisher {
	return &KafkaProgressPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        ProgressTopic,
			Balancer:     &kafka.LeastBytes{},
			Async:        true,
			RequiredAcks: kafka.RequireNone,
		},
		logger: slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
}

// Publish satisfies session.ProgressPublisher. It never blocks the caller
// past publishTimeout and never returns an error.
func (k *KafkaProgressPublisher) Publish(event session.ProgressEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		k.logger.Warn("progress event marshal failed", "error", err)

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.SessionID),
		Value: payload,
		Time:  event.Timestamp,
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.logger.Warn("progress event publish failed", "session_id", event.SessionID, "error", err)
	}
}

// Close flushes and closes the underlying Kafka writer.
func (k *KafkaProgressPublisher) Close() error {
	return k.writer.Close()
}
