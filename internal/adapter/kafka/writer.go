package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-data-seeder/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer the topic needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Topic publishes records of one entity to a Kafka topic, keyed by the
// record's unique key. On a compacted topic the latest message per key wins,
// which gives the same end state as an upsert.
// It implements pipeline.BatchLoader.
type Topic[T domain.Keyed] struct {
	writer messageWriter
	entity string
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewTopic creates a producer for topic. Messages for the same key always
// land on the same partition.
func NewTopic[T domain.Keyed](brokers []string, topic, entity string, clock clockwork.Clock, logger *slog.Logger) *Topic[T] {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Topic[T]{writer: w, entity: entity, clock: clock, logger: logger}
}

// LoadBatch serializes and publishes records in a single WriteMessages call.
// A broker acknowledgement is reported as OutcomeInserted.
func (t *Topic[T]) LoadBatch(ctx context.Context, records []T) (domain.Outcome, error) {
	if len(records) == 0 {
		return domain.OutcomeInserted, nil
	}
	seededAt := t.clock.Now().UTC()
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i], t.entity, seededAt)
		if err != nil {
			return 0, err
		}
		msgs[i] = msg
	}
	if err := t.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, &domain.TransportError{Err: err}
	}
	return domain.OutcomeInserted, nil
}

func (t *Topic[T]) Close() error {
	return t.writer.Close()
}

func serializeToMessage[T domain.Keyed](rec T, entity string, seededAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s record: %w", entity, err)
	}
	return kafkago.Message{
		Key:   []byte(rec.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "entity", Value: []byte(entity)},
			{Key: "seeded_at", Value: []byte(seededAt.Format(time.RFC3339))},
		},
	}, nil
}
