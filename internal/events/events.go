// Package events publishes commerce domain events.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	skafka "github.com/segmentio/kafka-go"
)

const (
	CustomerCreated = "customer.created"
	CustomerUpdated = "customer.updated"
	CustomerDeleted = "customer.deleted"
	AddressSaved    = "address.saved"
	AddressDeleted  = "address.deleted"
	OrderCreated    = "order.created"
	OrderUpdated    = "order.updated"
	OrderDeleted    = "order.deleted"
	LineItemSaved   = "line_item.saved"
	LineItemDeleted = "line_item.deleted"
)

// Event is the envelope written to the broker.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Subject    string    `json:"subject"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data,omitempty"`
}

// New stamps an event of type typ about subject.
func New(typ, subject string, data any) Event {
	return Event{ID: uuid.NewString(), Type: typ, Subject: subject, OccurredAt: time.Now().UTC(), Data: data}
}

// Publisher is used by services to emit events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Writer defines the subset of kafka.Writer we need.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Publish runs inline with commerce writes, so a partial batch is flushed quickly
// instead of waiting out kafka-go's one second default.
const (
	kafkaBatchTimeout = 10 * time.Millisecond
	kafkaWriteTimeout = 5 * time.Second
)

// KafkaPublisher writes events keyed by subject, so events of one aggregate stay ordered.
type KafkaPublisher struct {
	writer Writer
}

// NewKafkaPublisher writes to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &skafka.Writer{
		Addr:                   skafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &skafka.Hash{},
		BatchTimeout:           kafkaBatchTimeout,
		WriteTimeout:           kafkaWriteTimeout,
		RequiredAcks:           skafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w}
}

// NewKafkaPublisherWithWriter allows injecting a test writer.
func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, skafka.Message{
		Key:   []byte(e.Subject),
		Value: b,
		Headers: []skafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher logs events instead of shipping them; used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.InfoContext(ctx, "domain event", "event_id", e.ID, "type", e.Type, "subject", e.Subject)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
