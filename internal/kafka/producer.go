package kafka

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-checkout-engine/internal/outbox"
)

const (
	HeaderEventType = "x-event-type"
	HeaderEventID   = "x-event-id"
)

// messageWriter is the subset of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes outbox records synchronously so the relay only marks a
// record sent after the broker acknowledged it.
type Producer struct {
	w messageWriter
}

func NewProducer(brokers []string) *Producer {
	return &Producer{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}}
}

// Publish implements outbox.Publisher. The record key is the order id, so
// events of one order stay ordered within a partition.
func (p *Producer) Publish(ctx context.Context, r outbox.Record) error {
	err := p.w.WriteMessages(ctx, toMessage(r))
	return errors.Wrapf(err, "publish %s to %s", r.EventID, r.Topic)
}

func toMessage(r outbox.Record) kafka.Message {
	return kafka.Message{
		Topic: r.Topic,
		Key:   []byte(r.Key),
		Value: r.Payload,
		Time:  r.CreatedAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(r.EventType)},
			{Key: HeaderEventID, Value: []byte(r.EventID)},
		},
	}
}

func (p *Producer) Close() error { return p.w.Close() }
