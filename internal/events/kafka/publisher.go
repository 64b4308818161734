package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	interfaces "github.com/sheikh-saqib/rental-returns-ledger/internal/interfaces"
)

// Publisher writes domain events to Kafka. Each event goes to
// "<prefix>.<topic>" keyed by the aggregate it belongs to, so all events of
// one rental or movie stay ordered within a partition.
type Publisher struct {
	writer *kafka.Writer
	prefix string
}

func NewPublisher(brokers []string, prefix string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		prefix: prefix,
	}
}

func (p *Publisher) TopicName(topic string) string {
	if p.prefix == "" {
		return topic
	}
	return p.prefix + "." + topic
}

func (p *Publisher) Publish(ctx context.Context, topic string, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.TopicName(topic),
		Key:   []byte(key),
		Value: data,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ interfaces.EventPublisher = (*Publisher)(nil)
