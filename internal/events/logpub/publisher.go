// Package logpub is the event publisher used when no broker is configured:
// events are written to the structured log instead of Kafka.
package logpub

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/rental-returns-ledger/internal/interfaces"
)

type Publisher struct {
	log *zap.Logger
}

func NewPublisher(log *zap.Logger) *Publisher {
	return &Publisher{log: log}
}

func (p *Publisher) Publish(ctx context.Context, topic string, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.log.Info("event",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.ByteString("payload", data))
	return nil
}

var _ interfaces.EventPublisher = (*Publisher)(nil)
