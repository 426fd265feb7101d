package kafka

import (
	"context"

	"PPRealtime/tools/errs"

	"github.com/Shopify/sarama"
)

// Publisher sends keyed records through a sarama SyncProducer.
type Publisher struct {
	producer sarama.SyncProducer
}

func NewPublisher(c Config) (*Publisher, error) {
	p, err := sarama.NewSyncProducer(c.Brokers, BuildConfig(c))
	if err != nil {
		return nil, errs.ErrBrokerUnavailable.WrapMsg(err, "new sync producer", "brokers", c.Brokers)
	}
	return &Publisher{producer: p}, nil
}

// NewPublisherFromProducer wraps an existing producer, e.g. sarama/mocks.
func NewPublisherFromProducer(p sarama.SyncProducer) *Publisher {
	return &Publisher{producer: p}
}

func (p *Publisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return errs.ErrBrokerUnavailable.Wrap(err)
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return errs.ErrBrokerUnavailable.WrapMsg(err, "send", "topic", topic, "key", key)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
