package natsx

import (
	"context"

	"PPRealtime/tools/errs"

	"github.com/nats-io/nats.go"
)

// KeyHeader carries the record key; JetStream has no partition key of its own.
const KeyHeader = "Pprt-Key"

func (c *Client) Publish(ctx context.Context, topic, key string, value []byte) error {
	msg := nats.NewMsg(c.cfg.Subject(topic))
	msg.Data = value
	if key != "" {
		msg.Header.Set(KeyHeader, key)
	}
	if _, err := c.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return errs.ErrBrokerUnavailable.WrapMsg(err, "jetstream publish", "topic", topic, "key", key)
	}
	return nil
}
