package natsx

import (
	"context"
	"strings"
	"sync"

	"PPRealtime/logger"
	"PPRealtime/service/broker"
	"PPRealtime/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subscribe creates (or resumes) a durable push consumer named after the group. New
// durables start at the end of the stream. The callback blocks until the record is
// handled, then acks, so delivery stays sequential with one ack pending.
func (c *Client) Subscribe(ctx context.Context, topic, group string) (broker.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.ErrBrokerUnavailable.Wrap(err)
	}
	s := &subscription{
		records: make(chan *broker.Record),
		stop:    make(chan struct{}),
	}
	cb := func(m *nats.Msg) {
		var part int32
		var off int64
		if md, err := m.Metadata(); err == nil {
			off = int64(md.Sequence.Stream)
		}
		rec := broker.NewRecord(topic, part, off, []byte(m.Header.Get(KeyHeader)), append([]byte(nil), m.Data...))
		select {
		case s.records <- rec:
		case <-s.stop:
			return
		}
		select {
		case <-rec.Handled():
			if err := m.Ack(); err != nil {
				logger.Warn("[NATS] ack failed", zap.String("topic", topic), zap.Error(err))
			}
		case <-s.stop:
			// unacked: redelivered after AckWait
		}
	}
	sub, err := c.js.Subscribe(c.cfg.Subject(topic), cb,
		nats.Durable(durableName(group)),
		nats.DeliverNew(),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(c.cfg.AckWait),
		nats.MaxAckPending(1),
	)
	if err != nil {
		return nil, errs.ErrBrokerUnavailable.WrapMsg(err, "jetstream subscribe", "topic", topic, "group", group)
	}
	s.sub = sub
	return s, nil
}

// durable names may not contain dots or whitespace
func durableName(group string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(group)
}

type subscription struct {
	sub     *nats.Subscription
	records chan *broker.Record
	stop    chan struct{}
	once    sync.Once
}

func (s *subscription) Records() <-chan *broker.Record { return s.records }

// Close stops delivery but keeps the durable so the group resumes from its ack floor.
func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.sub.Drain()
	})
	return err
}
