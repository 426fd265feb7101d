package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"PPRealtime/logger"
	"PPRealtime/service/broker"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/safe"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// Subscriber opens one sarama consumer group per subscription.
type Subscriber struct {
	brokers  []string
	cfg      *sarama.Config
	newGroup func(brokers []string, group string, cfg *sarama.Config) (sarama.ConsumerGroup, error)
}

func NewSubscriber(c Config) *Subscriber {
	return &Subscriber{
		brokers:  c.Brokers,
		cfg:      BuildConfig(c),
		newGroup: sarama.NewConsumerGroup,
	}
}

func (s *Subscriber) Subscribe(ctx context.Context, topic, group string) (broker.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.ErrBrokerUnavailable.Wrap(err)
	}
	cg, err := s.newGroup(s.brokers, group, s.cfg)
	if err != nil {
		return nil, errs.ErrBrokerUnavailable.WrapMsg(err, "new consumer group", "group", group, "topic", topic)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		topic:   topic,
		group:   group,
		cg:      cg,
		cancel:  cancel,
		records: make(chan *broker.Record),
	}
	sub.wg.Add(1)
	safe.Go("kafka-consume-"+topic, func() {
		defer sub.wg.Done()
		sub.run(runCtx)
	})
	return sub, nil
}

type subscription struct {
	topic   string
	group   string
	cg      sarama.ConsumerGroup
	cancel  context.CancelFunc
	records chan *broker.Record
	once    sync.Once
	wg      sync.WaitGroup
}

func (s *subscription) Records() <-chan *broker.Record { return s.records }

func (s *subscription) run(ctx context.Context) {
	go func() {
		for err := range s.cg.Errors() {
			logger.Warn("[Kafka] consumer group error", zap.String("group", s.group), zap.Error(err))
		}
	}()

	h := &claimHandler{records: s.records}
	for {
		// Consume returns on every rebalance; loop until closed.
		if err := s.cg.Consume(ctx, []string{s.topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			logger.Warn("[Kafka] consume error", zap.String("topic", s.topic), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.cg.Close()
		s.wg.Wait()
	})
	return err
}

// claimHandler funnels every claimed partition into one records channel. A claim waits
// for the consumer to finish the record before marking its offset.
type claimHandler struct {
	records chan<- *broker.Record
}

func (h *claimHandler) Setup(sess sarama.ConsumerGroupSession) error {
	logger.Debug("[Kafka] session setup", zap.Any("claims", sess.Claims()), zap.Int32("generation", sess.GenerationID()))
	return nil
}

func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	done := sess.Context().Done()
	for {
		select {
		case <-done:
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			rec := broker.NewRecord(msg.Topic, msg.Partition, msg.Offset, msg.Key, msg.Value)
			select {
			case h.records <- rec:
			case <-done:
				return nil
			}
			select {
			case <-rec.Handled():
				sess.MarkMessage(msg, "")
			case <-done:
				// unmarked: redelivered after rebalance or restart
				return nil
			}
		}
	}
}
