package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"PPRealtime/logger"
	"PPRealtime/module/event"
	"PPRealtime/service/broker"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/safe"

	"go.uber.org/zap"
)

// Dialer opens the broker connection used by the producer.
type Dialer func(ctx context.Context) (broker.Publisher, error)

type ProducerConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
}

func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{ConnectTimeout: 3 * time.Second, SendTimeout: 3 * time.Second}
}

type ProducerStats struct {
	Connected bool   `json:"connected"`
	Sent      uint64 `json:"sent"`
	Failed    uint64 `json:"failed"`
}

// Producer publishes domain events. It never surfaces broker trouble to callers: a
// publish that fails or exceeds the send timeout returns false and is logged.
type Producer struct {
	cfg  ProducerConfig
	dial Dialer

	mu  sync.RWMutex
	pub broker.Publisher

	sent   atomic.Uint64
	failed atomic.Uint64
}

func NewProducer(dial Dialer, cfg ProducerConfig) *Producer {
	d := DefaultProducerConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = d.ConnectTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = d.SendTimeout
	}
	return &Producer{cfg: cfg, dial: dial}
}

// Connect dials the broker within the connect timeout. On failure the producer stays
// degraded and every Publish returns false; the caller keeps running.
func (p *Producer) Connect(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	type result struct {
		pub broker.Publisher
		err error
	}
	ch := make(chan result, 1)
	safe.Go("producer-connect", func() {
		pub, err := p.dial(ctx)
		ch <- result{pub, err}
	})

	select {
	case r := <-ch:
		if r.err != nil {
			logger.Warn("[Producer] connect failed, running degraded", zap.Error(r.err))
			return false
		}
		p.mu.Lock()
		p.pub = r.pub
		p.mu.Unlock()
		logger.Info("[Producer] connected")
		return true
	case <-ctx.Done():
		logger.Warn("[Producer] connect timeout, running degraded",
			zap.Error(errs.ErrBrokerUnavailable.Wrap(ctx.Err())))
		go func() {
			if r := <-ch; r.pub != nil {
				_ = r.pub.Close()
			}
		}()
		return false
	}
}

func (p *Producer) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pub != nil
}

// Publish serializes {type,timestamp,data} and sends it under key.
func (p *Producer) Publish(ctx context.Context, topic, key string, t event.Type, payload event.Payload) bool {
	p.mu.RLock()
	pub := p.pub
	p.mu.RUnlock()
	if pub == nil {
		p.failed.Add(1)
		logger.Warn("[Producer] not connected, event skipped", zap.String("topic", topic), zap.String("type", string(t)))
		return false
	}

	b, err := event.NewEnvelope(t, key, payload).Encode()
	if err != nil {
		p.failed.Add(1)
		logger.Warn("[Producer] encode failed", zap.String("topic", topic), zap.Error(errs.ErrMalformedEnvelope.Wrap(err)))
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()
	ch := make(chan error, 1)
	safe.Go("producer-send", func() { ch <- pub.Publish(ctx, topic, key, b) })

	select {
	case err := <-ch:
		if err != nil {
			p.failed.Add(1)
			logger.Warn("[Producer] publish failed", zap.String("topic", topic), zap.String("key", key), zap.Error(err))
			return false
		}
		p.sent.Add(1)
		return true
	case <-ctx.Done():
		p.failed.Add(1)
		logger.Warn("[Producer] publish timeout", zap.String("topic", topic), zap.String("key", key),
			zap.Error(errs.ErrBrokerUnavailable.Wrap(ctx.Err())))
		return false
	}
}

// PublishMessage publishes a new chat message keyed by its room.
func (p *Producer) PublishMessage(ctx context.Context, msg event.Payload) bool {
	return p.publishKeyed(ctx, event.TopicMessages, msg.Routing().Room(), event.MessageCreated, msg)
}

// PublishUserActivity publishes a join, leave or typing activity keyed by user. The
// activity's own "type" field selects the event type.
func (p *Producer) PublishUserActivity(ctx context.Context, activity event.Payload) bool {
	r := activity.Routing()
	t := event.Type(r.Type)
	switch t {
	case event.UserJoined, event.UserLeft, event.TypingIndicator:
	default:
		logger.Warn("[Producer] unknown activity type", zap.String("type", r.Type))
		return false
	}
	return p.publishKeyed(ctx, event.TopicUserActivity, r.UserID, t, activity)
}

func (p *Producer) PublishReaction(ctx context.Context, reaction event.Payload) bool {
	return p.publishKeyed(ctx, event.TopicReactions, reaction.Routing().MessageID, event.ReactionAdded, reaction)
}

func (p *Producer) PublishNotification(ctx context.Context, n event.Payload) bool {
	return p.publishKeyed(ctx, event.TopicNotifications, n.Routing().RecipientID, event.NotificationDispatched, n)
}

// publishKeyed refuses events without a routing key; consumers could not route them.
func (p *Producer) publishKeyed(ctx context.Context, topic, key string, t event.Type, payload event.Payload) bool {
	if key == "" {
		p.failed.Add(1)
		logger.Warn("[Producer] missing routing key, event skipped", zap.String("topic", topic), zap.String("type", string(t)))
		return false
	}
	return p.Publish(ctx, topic, key, t, payload)
}

func (p *Producer) Stats() ProducerStats {
	return ProducerStats{Connected: p.Connected(), Sent: p.sent.Load(), Failed: p.failed.Load()}
}

// Close disconnects; later publishes return false.
func (p *Producer) Close() error {
	p.mu.Lock()
	pub := p.pub
	p.pub = nil
	p.mu.Unlock()
	if pub == nil {
		return nil
	}
	return pub.Close()
}
