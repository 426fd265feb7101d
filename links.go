package main

import (
	"context"
	"sync"

	"PPRealtime/service/broker"
	"PPRealtime/service/kafka"
	"PPRealtime/service/natsx"
)

// link is the broker backend selected by config.
type link interface {
	broker.Subscriber
	dial(ctx context.Context) (broker.Publisher, error)
	close() error
}

type kafkaLink struct {
	cfg kafka.Config
	*kafka.Subscriber
}

func newKafkaLink(cfg kafka.Config) *kafkaLink {
	return &kafkaLink{cfg: cfg, Subscriber: kafka.NewSubscriber(cfg)}
}

func (l *kafkaLink) dial(context.Context) (broker.Publisher, error) { return kafka.NewPublisher(l.cfg) }
func (l *kafkaLink) close() error                                   { return nil }

// natsLink shares one JetStream connection between producer and consumers and
// connects on first use, so a NATS outage only degrades.
type natsLink struct {
	cfg natsx.Config

	mu sync.Mutex
	c  *natsx.Client
}

func (l *natsLink) client() (*natsx.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.c != nil {
		return l.c, nil
	}
	c, err := natsx.Connect(l.cfg)
	if err != nil {
		return nil, err
	}
	l.c = c
	return c, nil
}

func (l *natsLink) dial(context.Context) (broker.Publisher, error) {
	c, err := l.client()
	if err != nil {
		return nil, err
	}
	return sharedPublisher{c}, nil
}

func (l *natsLink) Subscribe(ctx context.Context, topic, group string) (broker.Subscription, error) {
	c, err := l.client()
	if err != nil {
		return nil, err
	}
	return c.Subscribe(ctx, topic, group)
}

func (l *natsLink) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.c == nil {
		return nil
	}
	return l.c.Close()
}

type memoryLink struct {
	*broker.Memory
}

func (l memoryLink) dial(context.Context) (broker.Publisher, error) { return sharedPublisher{l.Memory}, nil }
func (l memoryLink) close() error                                   { return l.Memory.Close() }

// sharedPublisher leaves the connection open on producer Close; the link owns it.
type sharedPublisher struct {
	pub interface {
		Publish(ctx context.Context, topic, key string, value []byte) error
	}
}

func (p sharedPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	return p.pub.Publish(ctx, topic, key, value)
}

func (sharedPublisher) Close() error { return nil }
