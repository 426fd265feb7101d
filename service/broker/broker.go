package broker

import (
	"context"
	"sync"
)

// Record is one message read from a topic. The consumer calls Done once the record
// has been handled; only then does the subscription commit its offset.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte

	once sync.Once
	done chan struct{}
}

func NewRecord(topic string, partition int32, offset int64, key, value []byte) *Record {
	return &Record{
		Topic:     topic,
		Partition: partition,
		Offset:    offset,
		Key:       key,
		Value:     value,
		done:      make(chan struct{}),
	}
}

func (r *Record) Done() { r.once.Do(func() { close(r.done) }) }

// Handled is closed after Done.
func (r *Record) Handled() <-chan struct{} { return r.done }

// Publisher writes keyed messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

// Subscription streams the records of one topic for one consumer group, starting at the
// current end of the topic.
type Subscription interface {
	Records() <-chan *Record
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, topic, group string) (Subscription, error)
}

// Broker is implemented by every transport (kafka, nats, memory).
type Broker interface {
	Publisher
	Subscriber
}
