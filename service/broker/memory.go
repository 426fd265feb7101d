package broker

import (
	"context"
	"hash/crc32"
	"sync"

	"PPRealtime/tools/errs"
)

const memoryPartitions = 4

// Memory is an in-process broker for single node runs and tests. Records are
// partitioned by key hash, each group sees only records published after it subscribed.
type Memory struct {
	mu     sync.RWMutex
	closed bool
	groups map[string]map[string]*memorySub // topic -> group -> sub
	offset map[string]int64
	buffer int
}

func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Memory{
		groups: make(map[string]map[string]*memorySub),
		offset: make(map[string]int64),
		buffer: buffer,
	}
}

func (m *Memory) Publish(ctx context.Context, topic, key string, value []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errs.ErrBrokerUnavailable.WrapMsg(nil, "memory broker closed")
	}
	off := m.offset[topic]
	m.offset[topic] = off + 1
	subs := make([]*memorySub, 0, len(m.groups[topic]))
	for _, s := range m.groups[topic] {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	part := int32(crc32.ChecksumIEEE([]byte(key)) % memoryPartitions)
	for _, s := range subs {
		rec := NewRecord(topic, part, off, []byte(key), append([]byte(nil), value...))
		select {
		case s.ch <- rec:
		case <-s.stop:
		case <-ctx.Done():
			return errs.ErrBrokerUnavailable.Wrap(ctx.Err())
		}
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, topic, group string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errs.ErrBrokerUnavailable.WrapMsg(nil, "memory broker closed")
	}
	if m.groups[topic] == nil {
		m.groups[topic] = make(map[string]*memorySub)
	}
	if s, ok := m.groups[topic][group]; ok {
		return s, nil
	}
	s := &memorySub{
		ch:   make(chan *Record, m.buffer),
		stop: make(chan struct{}),
	}
	s.detach = func() {
		m.mu.Lock()
		delete(m.groups[topic], group)
		m.mu.Unlock()
	}
	m.groups[topic][group] = s
	return s, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	subs := m.groups
	m.groups = make(map[string]map[string]*memorySub)
	m.mu.Unlock()
	for _, byGroup := range subs {
		for _, s := range byGroup {
			s.shutdown()
		}
	}
	return nil
}

type memorySub struct {
	ch     chan *Record
	stop   chan struct{}
	once   sync.Once
	detach func()
}

// Records is never closed; consumers stop on their own context.
func (s *memorySub) Records() <-chan *Record { return s.ch }

func (s *memorySub) Close() error {
	s.detach()
	s.shutdown()
	return nil
}

func (s *memorySub) shutdown() { s.once.Do(func() { close(s.stop) }) }
