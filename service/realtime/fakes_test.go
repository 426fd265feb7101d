package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"PPRealtime/module/event"
	"PPRealtime/service/broker"
)

type emitted struct {
	Target  string
	Name    string
	Payload any
}

type fakeEmitter struct {
	mu    sync.Mutex
	rooms []emitted
	users []emitted
	block chan struct{}

	delay    time.Duration
	inflight atomic.Int32
	overlap  atomic.Bool
}

func (e *fakeEmitter) ToRoom(roomID, name string, payload any) int {
	if e.inflight.Add(1) > 1 {
		e.overlap.Store(true)
	}
	defer e.inflight.Add(-1)
	if e.block != nil {
		<-e.block
	}
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rooms = append(e.rooms, emitted{roomID, name, payload})
	return 1
}

func (e *fakeEmitter) ToUser(userID, name string, payload any) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.users = append(e.users, emitted{userID, name, payload})
	return 1
}

func (e *fakeEmitter) roomEvents() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emitted(nil), e.rooms...)
}

func (e *fakeEmitter) userEvents() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emitted(nil), e.users...)
}

type fakeCache struct {
	mu      sync.Mutex
	cached  map[string][]event.Payload
	active  map[string]bool
	removed []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{cached: map[string][]event.Payload{}, active: map[string]bool{}}
}

func (c *fakeCache) CacheMessage(_ context.Context, roomID string, msg event.Payload) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached[roomID] = append(c.cached[roomID], msg)
	return true
}

func (c *fakeCache) SetActiveUser(_ context.Context, userID, channelID string, _ event.Payload) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[channelID+"/"+userID] = true
	return true
}

func (c *fakeCache) RemoveActiveUser(_ context.Context, userID, channelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, channelID+"/"+userID)
	c.removed = append(c.removed, channelID+"/"+userID)
	return true
}

func (c *fakeCache) isActive(channelID, userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[channelID+"/"+userID]
}

// recordingPublisher keeps every published record.
type recordingPublisher struct {
	mu    sync.Mutex
	sent  []published
	err   error
	block chan struct{}
}

type published struct {
	Topic, Key string
	Value      []byte
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{topic, key, value})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) records() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.sent...)
}

// stallingSubscriber never completes Subscribe for the listed topics.
type stallingSubscriber struct {
	inner   broker.Subscriber
	stall   map[string]bool
	failing map[string]error
}

func (s *stallingSubscriber) Subscribe(ctx context.Context, topic, group string) (broker.Subscription, error) {
	if s.stall[topic] {
		select {} // hung dial that ignores ctx
	}
	if err := s.failing[topic]; err != nil {
		return nil, err
	}
	return s.inner.Subscribe(ctx, topic, group)
}
