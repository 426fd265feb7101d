package realtime

import (
	"context"
	"sort"
	"strings"
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

// Cache is the part of the cache layer the consumer writes to.
type Cache interface {
	CacheMessage(ctx context.Context, roomID string, msg event.Payload) bool
	SetActiveUser(ctx context.Context, userID, channelID string, data event.Payload) bool
	RemoveActiveUser(ctx context.Context, userID, channelID string) bool
}

// Emitter delivers a named client event.
type Emitter interface {
	ToRoom(roomID, name string, payload any) int
	ToUser(userID, name string, payload any) int
}

type ConsumerConfig struct {
	Topics           []string      `mapstructure:"topics"`
	SubscribeTimeout time.Duration `mapstructure:"subscribe_timeout"`
	StartTimeout     time.Duration `mapstructure:"start_timeout"`
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Topics:           event.Topics(),
		SubscribeTimeout: 3 * time.Second,
		StartTimeout:     5 * time.Second,
	}
}

type LoopStats struct {
	Topic     string `json:"topic"`
	Group     string `json:"group"`
	Running   bool   `json:"running"`
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
}

type loop struct {
	topic  string
	group  string
	sub    broker.Subscription
	cancel context.CancelFunc
	done   chan struct{}

	running   atomic.Bool
	processed atomic.Uint64
	dropped   atomic.Uint64
}

// ConsumerManager runs one consumer loop per topic, each in its own consumer group.
// Records of a loop are handled one at a time in arrival order and committed only
// after handling, so a crash replays them.
type ConsumerManager struct {
	cfg   ConsumerConfig
	sub   broker.Subscriber
	cache Cache
	emit  Emitter

	mu    sync.Mutex
	loops map[string]*loop
}

func NewConsumerManager(sub broker.Subscriber, cache Cache, emit Emitter, cfg ConsumerConfig) *ConsumerManager {
	d := DefaultConsumerConfig()
	if len(cfg.Topics) == 0 {
		cfg.Topics = d.Topics
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = d.SubscribeTimeout
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = d.StartTimeout
	}
	return &ConsumerManager{
		cfg:   cfg,
		sub:   sub,
		cache: cache,
		emit:  emit,
		loops: make(map[string]*loop),
	}
}

type subscribeResult struct {
	topic string
	sub   broker.Subscription
	err   error
}

// Start subscribes every topic concurrently and launches the loops that made it within
// the startup bound. Loops that fail or time out are skipped with a warning; the count
// of running loops is returned.
func (m *ConsumerManager) Start(ctx context.Context) int {
	startCtx, cancel := context.WithTimeout(ctx, m.cfg.StartTimeout)
	defer cancel()

	results := make(chan subscribeResult, len(m.cfg.Topics))
	for _, topic := range m.cfg.Topics {
		topic := topic
		safe.Go("subscribe-"+topic, func() {
			var r subscribeResult
			r.topic = topic
			defer func() { results <- r }()
			r = m.subscribe(startCtx, topic)
		})
	}

	started := 0
	for pending := len(m.cfg.Topics); pending > 0; pending-- {
		select {
		case r := <-results:
			if r.err != nil || r.sub == nil {
				logger.Warn("[Consumer] loop not started", zap.String("topic", r.topic), zap.Error(r.err))
				continue
			}
			m.launch(r.topic, r.sub)
			started++
		case <-startCtx.Done():
			logger.Warn("[Consumer] startup bound reached", zap.Int("started", started), zap.Int("skipped", pending))
			go drainLate(results, pending)
			return started
		}
	}
	logger.Info("[Consumer] loops started", zap.Int("count", started))
	return started
}

func drainLate(results <-chan subscribeResult, n int) {
	for i := 0; i < n; i++ {
		if r := <-results; r.sub != nil {
			_ = r.sub.Close()
		}
	}
}

func (m *ConsumerManager) subscribe(ctx context.Context, topic string) subscribeResult {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.SubscribeTimeout)
	defer cancel()

	ch := make(chan subscribeResult, 1)
	go func() {
		s, err := m.sub.Subscribe(ctx, topic, event.GroupFor(topic))
		ch <- subscribeResult{topic: topic, sub: s, err: err}
	}()
	select {
	case r := <-ch:
		return r
	case <-ctx.Done():
		go drainLate(ch, 1)
		return subscribeResult{topic: topic, err: errs.ErrBrokerUnavailable.WrapMsg(ctx.Err(), "subscribe timeout", "topic", topic)}
	}
}

func (m *ConsumerManager) launch(topic string, sub broker.Subscription) {
	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{
		topic:  topic,
		group:  event.GroupFor(topic),
		sub:    sub,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.mu.Lock()
	if old, ok := m.loops[topic]; ok {
		old.cancel()
		_ = old.sub.Close()
	}
	m.loops[topic] = l
	m.mu.Unlock()

	l.running.Store(true)
	safe.Go("consume-"+topic, func() {
		defer close(l.done)
		defer l.running.Store(false)
		m.run(ctx, l)
	})
}

func (m *ConsumerManager) run(ctx context.Context, l *loop) {
	records := l.sub.Records()
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-records:
			if rec == nil {
				continue
			}
			// the in-flight record finishes even if Stop is called meanwhile
			m.process(context.WithoutCancel(ctx), l, rec)
		}
	}
}

func (m *ConsumerManager) process(ctx context.Context, l *loop, rec *broker.Record) {
	defer rec.Done()
	defer safe.Recover("process-" + l.topic)

	env, err := event.Decode(rec.Key, rec.Value)
	if err != nil {
		l.dropped.Add(1)
		logger.Warn("[Consumer] record discarded", zap.String("topic", rec.Topic),
			zap.Int32("partition", rec.Partition), zap.Int64("offset", rec.Offset), zap.Error(err))
		return
	}
	if m.Dispatch(ctx, env) {
		l.processed.Add(1)
	} else {
		l.dropped.Add(1)
	}
}

// Dispatch applies one decoded event: cache side effects first, then fanout. It returns
// false when the event carries no routable target.
func (m *ConsumerManager) Dispatch(ctx context.Context, env *event.Envelope) bool {
	r := env.Data.Routing()
	room := r.Room()

	switch env.Type {
	case event.MessageCreated:
		if room == "" {
			return m.unroutable(env)
		}
		m.cache.CacheMessage(ctx, room, env.Data)
		m.emit.ToRoom(room, event.ClientNewMessage, env.Data)
	case event.UserJoined:
		if room == "" {
			return m.unroutable(env)
		}
		if r.UserID != "" {
			m.cache.SetActiveUser(ctx, r.UserID, room, env.Data)
		}
		m.emit.ToRoom(room, event.ClientUserJoined, env.Data)
	case event.UserLeft:
		if room == "" {
			return m.unroutable(env)
		}
		if r.UserID != "" {
			m.cache.RemoveActiveUser(ctx, r.UserID, room)
		}
		m.emit.ToRoom(room, event.ClientUserLeft, env.Data)
	case event.TypingIndicator:
		if room == "" {
			return m.unroutable(env)
		}
		m.emit.ToRoom(room, event.ClientUserTyping, env.Data)
	case event.ReactionAdded:
		if room == "" {
			return m.unroutable(env)
		}
		m.emit.ToRoom(room, event.ClientReactionAdded, env.Data)
	case event.NotificationDispatched:
		if r.RecipientID == "" {
			return m.unroutable(env)
		}
		m.emit.ToUser(r.RecipientID, event.ClientNotification, env.Data)
	default:
		return m.unroutable(env)
	}
	return true
}

func (m *ConsumerManager) unroutable(env *event.Envelope) bool {
	logger.Warn("[Consumer] event without target dropped", zap.String("type", string(env.Type)), zap.String("key", env.Key))
	return false
}

// Stop cancels every loop and waits up to grace for in-flight records, then closes the
// subscriptions regardless. Loops still busy at the deadline yield ErrShutdownTimeout.
func (m *ConsumerManager) Stop(grace time.Duration) error {
	m.mu.Lock()
	loops := make([]*loop, 0, len(m.loops))
	for _, l := range m.loops {
		loops = append(loops, l)
	}
	m.loops = make(map[string]*loop)
	m.mu.Unlock()

	for _, l := range loops {
		l.cancel()
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	expired := false
	var stuck []string
	for _, l := range loops {
		if expired {
			select {
			case <-l.done:
			default:
				stuck = append(stuck, l.topic)
			}
			continue
		}
		select {
		case <-l.done:
		case <-timer.C:
			expired = true
			stuck = append(stuck, l.topic)
		}
	}

	for _, l := range loops {
		if err := l.sub.Close(); err != nil {
			logger.Warn("[Consumer] close subscription", zap.String("topic", l.topic), zap.Error(err))
		}
	}
	if len(stuck) > 0 {
		sort.Strings(stuck)
		err := errs.ErrShutdownTimeout.WrapMsg(nil, "consumer loops", "topics", strings.Join(stuck, ","))
		logger.Warn("[Consumer] forced shutdown", zap.Error(err))
		return err
	}
	logger.Info("[Consumer] stopped", zap.Int("loops", len(loops)))
	return nil
}

func (m *ConsumerManager) Stats() []LoopStats {
	m.mu.Lock()
	out := make([]LoopStats, 0, len(m.loops))
	for _, l := range m.loops {
		out = append(out, LoopStats{
			Topic:     l.topic,
			Group:     l.group,
			Running:   l.running.Load(),
			Processed: l.processed.Load(),
			Dropped:   l.dropped.Load(),
		})
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}
