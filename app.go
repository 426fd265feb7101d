package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"PPRealtime/global/config"
	"PPRealtime/logger"
	mid "PPRealtime/middleware"
	midsec "PPRealtime/middleware/security"
	"PPRealtime/module/message"
	"PPRealtime/module/stats"
	"PPRealtime/module/user"
	"PPRealtime/service/broker"
	"PPRealtime/service/chat"
	"PPRealtime/service/health"
	"PPRealtime/service/kafka"
	"PPRealtime/service/nacos"
	"PPRealtime/service/realtime"
	"PPRealtime/service/storage"
	"PPRealtime/service/storage/redis"
	"PPRealtime/tools/safe"
	"PPRealtime/tools/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthEvery = 10 * time.Second

type app struct {
	cfg *config.AppConfig

	cache     *storage.Cache
	link      link
	producer  *realtime.Producer
	consumers *realtime.ConsumerManager
	hub       *chat.Hub
	health    *health.Server
	http      *http.Server
	watcher   *nacos.Watcher
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a := &app{cfg: cfg}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unreachable, cache degraded", zap.Error(err))
	}
	a.cache = storage.New(rdb, cfg.Cache)

	switch cfg.Broker {
	case config.BrokerKafka:
		if cfg.Kafka.EnsureTopics {
			topics := cfg.Consumer.Topics
			safe.Go("kafka-ensure-topics", func() {
				if err := kafka.EnsureTopicsFor(cfg.Kafka, topics); err != nil {
					logger.Warn("ensure topics failed", zap.Error(err))
				}
			})
		}
		a.link = newKafkaLink(cfg.Kafka)
	case config.BrokerNATS:
		a.link = &natsLink{cfg: cfg.NATS}
	default:
		a.link = memoryLink{broker.NewMemory(0)}
	}

	a.producer = realtime.NewProducer(a.link.dial, cfg.Producer)
	a.hub = chat.NewHub()
	registry := chat.NewRegistry()
	fanout := chat.NewFanout(a.hub)
	a.consumers = realtime.NewConsumerManager(a.link, a.cache, fanout, cfg.Consumer)

	jwtOpts := security.Options{
		Secret: []byte(cfg.Auth.Secret),
		Alg:    cfg.Auth.Alg,
		TTL:    cfg.Auth.TTL,
		Issuer: cfg.Auth.Issuer,
	}
	auth := midsec.DefaultOptions()
	wsOpts := []chat.Option{chat.WithPresence(a.cache)}
	if cfg.Auth.Secret != "" {
		v := security.NewVerifier(jwtOpts)
		auth.Verifier = v
		if cfg.Auth.Required {
			wsOpts = append(wsOpts, chat.WithVerifier(v))
		}
	}
	ws := chat.NewWSServer(cfg.WS, a.hub, registry, fanout, wsOpts...)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	mid.Manager().Add(mid.Origin(cfg.AllowOrigins))
	r.Use(mid.Recovery(), mid.AccessLog(), mid.Manager().Use())

	r.GET("/ws", ws.HandleWS)
	stats.New(a.cache, a.hub, registry, a.consumers, a.producer).Register(r, auth)
	mid.POST(r, "/realtime/publish/:topic", message.HandlerPublish(a.producer),
		mid.RouteOpt{IsAuth: cfg.Auth.Required, Auth: auth})
	if cfg.Auth.Secret != "" && !cfg.Auth.Required {
		mid.POST(r, "/login", user.HandlerLogin(jwtOpts), mid.RouteOpt{})
	}
	a.http = &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	a.health = health.New()
	return a, nil
}

// run starts every component, blocks until ctx is done, then shuts down in order:
// HTTP, consumer loops, producer, sockets, cache.
func (a *app) run(ctx context.Context) error {
	if !a.producer.Connect(ctx) {
		logger.Warn("producer degraded, publishes will be dropped")
	}
	started := a.consumers.Start(ctx)
	logger.Info("consumer loops started", zap.Int("running", started), zap.Int("wanted", len(a.cfg.Consumer.Topics)))

	safe.Go("presence-sweeper", func() { a.cache.RunPresenceSweeper(ctx, a.cfg.PresenceSweep) })

	if a.cfg.GrpcAddr != "" {
		if _, err := a.health.Start(a.cfg.GrpcAddr); err != nil {
			logger.Warn("grpc health disabled", zap.Error(err))
		} else {
			safe.Go("health-report", func() { a.reportHealth(ctx) })
		}
	}
	a.watchRemote()

	serveErr := make(chan error, 1)
	safe.Go("http", func() {
		logger.Info("[HTTP] listening", zap.String("addr", a.cfg.HTTPAddr))
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	})

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		logger.Error("[HTTP] server failed", zap.Error(runErr))
	}
	a.shutdown()
	return runErr
}

func (a *app) shutdown() {
	grace := a.cfg.ShutdownGrace
	logger.Info("shutting down", zap.Duration("grace", grace))

	hctx, cancel := context.WithTimeout(context.Background(), grace)
	if err := a.http.Shutdown(hctx); err != nil {
		logger.Warn("[HTTP] shutdown", zap.Error(err))
	}
	cancel()

	if err := a.consumers.Stop(grace); err != nil {
		logger.Warn("consumer loops did not stop in time", zap.Error(err))
	}
	if err := a.producer.Close(); err != nil {
		logger.Warn("producer close", zap.Error(err))
	}
	if err := a.link.close(); err != nil {
		logger.Warn("broker close", zap.Error(err))
	}
	a.hub.CloseAll()
	a.health.Stop()
	if a.watcher != nil {
		_ = a.watcher.Stop()
	}
	if err := a.cache.Close(); err != nil {
		logger.Warn("cache close", zap.Error(err))
	}
	logger.Info("bye")
}

func (a *app) reportHealth(ctx context.Context) {
	t := time.NewTicker(healthEvery)
	defer t.Stop()
	for {
		running := 0
		for _, l := range a.consumers.Stats() {
			if l.Running {
				running++
			}
		}
		a.health.Set(health.ServiceProducer, a.producer.Connected())
		a.health.Set(health.ServiceConsumer, running > 0)
		a.health.Set(health.ServiceCache, a.cache.Status(ctx).Status == "connected")

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// watchRemote follows the Nacos document and applies the log level live.
// Other fields need a restart.
func (a *app) watchRemote() {
	if !a.cfg.Nacos.Enabled() {
		return
	}
	cli, err := nacos.NewConfigClient(a.cfg.Nacos)
	if err != nil {
		logger.Warn("nacos watch disabled", zap.Error(err))
		return
	}
	w := nacos.NewWatcher(cli, a.cfg.Nacos)
	err = w.Watch(func(content string) {
		next, err := config.Parse(content)
		if err != nil {
			logger.Warn("nacos update rejected", zap.Error(err))
			return
		}
		logger.SetLevel(next.LogLevel)
		logger.Info("log level updated", zap.String("level", logger.Level()))
	})
	if err != nil {
		logger.Warn("nacos listen failed", zap.Error(err))
		return
	}
	a.watcher = w
}
