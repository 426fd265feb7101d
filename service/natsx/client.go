package natsx

import (
	"strings"
	"time"

	"PPRealtime/logger"
	"PPRealtime/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type Config struct {
	Servers       []string      `mapstructure:"servers"`
	Name          string        `mapstructure:"name"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Stream        string        `mapstructure:"stream"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
	AckWait       time.Duration `mapstructure:"ack_wait"`
	MaxAge        time.Duration `mapstructure:"max_age"`
}

func DefaultConfig() Config {
	return Config{
		Servers:       []string{"nats://127.0.0.1:4222"},
		Name:          "pprealtime",
		Stream:        "PPRT_EVENTS",
		SubjectPrefix: "pprt",
		ReconnectWait: 500 * time.Millisecond,
		Timeout:       3 * time.Second,
		AckWait:       30 * time.Second,
		MaxAge:        24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.Stream == "" {
		c.Stream = d.Stream
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = d.SubjectPrefix
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = d.ReconnectWait
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.AckWait <= 0 {
		c.AckWait = d.AckWait
	}
	if c.MaxAge <= 0 {
		c.MaxAge = d.MaxAge
	}
	return c
}

// Subject maps a topic name onto the stream's subject space.
func (c Config) Subject(topic string) string {
	return strings.TrimSuffix(c.SubjectPrefix, ".") + "." + topic
}

// Client is a JetStream-backed broker: every topic is a subject of one stream and every
// consumer group is a durable push consumer.
type Client struct {
	cfg Config
	nc  *nats.Conn
	js  nats.JetStreamContext
}

func Connect(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Servers) == 0 {
		return nil, errs.ErrBrokerUnavailable.WrapMsg(nil, "nats servers missing")
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("[NATS] disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("[NATS] reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errs.ErrBrokerUnavailable.WrapMsg(err, "nats connect", "servers", cfg.Servers)
	}
	js, err := nc.JetStream(nats.MaxWait(cfg.Timeout))
	if err != nil {
		nc.Close()
		return nil, errs.ErrBrokerUnavailable.WrapMsg(err, "init jetstream")
	}
	c := &Client{cfg: cfg, nc: nc, js: js}
	if err := c.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) ensureStream() error {
	if _, err := c.js.StreamInfo(c.cfg.Stream); err == nil {
		return nil
	}
	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  []string{c.cfg.Subject(">")},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    c.cfg.MaxAge,
	})
	if err != nil && !isStreamExists(err) {
		return errs.ErrBrokerUnavailable.WrapMsg(err, "add stream", "stream", c.cfg.Stream)
	}
	logger.Info("[NATS] stream ready", zap.String("stream", c.cfg.Stream))
	return nil
}

func isStreamExists(err error) bool {
	return strings.Contains(err.Error(), "already in use") || strings.Contains(err.Error(), "already exists")
}

// Close drains subscriptions and the connection.
func (c *Client) Close() error {
	if c.nc == nil {
		return nil
	}
	return c.nc.Drain()
}
