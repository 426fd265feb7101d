// Package config loads the node configuration: in-code defaults, an optional YAML
// file, an optional Nacos document, then PPRT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"PPRealtime/service/chat"
	"PPRealtime/service/kafka"
	"PPRealtime/service/nacos"
	"PPRealtime/service/natsx"
	"PPRealtime/service/realtime"
	"PPRealtime/service/storage"
	"PPRealtime/service/storage/redis"

	"github.com/spf13/viper"
)

const (
	BrokerKafka  = "kafka"
	BrokerNATS   = "nats"
	BrokerMemory = "memory"

	EnvPrefix = "PPRT"
)

type Auth struct {
	Secret   string        `mapstructure:"secret"`
	Alg      string        `mapstructure:"alg"`
	Issuer   string        `mapstructure:"issuer"`
	TTL      time.Duration `mapstructure:"ttl"`
	Required bool          `mapstructure:"required"` // reject handshakes without a valid token
}

type AppConfig struct {
	NodeID        int64         `mapstructure:"node_id"`
	HTTPAddr      string        `mapstructure:"http_addr"`
	GrpcAddr      string        `mapstructure:"grpc_addr"`
	LogLevel      string        `mapstructure:"log_level"`
	Broker        string        `mapstructure:"broker"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
	PresenceSweep time.Duration `mapstructure:"presence_sweep"`
	AllowOrigins  []string      `mapstructure:"allow_origins"`

	Kafka    kafka.Config            `mapstructure:"kafka"`
	NATS     natsx.Config            `mapstructure:"nats"`
	Redis    redis.Config            `mapstructure:"redis"`
	Cache    storage.Options         `mapstructure:"cache"`
	Producer realtime.ProducerConfig `mapstructure:"producer"`
	Consumer realtime.ConsumerConfig `mapstructure:"consumer"`
	WS       chat.WSConfig           `mapstructure:"ws"`
	Auth     Auth                    `mapstructure:"auth"`
	Nacos    nacos.Config            `mapstructure:"nacos"`
}

func Default() AppConfig {
	return AppConfig{
		NodeID:        1,
		HTTPAddr:      ":8080",
		GrpcAddr:      ":50052",
		LogLevel:      "info",
		Broker:        BrokerKafka,
		ShutdownGrace: 5 * time.Second,
		PresenceSweep: time.Minute,
		Kafka:         kafka.DefaultConfig(),
		NATS:          natsx.DefaultConfig(),
		Redis:         redis.DefaultConfig(),
		Cache:         storage.DefaultOptions(),
		Producer:      realtime.DefaultProducerConfig(),
		Consumer:      realtime.DefaultConsumerConfig(),
		WS:            chat.DefaultWSConfig(),
		Auth:          Auth{Alg: "HS256", Issuer: "pprealtime", TTL: 2 * time.Hour},
		Nacos:         nacos.DefaultConfig(),
	}
}

// RemoteFetcher returns the YAML document stored in Nacos.
type RemoteFetcher func(c nacos.Config) (string, error)

// FetchNacos reads c.DataID once through the Nacos SDK.
func FetchNacos(c nacos.Config) (string, error) {
	cli, err := nacos.NewConfigClient(c)
	if err != nil {
		return "", err
	}
	defer cli.CloseClient()
	return nacos.NewWatcher(cli, c).Fetch()
}

// Load reads path (optional, may be empty) and PPRT_* overrides. When nacos.addr is
// set the remote document is merged over the file.
func Load(path string) (*AppConfig, error) {
	return LoadWithRemote(path, FetchNacos)
}

func LoadWithRemote(path string, fetch RemoteFetcher) (*AppConfig, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	// UnmarshalKey would skip defaults under the section, so decode everything first.
	var pre AppConfig
	if err := v.Unmarshal(&pre); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if nc := pre.Nacos; nc.Enabled() && fetch != nil {
		content, err := fetch(nc)
		if err != nil {
			return nil, fmt.Errorf("config: nacos %s/%s: %w", nc.Group, nc.DataID, err)
		}
		if err := Merge(v, content); err != nil {
			return nil, err
		}
	}
	return decode(v)
}

// Merge applies a YAML document over v. Environment variables still win.
func Merge(v *viper.Viper, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	v.SetConfigType("yaml")
	if err := v.MergeConfig(strings.NewReader(content)); err != nil {
		return fmt.Errorf("config: merge remote: %w", err)
	}
	return nil
}

// Parse decodes a standalone YAML document over the defaults, for hot reload.
func Parse(content string) (*AppConfig, error) {
	v := newViper()
	if err := Merge(v, content); err != nil {
		return nil, err
	}
	return decode(v)
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: http_addr must be set")
	}
	switch c.Broker {
	case BrokerKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("config: kafka.brokers must be set")
		}
	case BrokerNATS:
		if len(c.NATS.Servers) == 0 {
			return errors.New("config: nats.servers must be set")
		}
	case BrokerMemory:
	default:
		return fmt.Errorf("config: unknown broker %q (kafka, nats, memory)", c.Broker)
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return errors.New("config: node_id must be between 0 and 1023")
	}
	if c.Auth.Required && c.Auth.Secret == "" {
		return errors.New("config: auth.secret must be set when auth.required is true")
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())
	return v
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d AppConfig) {
	v.SetDefault("node_id", d.NodeID)
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("grpc_addr", d.GrpcAddr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("broker", d.Broker)
	v.SetDefault("shutdown_grace", d.ShutdownGrace)
	v.SetDefault("presence_sweep", d.PresenceSweep)
	v.SetDefault("allow_origins", d.AllowOrigins)

	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.client_id", d.Kafka.ClientID)
	v.SetDefault("kafka.version", d.Kafka.Version)
	v.SetDefault("kafka.retries", d.Kafka.Retries)
	v.SetDefault("kafka.retry_backoff", d.Kafka.RetryBackoff)
	v.SetDefault("kafka.timeout", d.Kafka.Timeout)
	v.SetDefault("kafka.compression", d.Kafka.Compression)
	v.SetDefault("kafka.partitions", d.Kafka.Partitions)
	v.SetDefault("kafka.replication_factor", d.Kafka.ReplicationFactor)
	v.SetDefault("kafka.ensure_topics", d.Kafka.EnsureTopics)

	v.SetDefault("nats.servers", d.NATS.Servers)
	v.SetDefault("nats.name", d.NATS.Name)
	v.SetDefault("nats.user", d.NATS.User)
	v.SetDefault("nats.password", d.NATS.Password)
	v.SetDefault("nats.stream", d.NATS.Stream)
	v.SetDefault("nats.subject_prefix", d.NATS.SubjectPrefix)
	v.SetDefault("nats.reconnect_wait", d.NATS.ReconnectWait)
	v.SetDefault("nats.timeout", d.NATS.Timeout)
	v.SetDefault("nats.ack_wait", d.NATS.AckWait)
	v.SetDefault("nats.max_age", d.NATS.MaxAge)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.dial_timeout", d.Redis.DialTimeout)
	v.SetDefault("redis.op_timeout", d.Redis.OpTimeout)

	v.SetDefault("cache.op_timeout", d.Cache.OpTimeout)
	v.SetDefault("cache.message_ttl", d.Cache.MessageTTL)
	v.SetDefault("cache.presence_ttl", d.Cache.PresenceTTL)

	v.SetDefault("producer.connect_timeout", d.Producer.ConnectTimeout)
	v.SetDefault("producer.send_timeout", d.Producer.SendTimeout)

	v.SetDefault("consumer.topics", d.Consumer.Topics)
	v.SetDefault("consumer.subscribe_timeout", d.Consumer.SubscribeTimeout)
	v.SetDefault("consumer.start_timeout", d.Consumer.StartTimeout)

	v.SetDefault("ws.queue_size", d.WS.QueueSize)
	v.SetDefault("ws.max_drops", d.WS.MaxDrops)
	v.SetDefault("ws.ping_interval", d.WS.PingInterval)
	v.SetDefault("ws.pong_wait", d.WS.PongWait)
	v.SetDefault("ws.write_wait", d.WS.WriteWait)
	v.SetDefault("ws.read_limit", d.WS.ReadLimit)
	v.SetDefault("ws.presence_refresh", d.WS.PresenceRefresh)

	v.SetDefault("auth.secret", d.Auth.Secret)
	v.SetDefault("auth.alg", d.Auth.Alg)
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("auth.ttl", d.Auth.TTL)
	v.SetDefault("auth.required", d.Auth.Required)

	v.SetDefault("nacos.addr", d.Nacos.Addr)
	v.SetDefault("nacos.port", d.Nacos.Port)
	v.SetDefault("nacos.namespace", d.Nacos.Namespace)
	v.SetDefault("nacos.group", d.Nacos.Group)
	v.SetDefault("nacos.data_id", d.Nacos.DataID)
	v.SetDefault("nacos.username", d.Nacos.Username)
	v.SetDefault("nacos.password", d.Nacos.Password)
	v.SetDefault("nacos.timeout_ms", d.Nacos.TimeoutMs)
	v.SetDefault("nacos.cache_dir", d.Nacos.CacheDir)
	v.SetDefault("nacos.log_dir", d.Nacos.LogDir)
	v.SetDefault("nacos.log_level", d.Nacos.LogLevel)
}
