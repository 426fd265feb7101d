package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

type Config struct {
	Brokers           []string      `mapstructure:"brokers"`
	ClientID          string        `mapstructure:"client_id"`
	Version           string        `mapstructure:"version"`
	Retries           int           `mapstructure:"retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	Timeout           time.Duration `mapstructure:"timeout"` // dial/read/write
	Compression       string        `mapstructure:"compression"`
	Partitions        int32         `mapstructure:"partitions"`
	ReplicationFactor int16         `mapstructure:"replication_factor"`
	EnsureTopics      bool          `mapstructure:"ensure_topics"`
}

func DefaultConfig() Config {
	return Config{
		Brokers:           []string{"127.0.0.1:9092"},
		ClientID:          "pprealtime",
		Version:           "2.1.0",
		Retries:           3,
		RetryBackoff:      100 * time.Millisecond,
		Timeout:           3 * time.Second,
		Compression:       "none",
		Partitions:        3,
		ReplicationFactor: 1,
		EnsureTopics:      true,
	}
}

// BuildConfig returns the sarama config shared by producer, consumer groups and admin.
// Retries stay bounded so a dead cluster surfaces quickly instead of blocking callers.
func BuildConfig(c Config) *sarama.Config {
	cfg := sarama.NewConfig()
	if c.ClientID != "" {
		cfg.ClientID = c.ClientID
	}
	if v, err := sarama.ParseKafkaVersion(c.Version); err == nil {
		cfg.Version = v
	} else {
		cfg.Version = sarama.V2_1_0_0
	}

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	if c.Retries <= 0 {
		c.Retries = 1
	}
	cfg.Producer.Retry.Max = c.Retries
	if c.RetryBackoff > 0 {
		cfg.Producer.Retry.Backoff = c.RetryBackoff
		cfg.Metadata.Retry.Backoff = c.RetryBackoff
	}
	cfg.Metadata.Retry.Max = c.Retries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // key picks the partition
	switch strings.ToLower(c.Compression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	// Consumer: realtime only, no backlog replay for new groups.
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange

	// Net
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	cfg.Net.DialTimeout = timeout
	cfg.Net.ReadTimeout = timeout
	cfg.Net.WriteTimeout = timeout
	return cfg
}
