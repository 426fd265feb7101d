package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"PPRealtime/service/nacos"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "pprealtime.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := LoadWithRemote("", nil)
	req.NoError(err)
	req.Equal(":8080", cfg.HTTPAddr)
	req.Equal(BrokerKafka, cfg.Broker)
	req.Equal([]string{"127.0.0.1:9092"}, cfg.Kafka.Brokers)
	req.Equal(5*time.Second, cfg.ShutdownGrace)
	req.Equal(5*time.Minute, cfg.Cache.PresenceTTL)
	req.Equal(Default().Consumer.Topics, cfg.Consumer.Topics)
	req.Equal(256, cfg.WS.QueueSize)
}

func TestLoad_FileThenEnv(t *testing.T) {
	req := require.New(t)

	// Given a file and an env override
	p := writeFile(t, `
broker: memory
log_level: warn
shutdown_grace: 2s
redis:
  addr: redis:6379
kafka:
  brokers: [k1:9092, k2:9092]
`)
	t.Setenv("PPRT_LOG_LEVEL", "error")
	t.Setenv("PPRT_CONSUMER_TOPICS", "messages,reactions")

	// When loaded
	cfg, err := LoadWithRemote(p, nil)

	// Then env beats file, and file beats defaults
	req.NoError(err)
	req.Equal(BrokerMemory, cfg.Broker)
	req.Equal("error", cfg.LogLevel)
	req.Equal(2*time.Second, cfg.ShutdownGrace)
	req.Equal("redis:6379", cfg.Redis.Addr)
	req.Equal([]string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	req.Equal([]string{"messages", "reactions"}, cfg.Consumer.Topics)
}

func TestLoad_NacosMerge(t *testing.T) {
	req := require.New(t)

	p := writeFile(t, "nacos:\n  addr: 127.0.0.1:8848\n  data_id: node.yaml\nlog_level: warn\n")
	var asked nacos.Config
	fetch := func(c nacos.Config) (string, error) {
		asked = c
		return "log_level: debug\nhttp_addr: :9090\n", nil
	}

	cfg, err := LoadWithRemote(p, fetch)
	req.NoError(err)
	req.Equal("node.yaml", asked.DataID)
	req.Equal("DEFAULT_GROUP", asked.Group)
	req.Equal("debug", cfg.LogLevel)
	req.Equal(":9090", cfg.HTTPAddr)

	_, err = LoadWithRemote(p, func(nacos.Config) (string, error) { return "", errors.New("down") })
	req.Error(err)
}

func TestLoad_Validation(t *testing.T) {
	req := require.New(t)

	_, err := LoadWithRemote(writeFile(t, "broker: zmq\n"), nil)
	req.Error(err)

	_, err = LoadWithRemote(writeFile(t, "auth:\n  required: true\n"), nil)
	req.Error(err)

	_, err = LoadWithRemote(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	req.Error(err)

	cfg, err := Parse("broker: nats\nnats:\n  servers: [nats://n1:4222]\n")
	req.NoError(err)
	req.Equal([]string{"nats://n1:4222"}, cfg.NATS.Servers)
}
