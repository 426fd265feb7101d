package nacos

import (
	"errors"
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

// Config points at one remote config document. Addr empty disables Nacos.
type Config struct {
	Addr      string `mapstructure:"addr"` // host or host:port
	Port      uint64 `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Group     string `mapstructure:"group"`
	DataID    string `mapstructure:"data_id"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	TimeoutMs uint64 `mapstructure:"timeout_ms"`
	CacheDir  string `mapstructure:"cache_dir"`
	LogDir    string `mapstructure:"log_dir"`
	LogLevel  string `mapstructure:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		Port:      8848,
		Namespace: "public",
		Group:     "DEFAULT_GROUP",
		DataID:    "pprealtime.yaml",
		TimeoutMs: 5000,
		CacheDir:  "nacos/cache",
		LogDir:    "nacos/log",
		LogLevel:  "warn",
	}
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Addr) != "" }

// hostPort splits Addr, falling back to Port when Addr carries none.
func (c Config) hostPort() (string, uint64, error) {
	host := strings.TrimSpace(c.Addr)
	port := c.Port
	if i := strings.LastIndex(host, ":"); i > 0 {
		p, err := strconv.ParseUint(host[i+1:], 10, 64)
		if err != nil {
			return "", 0, errors.New("nacos: bad port in addr " + c.Addr)
		}
		host, port = host[:i], p
	}
	if host == "" {
		return "", 0, errors.New("nacos: addr not set")
	}
	if port == 0 {
		port = 8848
	}
	return host, port, nil
}

func (c Config) serverConfigs() ([]constant.ServerConfig, error) {
	host, port, err := c.hostPort()
	if err != nil {
		return nil, err
	}
	return []constant.ServerConfig{*constant.NewServerConfig(host, port)}, nil
}

func (c Config) clientConfig() *constant.ClientConfig {
	return constant.NewClientConfig(
		constant.WithNamespaceId(c.Namespace),
		constant.WithTimeoutMs(c.TimeoutMs),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogLevel(c.LogLevel),
		constant.WithCacheDir(c.CacheDir),
		constant.WithLogDir(c.LogDir),
		constant.WithUsername(c.Username),
		constant.WithPassword(c.Password),
	)
}

// NewConfigClient builds a config client for c.
func NewConfigClient(c Config) (config_client.IConfigClient, error) {
	servers, err := c.serverConfigs()
	if err != nil {
		return nil, err
	}
	return clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  c.clientConfig(),
		ServerConfigs: servers,
	})
}
