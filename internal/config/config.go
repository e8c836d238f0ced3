package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ozzus/check-dispatcher/internal/dispatch"
)

const (
	DefaultResultQueue = "check_results"
	MaxResultWorkers   = 256

	defaultTimeoutMS = 3000
	defaultDedupTTL  = 300
)

type Config struct {
	Env      string         `mapstructure:"env"`
	Debug    int            `mapstructure:"debug"`
	Server   ServerConfig   `mapstructure:"server"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Store    StoreConfig    `mapstructure:"store"`
	Args     string         `mapstructure:"args"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	// AuthToken enables basic auth on the /v1 routes.
	AuthUser  string `mapstructure:"auth_user"`
	AuthToken string `mapstructure:"auth_token"`
}

type BrokerConfig struct {
	Driver  string   `mapstructure:"driver"`
	Servers []string `mapstructure:"servers"`
	// Timeout is in milliseconds.
	Timeout int `mapstructure:"timeout"`
	// DedupTTL is in seconds.
	DedupTTL int `mapstructure:"dedup_ttl"`
}

type DispatchConfig struct {
	ResultQueue        string   `mapstructure:"result_queue"`
	ResultWorkers      int      `mapstructure:"result_workers"`
	Hosts              bool     `mapstructure:"hosts"`
	Services           bool     `mapstructure:"services"`
	EventHandler       bool     `mapstructure:"eventhandler"`
	HostGroups         []string `mapstructure:"hostgroups"`
	ServiceGroups      []string `mapstructure:"servicegroups"`
	LocalHostGroups    []string `mapstructure:"localhostgroups"`
	LocalServiceGroups []string `mapstructure:"localservicegroups"`
}

type EngineConfig struct {
	Objects string `mapstructure:"objects"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads .env, then the YAML file at path (or ./config/local.yaml when
// path is empty), then the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("local")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("debug", 0)
	v.SetDefault("args", "")

	v.SetDefault("server.port", "8081")
	v.SetDefault("server.auth_user", "dispatcher")
	v.SetDefault("server.auth_token", "")

	v.SetDefault("broker.driver", "kafka")
	v.SetDefault("broker.servers", []string{})
	v.SetDefault("broker.timeout", defaultTimeoutMS)
	v.SetDefault("broker.dedup_ttl", defaultDedupTTL)

	v.SetDefault("dispatch.result_queue", DefaultResultQueue)
	v.SetDefault("dispatch.result_workers", 1)
	v.SetDefault("dispatch.hosts", false)
	v.SetDefault("dispatch.services", false)
	v.SetDefault("dispatch.eventhandler", false)
	v.SetDefault("dispatch.hostgroups", []string{})
	v.SetDefault("dispatch.servicegroups", []string{})
	v.SetDefault("dispatch.localhostgroups", []string{})
	v.SetDefault("dispatch.localservicegroups", []string{})

	v.SetDefault("engine.objects", "./config/objects.yaml")
	v.SetDefault("store.path", "dispatcher.db")
}

// Validate fills zero values, clamps the worker count and requires at least
// one broker server.
func (c *Config) Validate() error {
	c.Broker.Driver = strings.ToLower(strings.TrimSpace(c.Broker.Driver))
	if c.Broker.Driver == "" {
		c.Broker.Driver = "kafka"
	}
	if c.Broker.Timeout <= 0 {
		c.Broker.Timeout = defaultTimeoutMS
	}
	if c.Broker.DedupTTL < 0 {
		c.Broker.DedupTTL = 0
	}
	if c.Dispatch.ResultQueue == "" {
		c.Dispatch.ResultQueue = DefaultResultQueue
	}

	switch {
	case c.Dispatch.ResultWorkers <= 0:
		c.Dispatch.ResultWorkers = 1
	case c.Dispatch.ResultWorkers > MaxResultWorkers:
		c.Dispatch.ResultWorkers = MaxResultWorkers
	}

	c.Broker.Servers = compact(c.Broker.Servers)
	c.Dispatch.HostGroups = compact(c.Dispatch.HostGroups)
	c.Dispatch.ServiceGroups = compact(c.Dispatch.ServiceGroups)
	c.Dispatch.LocalHostGroups = compact(c.Dispatch.LocalHostGroups)
	c.Dispatch.LocalServiceGroups = compact(c.Dispatch.LocalServiceGroups)

	if len(c.Broker.Servers) == 0 {
		return dispatch.ErrNoServers
	}
	return nil
}

func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Broker.Timeout) * time.Millisecond
}

func (c *Config) GetDedupTTL() time.Duration {
	return time.Duration(c.Broker.DedupTTL) * time.Second
}

// compact splits comma lists that arrived as one element and drops empty
// names.
func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
