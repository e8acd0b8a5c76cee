package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"TalkWire/tools/errs"
)

type Config struct {
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Gateway struct {
		NodeID             string `yaml:"node_id"`
		SnowNode           int64  `yaml:"snow_node"`
		GraceSeconds       int    `yaml:"grace_seconds"`
		PresenceTTLSeconds int    `yaml:"presence_ttl_seconds"`
		SendTimeoutSeconds int    `yaml:"send_timeout_seconds"`
		FanoutWorkers      int    `yaml:"fanout_workers"`
		FanoutQueue        int    `yaml:"fanout_queue"`
		SendBuffer         int    `yaml:"send_buffer"`
	} `yaml:"gateway"`

	Auth struct {
		Secret string `yaml:"secret"`
	} `yaml:"auth"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Store struct {
		Driver string `yaml:"driver"` // mongo | postgres
		Mongo  struct {
			Uri      string `yaml:"uri"`
			Database string `yaml:"database"`
		} `yaml:"mongo"`
		Postgres struct {
			DSN string `yaml:"dsn"`
		} `yaml:"postgres"`
	} `yaml:"store"`

	Nats struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
}

// Load reads the YAML file (optional: a missing path keeps defaults), then
// applies env overrides, then defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, errs.ErrArgs.WrapMsg("read config", "path", path, "err", err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errs.ErrArgs.WrapMsg("parse config", "path", path, "err", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	envStr("TALKWIRE_ADDR", &c.Server.Addr)
	envStr("TALKWIRE_NODE_ID", &c.Gateway.NodeID)
	envStr("TALKWIRE_AUTH_SECRET", &c.Auth.Secret)
	envStr("TALKWIRE_REDIS_ADDR", &c.Redis.Addr)
	envStr("TALKWIRE_REDIS_PASSWORD", &c.Redis.Password)
	envInt("TALKWIRE_REDIS_DB", &c.Redis.DB)
	envStr("TALKWIRE_STORE_DRIVER", &c.Store.Driver)
	envStr("TALKWIRE_MONGO_URI", &c.Store.Mongo.Uri)
	envStr("TALKWIRE_MONGO_DB", &c.Store.Mongo.Database)
	envStr("TALKWIRE_POSTGRES_DSN", &c.Store.Postgres.DSN)
	envStr("TALKWIRE_NATS_URL", &c.Nats.URL)
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":3001"
	}
	if c.Gateway.GraceSeconds <= 0 {
		c.Gateway.GraceSeconds = 30
	}
	if c.Gateway.PresenceTTLSeconds <= 0 {
		c.Gateway.PresenceTTLSeconds = 60
	}
	if c.Gateway.SendTimeoutSeconds <= 0 {
		c.Gateway.SendTimeoutSeconds = 5
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "mongo"
	}
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
