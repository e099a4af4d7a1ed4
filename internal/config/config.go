package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	ModeChat = "chat"
	ModeEcho = "echo"

	TokenBackendFile   = "file"
	TokenBackendMemory = "memory"
	TokenBackendRedis  = "redis"

	StoreBackendMemory = "memory"
	StoreBackendMongo  = "mongo"
)

type AppConfig struct {
	Env  string `mapstructure:"env"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// ConnectTimeout bounds the retries against redis and mongo at startup.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type AuthConfig struct {
	Required      bool          `mapstructure:"required"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Backend       string        `mapstructure:"backend"`
	File          string        `mapstructure:"file"`
	ServiceSecret string        `mapstructure:"service_secret"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type WSConfig struct {
	SendBuffer     int           `mapstructure:"send_buffer"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

type HTTPConfig struct {
	PostRatePerMinute int `mapstructure:"post_rate_per_minute"`
	PostBurst         int `mapstructure:"post_burst"`
}

type Config struct {
	App   AppConfig   `mapstructure:"app"`
	Log   LogConfig   `mapstructure:"log"`
	Auth  AuthConfig  `mapstructure:"auth"`
	Store StoreConfig `mapstructure:"store"`
	Mongo MongoConfig `mapstructure:"mongo"`
	Redis RedisConfig `mapstructure:"redis"`
	Cache CacheConfig `mapstructure:"cache"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	NATS  NATSConfig  `mapstructure:"nats"`
	WS    WSConfig    `mapstructure:"ws"`
	HTTP  HTTPConfig  `mapstructure:"http"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

func (c *Config) Validate() error {
	var errs []error
	if c.App.Port < 1 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("app.port %d out of range", c.App.Port))
	}
	switch c.App.Mode {
	case ModeChat, ModeEcho:
	default:
		errs = append(errs, fmt.Errorf("app.mode %q must be %s or %s", c.App.Mode, ModeChat, ModeEcho))
	}

	switch c.Auth.Backend {
	case TokenBackendMemory:
	case TokenBackendFile:
		if c.Auth.File == "" {
			errs = append(errs, errors.New("auth.file is required for the file token backend"))
		}
	case TokenBackendRedis:
		if !c.RedisEnabled() {
			errs = append(errs, errors.New("redis.addr is required for the redis token backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth.backend %q", c.Auth.Backend))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Auth.SweepInterval <= 0 {
		errs = append(errs, errors.New("auth.sweep_interval must be positive"))
	}

	switch c.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("mongo.uri is required for the mongo store"))
		}
		if c.Mongo.Timeout <= 0 {
			errs = append(errs, errors.New("mongo.timeout must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}

	if c.Cache.Enabled && !c.RedisEnabled() {
		errs = append(errs, errors.New("cache.enabled requires redis.addr"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		errs = append(errs, errors.New("nats.subject is required when nats.url is set"))
	}
	if c.App.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("app.connect_timeout must be positive"))
	}
	if c.WS.RateLimit < 0 {
		errs = append(errs, errors.New("ws.rate_limit must not be negative"))
	}
	if c.HTTP.PostRatePerMinute < 0 {
		errs = append(errs, errors.New("http.post_rate_per_minute must not be negative"))
	}
	if c.WS.PingInterval <= 0 || c.WS.PongWait <= 0 || c.WS.WriteWait <= 0 {
		errs = append(errs, errors.New("ws timeouts must be positive"))
	}
	if c.WS.PongWait <= c.WS.PingInterval {
		errs = append(errs, errors.New("ws.pong_wait must exceed ws.ping_interval"))
	}
	return errors.Join(errs...)
}
