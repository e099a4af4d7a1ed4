package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "RELAY"

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.mode", ModeChat)
	v.SetDefault("app.connect_timeout", "15s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("auth.required", true)
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.sweep_interval", "10m")
	v.SetDefault("auth.backend", TokenBackendFile)
	v.SetDefault("auth.file", "writable/websocket_tokens.json")
	v.SetDefault("auth.service_secret", "")

	v.SetDefault("store.backend", StoreBackendMemory)
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "chat")
	v.SetDefault("mongo.timeout", "5s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "chat")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", "5m")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "chat.message.sent")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "chat.message.sent")

	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.max_message_size", 65536)
	v.SetDefault("ws.ping_interval", "30s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.write_wait", "10s")
	v.SetDefault("ws.rate_limit", 0)
	v.SetDefault("ws.rate_burst", 10)

	v.SetDefault("http.post_rate_per_minute", 60)
	v.SetDefault("http.post_burst", 5)
}

// Load resolves configuration from flags, RELAY_* environment variables, an
// optional yaml file and defaults, in that order of precedence.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	fs.Int("port", 8080, "listen port")
	fs.String("mode", ModeChat, "relay variant: chat or echo")
	cfgFile := fs.String("config", "", "path to a yaml config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if err := v.BindPFlag("app.port", fs.Lookup("port")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("app.mode", fs.Lookup("mode")); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *cfgFile != "" {
		v.SetConfigFile(*cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", *cfgFile, err)
		}
	} else {
		v.SetConfigName("relay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}
