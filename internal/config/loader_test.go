package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, c.App.Port)
	assert.Equal(t, ":8080", c.Addr())
	assert.Equal(t, ModeChat, c.App.Mode)
	assert.True(t, c.Auth.Required)
	assert.Equal(t, 24*time.Hour, c.Auth.TokenTTL)
	assert.Equal(t, TokenBackendFile, c.Auth.Backend)
	assert.Equal(t, "writable/websocket_tokens.json", c.Auth.File)
	assert.Equal(t, StoreBackendMemory, c.Store.Backend)
	assert.Equal(t, 256, c.WS.SendBuffer)
	assert.Equal(t, 30*time.Second, c.WS.PingInterval)
	assert.Empty(t, c.Kafka.Brokers)
	assert.False(t, c.RedisEnabled())
	assert.Equal(t, 60, c.HTTP.PostRatePerMinute)
	assert.Equal(t, 15*time.Second, c.App.ConnectTimeout)
	assert.Empty(t, c.NATS.URL)
}

func TestLoadFlags(t *testing.T) {
	c, err := Load([]string{"--port", "9001", "--mode", "echo"})
	require.NoError(t, err)
	assert.Equal(t, 9001, c.App.Port)
	assert.Equal(t, ModeEcho, c.App.Mode)
}

func TestLoadHelp(t *testing.T) {
	_, err := Load([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RELAY_APP_PORT", "7000")
	t.Setenv("RELAY_AUTH_TOKEN_TTL", "1h")
	t.Setenv("RELAY_REDIS_ADDR", "localhost:6379")
	t.Setenv("RELAY_AUTH_BACKEND", "redis")

	c, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 7000, c.App.Port)
	assert.Equal(t, time.Hour, c.Auth.TokenTTL)
	assert.Equal(t, TokenBackendRedis, c.Auth.Backend)

	c, err = Load([]string{"--port", "7100"})
	require.NoError(t, err)
	assert.Equal(t, 7100, c.App.Port, "flags win over env")
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  port: 8181
store:
  backend: mongo
mongo:
  uri: mongodb://localhost:27017
kafka:
  brokers: ["k1:9092", "k2:9092"]
ws:
  rate_limit: 2.5
`), 0o600))

	c, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, 8181, c.App.Port)
	assert.Equal(t, StoreBackendMongo, c.Store.Backend)
	assert.Equal(t, "mongodb://localhost:27017", c.Mongo.URI)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 2.5, c.WS.RateLimit)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c, err := Load(nil)
		require.NoError(t, err)
		return c
	}

	cases := map[string]func(c *Config){
		"port":          func(c *Config) { c.App.Port = 70000 },
		"mode":          func(c *Config) { c.App.Mode = "broadcast" },
		"token backend": func(c *Config) { c.Auth.Backend = "sqlite" },
		"redis tokens":  func(c *Config) { c.Auth.Backend = TokenBackendRedis },
		"mongo uri":     func(c *Config) { c.Store.Backend = StoreBackendMongo },
		"cache":         func(c *Config) { c.Cache.Enabled = true },
		"kafka topic":   func(c *Config) { c.Kafka.Brokers = []string{"k:9092"}; c.Kafka.Topic = "" },
		"pong wait":     func(c *Config) { c.WS.PongWait = c.WS.PingInterval },
		"ttl":           func(c *Config) { c.Auth.TokenTTL = 0 },
		"post rate":     func(c *Config) { c.HTTP.PostRatePerMinute = -1 },
		"nats subject":  func(c *Config) { c.NATS.URL = "nats://n:4222"; c.NATS.Subject = "" },
		"connect":       func(c *Config) { c.App.ConnectTimeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
