package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all process configuration, loaded from the environment.
type Config struct {
	Host     string `envconfig:"HOST" default:"0.0.0.0"`
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// JWTSecret signs and verifies bearer tokens presented at upgrade.
	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	// BadgerPath is the directory for the embedded store.
	BadgerPath string `envconfig:"BADGER_PATH" default:"./data/chathub"`

	// StorageTimeout bounds every storage collaborator call; a timeout
	// is treated as a failure of the triggering action.
	StorageTimeout time.Duration `envconfig:"STORAGE_TIMEOUT" default:"5s"`

	Socket SocketConfig
	Redis  RedisConfig
}

// SocketConfig holds WebSocket transport settings.
type SocketConfig struct {
	ReadBufferSize  int `envconfig:"WS_READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int `envconfig:"WS_WRITE_BUFFER_SIZE" default:"1024"`
}

// RedisConfig holds connection settings for the presence store.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	Prefix   string `envconfig:"REDIS_PREFIX" default:"chathub:"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
