// Package config loads settings for the relay and the lobby client from the
// environment, after an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type RelayConfig struct {
	Addr            string        `env:"LOBBY_RELAY_ADDR" envDefault:":8080"`
	DefaultCapacity int           `env:"LOBBY_DEFAULT_CAPACITY" envDefault:"4"`
	MaxCapacity     int           `env:"LOBBY_MAX_CAPACITY" envDefault:"16"`
	WriteTimeout    time.Duration `env:"LOBBY_WS_WRITE_TIMEOUT" envDefault:"3s"`
	IdleTimeout     time.Duration `env:"LOBBY_WS_IDLE_TIMEOUT"`
	OriginPatterns  []string      `env:"LOBBY_WS_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `env:"LOBBY_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Dev bool `env:"LOBBY_DEV"`

	OtelEnabled  bool   `env:"LOBBY_OTEL_ENABLED" envDefault:"true"`
	OtelEndpoint string `env:"LOBBY_OTEL_ENDPOINT"`
}

type ClientConfig struct {
	RelayURL       string        `env:"LOBBY_RELAY_URL" envDefault:"http://localhost:8080"`
	PersistentID   string        `env:"LOBBY_PERSISTENT_ID"`
	DisplayName    string        `env:"LOBBY_DISPLAY_NAME" envDefault:"Player"`
	Capacity       int           `env:"LOBBY_CAPACITY" envDefault:"4"`
	KickGrace      time.Duration `env:"LOBBY_KICK_GRACE" envDefault:"50ms"`
	RequestTimeout time.Duration `env:"LOBBY_REQUEST_TIMEOUT" envDefault:"5s"`

	Dev bool `env:"LOBBY_DEV"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadDotEnv reads the given .env files (".env" when none are named) into the
// environment. Missing files are not an error; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func LoadRelay() (RelayConfig, error) {
	var cfg RelayConfig
	if err := LoadDotEnv(); err != nil {
		return cfg, err
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c RelayConfig) Validate() error {
	if c.DefaultCapacity < 1 {
		return fmt.Errorf("LOBBY_DEFAULT_CAPACITY must be positive, got %d", c.DefaultCapacity)
	}
	if c.MaxCapacity < c.DefaultCapacity {
		return fmt.Errorf("LOBBY_MAX_CAPACITY %d below default capacity %d", c.MaxCapacity, c.DefaultCapacity)
	}
	return nil
}

// LoadClient parses the client settings. A missing persistent id is
// generated; a configured one must be a uuid.
func LoadClient() (ClientConfig, error) {
	var cfg ClientConfig
	if err := LoadDotEnv(); err != nil {
		return cfg, err
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *ClientConfig) normalize() error {
	if c.PersistentID == "" {
		c.PersistentID = uuid.NewString()
	} else if _, err := uuid.Parse(c.PersistentID); err != nil {
		return fmt.Errorf("LOBBY_PERSISTENT_ID: %w", err)
	}
	if c.Capacity < 1 {
		return fmt.Errorf("LOBBY_CAPACITY must be positive, got %d", c.Capacity)
	}
	return nil
}
