// Package config loads the bot configuration: the shared core sections plus
// storage, sessions, events and the game catalog.
package config

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/fingames/core/config"
	coredatabase "github.com/m3rciful/fingames/core/database"
	"github.com/m3rciful/fingames/core/telegram/state"
	"github.com/m3rciful/fingames/internal/catalog"
)

// Session backends.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

const (
	defaultRedisPrefix     = "fingames:fsm:"
	defaultEventsExchange  = "fingames.events"
	defaultJanitorInterval = time.Minute
)

// DatabaseConfig enables Postgres storage. Without it registrations live in
// process memory and are lost on restart.
type DatabaseConfig struct {
	coredatabase.Config `yaml:",inline"`

	Enabled bool `yaml:"enabled" envconfig:"DB_ENABLED"`
}

// SessionConfig selects where dialog state is kept.
type SessionConfig struct {
	Backend       string        `yaml:"backend" envconfig:"SESSION_BACKEND"`
	IdleTTL       time.Duration `yaml:"idle_ttl" envconfig:"SESSION_IDLE_TTL"`
	RedisAddr     string        `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" envconfig:"REDIS_DB"`
	RedisPrefix   string        `yaml:"redis_prefix" envconfig:"REDIS_PREFIX"`
	// JanitorInterval paces eviction of idle in-memory sessions.
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

// EventsConfig enables publishing registration events to RabbitMQ.
type EventsConfig struct {
	AMQPURL   string `yaml:"amqp_url" envconfig:"AMQP_URL"`
	Exchange  string `yaml:"exchange" envconfig:"AMQP_EXCHANGE"`
	QueueSize int    `yaml:"queue_size"`
}

// Enabled reports whether a broker is configured.
func (e EventsConfig) Enabled() bool {
	return strings.TrimSpace(e.AMQPURL) != ""
}

// RegistrationConfig tunes the registration flow.
type RegistrationConfig struct {
	// SlotsEnabled=false drops the slot step: choosing a game registers at once.
	SlotsEnabled *bool `yaml:"slots_enabled" envconfig:"REGISTRATION_SLOTS_ENABLED"`
	Capacity     int   `yaml:"capacity" envconfig:"REGISTRATION_CAPACITY"`
	// ExportDir stages CSV exports; empty means the system temp dir.
	ExportDir string `yaml:"export_dir" envconfig:"EXPORT_DIR"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database     DatabaseConfig     `yaml:"database"`
	Session      SessionConfig      `yaml:"session"`
	Events       EventsConfig       `yaml:"events"`
	Registration RegistrationConfig `yaml:"registration"`
	Catalog      *catalog.Config    `yaml:"catalog" ignored:"true"`
}

// CoreConfig exposes the shared core sections.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Load reads path, overlays the environment and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg and fills defaults.
func Normalize(cfg *Config) error {
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	if cfg.Database.Enabled {
		if cfg.Database.Host == "" || cfg.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required when database.enabled is true")
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
	}

	s := &cfg.Session
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	if s.Backend == "" {
		s.Backend = SessionMemory
	}
	switch s.Backend {
	case SessionMemory:
	case SessionRedis:
		if strings.TrimSpace(s.RedisAddr) == "" {
			return fmt.Errorf("session.redis_addr is required when session.backend is 'redis'")
		}
		if s.RedisPrefix == "" {
			s.RedisPrefix = defaultRedisPrefix
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, redis", s.Backend)
	}
	if s.IdleTTL < 0 {
		return fmt.Errorf("session.idle_ttl must be >= 0")
	}
	if s.IdleTTL == 0 {
		s.IdleTTL = state.DefaultIdleTTL
	}
	if s.JanitorInterval <= 0 {
		s.JanitorInterval = defaultJanitorInterval
	}

	if cfg.Events.Enabled() && cfg.Events.Exchange == "" {
		cfg.Events.Exchange = defaultEventsExchange
	}

	if cfg.Registration.Capacity < 0 {
		return fmt.Errorf("registration.capacity must be >= 0")
	}
	if _, err := cfg.CatalogConfig(); err != nil {
		return err
	}
	return nil
}

// CatalogConfig merges the catalog section with the registration settings.
// The built-in FinGames catalog is used when the section is absent.
func (c *Config) CatalogConfig() (catalog.Config, error) {
	out := catalog.Default()
	if c.Catalog != nil {
		if len(c.Catalog.Games) > 0 {
			out.Games = c.Catalog.Games
		}
		if c.Catalog.Days != nil {
			out.Days = c.Catalog.Days
		}
		if c.Catalog.Capacity > 0 {
			out.Capacity = c.Catalog.Capacity
		}
	}
	if c.Registration.Capacity > 0 {
		out.Capacity = c.Registration.Capacity
	}
	if c.Registration.SlotsEnabled != nil && !*c.Registration.SlotsEnabled {
		out.Days = nil
	}
	if _, err := catalog.New(out); err != nil {
		return catalog.Config{}, err
	}
	return out, nil
}
