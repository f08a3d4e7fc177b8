package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Game    GameConfig
	Sync    SyncConfig
	Storage StorageConfig
	Auth    AuthConfig
	Logging LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Env  string `env:"ENV" envDefault:"development"` // "development" or "production"
	// PublicURL is the base of invite links encoded in QR codes.
	PublicURL string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`
}

// GameConfig holds game-related configuration
type GameConfig struct {
	MinPlayers      int           `env:"MIN_PLAYERS" envDefault:"4"`
	MaxPlayers      int           `env:"MAX_PLAYERS" envDefault:"15"`
	RoomCodeLength  int           `env:"ROOM_CODE_LENGTH" envDefault:"6"`
	TickInterval    time.Duration `env:"TIMER_TICK_INTERVAL" envDefault:"1s"`
	PresenceEvery   time.Duration `env:"PRESENCE_INTERVAL" envDefault:"10s"`
	StaleRoomAfter  time.Duration `env:"STALE_ROOM_AFTER" envDefault:"2h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"10m"`
}

// SyncConfig tunes the staleness guard of the synchronization protocol
type SyncConfig struct {
	GuardInterval time.Duration `env:"SYNC_GUARD_INTERVAL" envDefault:"2s"`
	StaleAfter    time.Duration `env:"SYNC_STALE_AFTER" envDefault:"3s"`
}

// StorageConfig selects the store backends
type StorageConfig struct {
	Driver        string        `env:"STORAGE_DRIVER" envDefault:"memory"` // memory, sqlite or postgres
	SQLitePath    string        `env:"SQLITE_PATH" envDefault:"crewmate.db"`
	PostgresDSN   string        `env:"POSTGRES_DSN"`
	RedisAddr     string        `env:"REDIS_ADDR"` // empty keeps timers and presence in memory
	RedisPassword string        `env:"REDIS_PASSWORD"`
	EphemeralTTL  time.Duration `env:"EPHEMERAL_TTL" envDefault:"2h"`
}

// AuthConfig holds player token settings
type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse builds the configuration from the environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Game.MinPlayers < 1 || c.Game.MaxPlayers < c.Game.MinPlayers {
		return fmt.Errorf("invalid player limits %d..%d", c.Game.MinPlayers, c.Game.MaxPlayers)
	}
	if c.Sync.GuardInterval <= 0 || c.Sync.StaleAfter <= 0 {
		return fmt.Errorf("sync intervals must be positive")
	}
	if c.Game.TickInterval <= 0 {
		return fmt.Errorf("TIMER_TICK_INTERVAL must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetAddr returns the server address in host:port format
func (c *Config) GetAddr() string {
	return c.Server.Host + ":" + c.Server.Port
}
