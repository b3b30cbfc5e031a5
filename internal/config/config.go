package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultJWTExpiresIn   = "24h"
	DefaultPGHost         = "127.0.0.1"
	DefaultPGPort         = 5432
	DefaultPGUser         = "postgres"
	DefaultPGDatabase     = "botgateway"
	DefaultPGSSLMode      = "disable"
	DefaultQueueWorkers   = 10
	DefaultQueueCapacity  = 1024
	DefaultMaxAttempts    = 3
	DefaultBaseDelayMs    = 2000
	DefaultMaxDelayMs     = 30000
	DefaultSendPerSecond  = 10
	DefaultSendBurst      = 5
	DefaultCacheLimit     = 50
	DefaultTenantCacheTTL = "5m"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Admin    AdminConfig    `toml:"admin"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Queue    QueueConfig    `toml:"queue"`
	Send     SendConfig     `toml:"send"`
	Identity IdentityConfig `toml:"identity"`
	Cache    CacheConfig    `toml:"cache"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// PublicBaseURL is the externally reachable base used when registering
	// webhook URLs with providers, e.g. https://bot.example.com.
	PublicBaseURL string `toml:"public_base_url" validate:"omitempty,url"`
}

type AdminConfig struct {
	Username string `toml:"username"`
	// PasswordHash is a bcrypt hash of the admin password.
	PasswordHash string `toml:"password_hash"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port" validate:"gte=0,lte=65535"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// URL renders the postgres connection string.
func (p PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

type QueueConfig struct {
	Workers     int `toml:"workers" validate:"gte=0"`
	Capacity    int `toml:"capacity" validate:"gte=0"`
	MaxAttempts int `toml:"max_attempts" validate:"gte=0"`
	BaseDelayMs int `toml:"base_delay_ms" validate:"gte=0"`
	MaxDelayMs  int `toml:"max_delay_ms" validate:"gte=0"`
}

type SendConfig struct {
	// PerSecond and Burst bound outbound provider calls per (tenant, channel).
	PerSecond float64 `toml:"per_second" validate:"gte=0"`
	Burst     int     `toml:"burst" validate:"gte=0"`
}

type IdentityConfig struct {
	// BaseURL of the external identity service. Empty disables remote
	// registration; users then get locally minted external ids.
	BaseURL string `toml:"base_url" validate:"omitempty,url"`
	APIKey  string `toml:"api_key"`
}

type CacheConfig struct {
	// MessagesPerSession bounds the per-session conversational cache.
	MessagesPerSession int    `toml:"messages_per_session" validate:"gte=0"`
	TenantTTL          string `toml:"tenant_ttl"`
}

// Load reads the TOML config at path (or DefaultConfigPath when empty),
// applies defaults, and validates the result.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultHTTPAddr
	}
	if c.Auth.JWTExpiresIn == "" {
		c.Auth.JWTExpiresIn = DefaultJWTExpiresIn
	}
	if c.Postgres.Host == "" {
		c.Postgres.Host = DefaultPGHost
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = DefaultPGPort
	}
	if c.Postgres.User == "" {
		c.Postgres.User = DefaultPGUser
	}
	if c.Postgres.Database == "" {
		c.Postgres.Database = DefaultPGDatabase
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = DefaultPGSSLMode
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = DefaultQueueWorkers
	}
	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = DefaultQueueCapacity
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = DefaultMaxAttempts
	}
	if c.Queue.BaseDelayMs == 0 {
		c.Queue.BaseDelayMs = DefaultBaseDelayMs
	}
	if c.Queue.MaxDelayMs == 0 {
		c.Queue.MaxDelayMs = DefaultMaxDelayMs
	}
	if c.Send.PerSecond == 0 {
		c.Send.PerSecond = DefaultSendPerSecond
	}
	if c.Send.Burst == 0 {
		c.Send.Burst = DefaultSendBurst
	}
	if c.Cache.MessagesPerSession == 0 {
		c.Cache.MessagesPerSession = DefaultCacheLimit
	}
	if c.Cache.TenantTTL == "" {
		c.Cache.TenantTTL = DefaultTenantCacheTTL
	}
}
