package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Auth service transports.
const (
	TransportHTTP = "http"
	TransportRPC  = "rpc"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Log         LogConfig         `koanf:"log"`
	Redis       RedisConfig       `koanf:"redis"`
	Cache       CacheConfig       `koanf:"cache"`
	Events      EventsConfig      `koanf:"events"`
	RPC         RPCConfig         `koanf:"rpc"`
	AuthService AuthServiceConfig `koanf:"auth_service"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	Mode           string `koanf:"mode"`
	Timeout        string `koanf:"timeout"`
	TrustRequestID bool   `koanf:"trust_request_id"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `koanf:"driver"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pool     PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// RedisConfig holds the Redis connection used by the cache, events and rpc transport.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// CacheConfig holds the user read-through cache settings.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	TTL     string `koanf:"ttl"`
}

// EventsConfig holds user lifecycle event publishing settings.
type EventsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Stream  string `koanf:"stream"`
}

// RPCConfig holds the message-pattern server settings.
type RPCConfig struct {
	Enabled        bool   `koanf:"enabled"`
	Stream         string `koanf:"stream"`
	Group          string `koanf:"group"`
	Consumer       string `koanf:"consumer"`
	BatchSize      int    `koanf:"batch_size"`
	Block          string `koanf:"block"`
	HandlerTimeout string `koanf:"handler_timeout"`
}

// AuthServiceConfig locates the remote auth service.
type AuthServiceConfig struct {
	Transport    string `koanf:"transport"`
	BaseURL      string `koanf:"base_url"`
	RegisterPath string `koanf:"register_path"`
	Timeout      string `koanf:"timeout"`
	Pattern      string `koanf:"pattern"`
	Stream       string `koanf:"stream"`
}

// Load reads configuration from a YAML file and overlays environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator. Single underscores are preserved as part of the key name.
// For example, APP__SERVER__PORT=9090 overrides server.port and
// APP__AUTH_SERVICE__BASE_URL overrides auth_service.base_url.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	if err := k.Load(env.Provider("APP__", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKey maps APP__AUTH_SERVICE__BASE_URL to auth_service.base_url.
func envKey(s string) string {
	key := strings.TrimPrefix(s, "APP__")
	key = strings.ToLower(key)
	return strings.ReplaceAll(key, "__", ".")
}

// Validate checks cross-field constraints and supported values, normalizing
// optional fields to their defaults.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateLog,
		c.validateRedis,
		c.validateRPC,
		c.validateAuthService,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	mode := strings.TrimSpace(c.Server.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		c.Server.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", c.Server.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}

	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	timeout, err := optionalDuration("server.timeout", c.Server.Timeout)
	if err != nil {
		return err
	}
	c.Server.Timeout = timeout
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite":
		sqlitePath := strings.TrimSpace(c.Database.SQLite.Path)
		if sqlitePath == "" {
			return fmt.Errorf("database.sqlite.path is required when driver is sqlite")
		}
		c.Database.SQLite.Path = sqlitePath
	case "postgres":
		if err := c.validatePostgres(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid database.driver %q: must be one of %q, %q", c.Database.Driver, "sqlite", "postgres")
	}

	lifetime, err := optionalDuration("database.pool.conn_max_lifetime", c.Database.Pool.ConnMaxLifetime)
	if err != nil {
		return err
	}
	c.Database.Pool.ConnMaxLifetime = lifetime
	return nil
}

func (c *Config) validatePostgres() error {
	pg := &c.Database.Postgres

	host := strings.TrimSpace(pg.Host)
	if host == "" {
		return fmt.Errorf("database.postgres.host is required when driver is postgres")
	}
	if pg.Port < 1 || pg.Port > 65535 {
		return fmt.Errorf("invalid database.postgres.port %d: must be between 1 and 65535", pg.Port)
	}
	user := strings.TrimSpace(pg.User)
	if user == "" {
		return fmt.Errorf("database.postgres.user is required when driver is postgres")
	}
	dbName := strings.TrimSpace(pg.DBName)
	if dbName == "" {
		return fmt.Errorf("database.postgres.dbname is required when driver is postgres")
	}

	sslMode := strings.TrimSpace(pg.SSLMode)
	switch sslMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("invalid database.postgres.sslmode %q: must be one of %q, %q, %q, %q, %q, %q", pg.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")
	}
	if c.Server.Mode == gin.ReleaseMode {
		switch sslMode {
		case "require", "verify-ca", "verify-full":
		default:
			return fmt.Errorf("invalid database.postgres.sslmode %q for server.mode %q: must be one of %q, %q, %q", pg.SSLMode, gin.ReleaseMode, "require", "verify-ca", "verify-full")
		}
	}

	pg.Host = host
	pg.User = user
	pg.DBName = dbName
	pg.SSLMode = sslMode
	return nil
}

func (c *Config) validateLog() error {
	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", c.Log.Format, "text", "json")
	}
	return nil
}

// RedisRequired reports whether any enabled component needs the Redis connection.
func (c *Config) RedisRequired() bool {
	return c.Cache.Enabled || c.Events.Enabled || c.RPC.Enabled || c.AuthService.Transport == TransportRPC
}

func (c *Config) validateRedis() error {
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	if c.RedisRequired() && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when cache, events, rpc or the rpc auth transport is enabled")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d: must not be negative", c.Redis.DB)
	}

	if c.Cache.Enabled {
		ttl, err := requiredDuration("cache.ttl", c.Cache.TTL, "5m")
		if err != nil {
			return err
		}
		c.Cache.TTL = ttl
	}

	c.Events.Stream = defaultString(c.Events.Stream, "user.events")
	return nil
}

func (c *Config) validateRPC() error {
	r := &c.RPC
	r.Stream = defaultString(r.Stream, "users.requests")
	r.Group = defaultString(r.Group, "users")
	r.Consumer = defaultString(r.Consumer, "users-1")
	if r.BatchSize == 0 {
		r.BatchSize = 10
	}
	if r.BatchSize < 0 {
		return fmt.Errorf("invalid rpc.batch_size %d: must be positive", r.BatchSize)
	}

	block, err := requiredDuration("rpc.block", r.Block, "5s")
	if err != nil {
		return err
	}
	r.Block = block

	handlerTimeout, err := requiredDuration("rpc.handler_timeout", r.HandlerTimeout, "30s")
	if err != nil {
		return err
	}
	r.HandlerTimeout = handlerTimeout
	return nil
}

func (c *Config) validateAuthService() error {
	a := &c.AuthService

	transport := strings.ToLower(strings.TrimSpace(a.Transport))
	if transport == "" {
		transport = TransportHTTP
	}
	a.Transport = transport

	timeout, err := requiredDuration("auth_service.timeout", a.Timeout, "5s")
	if err != nil {
		return err
	}
	a.Timeout = timeout
	a.Pattern = defaultString(a.Pattern, "auth.register.user")

	switch transport {
	case TransportHTTP:
		baseURL := strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
		if baseURL == "" {
			return fmt.Errorf("auth_service.base_url is required when transport is %q", TransportHTTP)
		}
		u, err := url.Parse(baseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid auth_service.base_url %q: must be an absolute http(s) URL", a.BaseURL)
		}
		a.BaseURL = baseURL

		path := defaultString(a.RegisterPath, "/api/v1/auth/register")
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("invalid auth_service.register_path %q: must start with '/'", a.RegisterPath)
		}
		a.RegisterPath = path
	case TransportRPC:
		a.Stream = defaultString(a.Stream, "auth.requests")
	default:
		return fmt.Errorf("invalid auth_service.transport %q: must be one of %q, %q", a.Transport, TransportHTTP, TransportRPC)
	}
	return nil
}

// Duration parses a value already checked by Validate. Empty means zero.
func Duration(v string) time.Duration {
	d, _ := time.ParseDuration(v)
	return d
}

// optionalDuration trims v and, when set, requires a positive Go duration.
func optionalDuration(key, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return "", fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return "", fmt.Errorf("invalid %s %q: must be greater than 0", key, v)
	}
	return v, nil
}

// requiredDuration is optionalDuration with a default for empty values.
func requiredDuration(key, v, def string) (string, error) {
	return optionalDuration(key, defaultString(v, def))
}

func defaultString(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
