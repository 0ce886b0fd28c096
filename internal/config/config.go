// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/devcamper/config.toml",
	"config/config.toml",
}

// Environment modes.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config       string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	EnvFile      string `kong:"help='Path to a dotenv file loaded before reading the environment.',default='config/config.env'"`
	Host         string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port         int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Environment  string `kong:"help='Environment mode: development|production (overrides config).',env='NODE_ENV'"`
	MongoURI     string `kong:"help='MongoDB connection string; selects the mongo driver (overrides config).',env='MONGO_URI'"`
	JWTSecret    string `kong:"help='Secret used to sign auth tokens (overrides config).',env='JWT_SECRET'"`
	SMTPHost     string `kong:"help='SMTP host for notification mail (overrides config).',env='SMTP_HOST'"`
	SMTPEmail    string `kong:"help='SMTP username (overrides config).',env='SMTP_EMAIL'"`
	SMTPPassword string `kong:"help='SMTP password (overrides config).',env='SMTP_PASSWORD'"`
	LogLevel     string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`

	RateLimitWindow Duration `kong:"help='Rate limit window, e.g. 10m (overrides config).',env='RATE_LIMIT_WINDOW'"`
	RateLimitMax    int      `kong:"help='Requests allowed per client per window (overrides config).',env='RATE_LIMIT_MAX'"`
}

// Config is the top-level application configuration.
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	RateLimit   RateLimitConfig `toml:"rate_limit"`
	HPP         HPPConfig       `toml:"hpp"`
	Upload      UploadConfig    `toml:"upload"`
	Database    DatabaseConfig  `toml:"database"`
	Auth        AuthConfig      `toml:"auth"`
	SMTP        SMTPConfig      `toml:"smtp"`
	Docs        DocsConfig      `toml:"docs"`
	Log         LogConfig       `toml:"log"`
	Metrics     MetricsConfig   `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"` // 0 means "use default" (5000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64  `toml:"body_max_bytes"`
	StaticDir    string `toml:"static_dir"`
	// TrustProxy makes the client identity come from X-Forwarded-For.
	TrustProxy bool `toml:"trust_proxy"`
}

// RateLimitConfig controls per-client request rate limiting.
type RateLimitConfig struct {
	Disabled  bool        `toml:"disabled"`
	Algorithm string      `toml:"algorithm"` // fixed_window | token_bucket
	Window    Duration    `toml:"window"`
	Max       int         `toml:"max"`
	Store     string      `toml:"store"` // memory | redis
	Redis     RedisConfig `toml:"redis"`
}

// RedisConfig locates the shared rate-limit counter store.
type RedisConfig struct {
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// HPPConfig configures the parameter-pollution guard.
type HPPConfig struct {
	Whitelist []string `toml:"whitelist"`
}

// UploadConfig bounds and locates file uploads.
type UploadConfig struct {
	MaxFileBytes int64  `toml:"max_file_bytes"`
	Dir          string `toml:"dir"`
}

// DatabaseConfig selects the document store.
type DatabaseConfig struct {
	Driver string `toml:"driver"` // memory | mongo
	URI    string `toml:"uri"`
	Name   string `toml:"name"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSecret        string   `toml:"jwt_secret"`
	JWTExpire        Duration `toml:"jwt_expire"`
	CookieExpireDays int      `toml:"cookie_expire_days"`
}

// SMTPConfig holds mail-sender credentials for the notification collaborator.
type SMTPConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Email     string `toml:"email"`
	Password  string `toml:"password"`
	FromName  string `toml:"from_name"`
	FromEmail string `toml:"from_email"`
}

// DocsConfig locates the pre-built API document.
type DocsConfig struct {
	File string `toml:"file"`
	Path string `toml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Duration is a time.Duration read from a TOML string such as "10m".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LoadEnvFile loads a dotenv file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load env file %s: %w", path, err)
	}
	return nil
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/devcamper/config.toml then config/config.toml. Without any file the
// defaults and CLI/environment values are used.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Environment != "" {
		c.Environment = cli.Environment
	}
	if cli.MongoURI != "" {
		c.Database.URI = cli.MongoURI
		c.Database.Driver = "mongo"
	}
	if cli.JWTSecret != "" {
		c.Auth.JWTSecret = cli.JWTSecret
	}
	if cli.SMTPHost != "" {
		c.SMTP.Host = cli.SMTPHost
	}
	if cli.SMTPEmail != "" {
		c.SMTP.Email = cli.SMTPEmail
	}
	if cli.SMTPPassword != "" {
		c.SMTP.Password = cli.SMTPPassword
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.RateLimitWindow != 0 {
		c.RateLimit.Window = cli.RateLimitWindow
	}
	if cli.RateLimitMax != 0 {
		c.RateLimit.Max = cli.RateLimitMax
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Environment) {
	case EnvDevelopment, EnvProduction, "":
		// valid
	default:
		return fmt.Errorf("environment must be one of: development, production; got %q", c.Environment)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upload.MaxFileBytes < 0 {
		return fmt.Errorf("upload.max_file_bytes must be non-negative; got %d", c.Upload.MaxFileBytes)
	}

	// Rate limiting.
	if c.RateLimit.Max < 0 {
		return fmt.Errorf("rate_limit.max must be non-negative; got %d", c.RateLimit.Max)
	}
	if c.RateLimit.Window < 0 {
		return fmt.Errorf("rate_limit.window must be non-negative; got %s", c.RateLimit.Window.Std())
	}
	switch strings.ToLower(c.RateLimit.Algorithm) {
	case "fixed_window", "token_bucket", "":
	default:
		return fmt.Errorf("rate_limit.algorithm must be one of: fixed_window, token_bucket; got %q", c.RateLimit.Algorithm)
	}
	switch strings.ToLower(c.RateLimit.Store) {
	case "memory", "":
	case "redis":
		if c.RateLimit.Redis.Address == "" {
			return fmt.Errorf("rate_limit.redis.address is required when rate_limit.store is redis")
		}
	default:
		return fmt.Errorf("rate_limit.store must be one of: memory, redis; got %q", c.RateLimit.Store)
	}

	// Database.
	switch strings.ToLower(c.Database.Driver) {
	case "memory", "":
	case "mongo":
		if c.Database.URI == "" {
			return fmt.Errorf("database.uri is required when database.driver is mongo")
		}
	default:
		return fmt.Errorf("database.driver must be one of: memory, mongo; got %q", c.Database.Driver)
	}

	// Auth.
	if strings.EqualFold(c.Environment, EnvProduction) && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in production")
	}
	if c.Auth.JWTExpire < 0 {
		return fmt.Errorf("auth.jwt_expire must be non-negative; got %s", c.Auth.JWTExpire.Std())
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Route paths must not shadow the API.
	paths := map[string]string{"docs.path": c.Docs.Path}
	if c.Metrics.Enabled {
		paths["metrics.path"] = c.Metrics.Path
	}
	for name, p := range paths {
		if p == "" {
			continue
		}
		if p[0] != '/' {
			return fmt.Errorf("%s must start with '/'; got %q", name, p)
		}
		for _, reserved := range []string{"/api/v1", "/healthz"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("%s %q conflicts with reserved route %q", name, p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	c.Environment = strings.ToLower(c.Environment)
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1024 * 1024 // 1 MB
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "public"
	}
	if c.RateLimit.Algorithm == "" {
		c.RateLimit.Algorithm = "fixed_window"
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = Duration(10 * time.Minute)
	}
	if c.RateLimit.Max == 0 {
		c.RateLimit.Max = 100
	}
	if c.RateLimit.Store == "" {
		c.RateLimit.Store = "memory"
	}
	if c.RateLimit.Redis.Prefix == "" {
		c.RateLimit.Redis.Prefix = "devcamper:ratelimit:"
	}
	if c.Upload.MaxFileBytes == 0 {
		c.Upload.MaxFileBytes = 1000000
	}
	if c.Upload.Dir == "" {
		c.Upload.Dir = "public/uploads"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Database.Name == "" {
		c.Database.Name = "devcamper"
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "development-secret"
	}
	if c.Auth.JWTExpire == 0 {
		c.Auth.JWTExpire = Duration(30 * 24 * time.Hour)
	}
	if c.Auth.CookieExpireDays == 0 {
		c.Auth.CookieExpireDays = 30
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 2525
	}
	if c.Docs.File == "" {
		c.Docs.File = "docs/openapi.yaml"
	}
	if c.Docs.Path == "" {
		c.Docs.Path = "/api-docs"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
		if c.Environment == EnvDevelopment {
			c.Log.Level = "debug"
		}
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}

// LogSMTP logs which mail-sender settings are present without exposing secrets.
func (c *Config) LogSMTP(logger *slog.Logger) {
	logger.Info("smtp settings",
		"host", c.SMTP.Host,
		"email_present", c.SMTP.Email != "",
		"password_present", c.SMTP.Password != "",
	)
}
