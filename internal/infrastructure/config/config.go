package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the AttendAI session daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Backend     BackendConfig     `yaml:"backend"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Session     SessionConfig     `yaml:"session"`
	Database    DatabaseConfig    `yaml:"database"`
	Audit       AuditConfig       `yaml:"audit"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// BackendConfig describes the AttendAI REST backend that issues and accepts tokens.
type BackendConfig struct {
	// URL is the backend origin, e.g. "http://localhost:8000".
	// BACKEND_URL overrides it.
	URL string `yaml:"url"`

	TokenPath   string `yaml:"token_path"`
	RefreshPath string `yaml:"refresh_path"`
	MePath      string `yaml:"me_path"`

	// Timeout bounds every backend round trip, in seconds.
	Timeout      int `yaml:"timeout"`
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// CredentialsConfig selects where the access/refresh token pair is persisted.
type CredentialsConfig struct {
	// Backend is one of "memory", "file", "sqlite", "redis".
	Backend  string      `yaml:"backend"`
	FilePath string      `yaml:"file_path"`
	Redis    RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings for the shared credential store.
type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	PoolSize  int    `yaml:"pool_size"`
}

// Addr returns the Redis address as host:port.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SessionConfig controls bootstrap, role filtering, and guarded areas.
type SessionConfig struct {
	// AllowedRoles is the set of roles this deployment accepts at sign-in.
	AllowedRoles []string `yaml:"allowed_roles"`

	SignInPath     string            `yaml:"signin_path"`
	DefaultLanding string            `yaml:"default_landing"`
	LandingPaths   map[string]string `yaml:"landing_paths"`

	// SignInDir replaces the embedded sign-in page when set.
	SignInDir string `yaml:"signin_dir"`

	// RefreshSkew renews an access token this many seconds before its exp claim.
	// Zero disables proactive renewal.
	RefreshSkew int `yaml:"refresh_skew"`

	Areas []AreaConfig `yaml:"areas"`
}

// AreaConfig declares a role-restricted URL prefix.
type AreaConfig struct {
	Prefix    string   `yaml:"prefix"`
	Roles     []string `yaml:"roles"`
	StaticDir string   `yaml:"static_dir"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// AuditConfig controls the session audit trail.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	// RetentionDays prunes entries older than this at startup. Zero keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains local HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// Same-origin requests are always allowed; "*" admits every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains session event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// Instance tags every point. Defaults to the host name.
	Instance string `yaml:"instance"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Output is "stdout", "stderr", or a file path.
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. A .env file next to the working directory, if present
//  4. Environment variables (override file values)
//
// A missing YAML file is not an error: defaults plus environment are enough
// to talk to a backend at BACKEND_URL.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// .env never overrides variables already set in the process environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:          "http://localhost:8000",
			TokenPath:    "/api/users/token/",
			RefreshPath:  "/api/users/token/refresh/",
			MePath:       "/api/users/me/",
			Timeout:      15,
			MaxIdleConns: 16,
		},
		Credentials: CredentialsConfig{
			Backend:  "file",
			FilePath: "./data/credentials.json",
			Redis: RedisConfig{
				Host:      "localhost",
				Port:      6379,
				KeyPrefix: "attendai:session",
				PoolSize:  10,
			},
		},
		Session: SessionConfig{
			AllowedRoles:   []string{"admin", "teacher", "student", "parent"},
			SignInPath:     "/signin",
			DefaultLanding: "/dashboard",
			LandingPaths: map[string]string{
				"admin":   "/admin",
				"teacher": "/teacher",
				"student": "/student",
				"parent":  "/dashboard",
			},
			RefreshSkew: 30,
		},
		Database: DatabaseConfig{
			Path:        "./data/attendai.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "attendai-session",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// BACKEND_URL is unprefixed so the same .env works for the web and mobile front ends.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}

	if v := os.Getenv("ATTENDAI_CREDENTIALS_BACKEND"); v != "" {
		cfg.Credentials.Backend = v
	}
	if v := os.Getenv("ATTENDAI_REDIS_HOST"); v != "" {
		cfg.Credentials.Redis.Host = v
	}
	if v := os.Getenv("ATTENDAI_REDIS_PASSWORD"); v != "" {
		cfg.Credentials.Redis.Password = v
	}

	if v := os.Getenv("ATTENDAI_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("ATTENDAI_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("ATTENDAI_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ATTENDAI_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("ATTENDAI_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("ATTENDAI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

var knownRoles = map[string]bool{"admin": true, "teacher": true, "student": true, "parent": true}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "backend.url must be an absolute URL (set BACKEND_URL)")
	}
	if c.Backend.TokenPath == "" || c.Backend.RefreshPath == "" || c.Backend.MePath == "" {
		errs = append(errs, "backend token_path, refresh_path and me_path are required")
	}
	if c.Backend.Timeout < 0 {
		errs = append(errs, "backend.timeout must not be negative")
	}

	switch c.Credentials.Backend {
	case "memory", "sqlite", "redis":
	case "file":
		if c.Credentials.FilePath == "" {
			errs = append(errs, "credentials.file_path is required for the file backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("credentials.backend %q is not one of memory, file, sqlite, redis", c.Credentials.Backend))
	}

	if len(c.Session.AllowedRoles) == 0 {
		errs = append(errs, "session.allowed_roles must not be empty")
	}
	for _, r := range c.Session.AllowedRoles {
		if !knownRoles[r] {
			errs = append(errs, fmt.Sprintf("session.allowed_roles: unknown role %q", r))
		}
	}
	if !strings.HasPrefix(c.Session.SignInPath, "/") {
		errs = append(errs, "session.signin_path must start with /")
	}
	if !strings.HasPrefix(c.Session.DefaultLanding, "/") {
		errs = append(errs, "session.default_landing must start with /")
	}
	for i, a := range c.Session.Areas {
		if !strings.HasPrefix(a.Prefix, "/") {
			errs = append(errs, fmt.Sprintf("session.areas[%d].prefix must start with /", i))
		}
		if len(a.Roles) == 0 {
			errs = append(errs, fmt.Sprintf("session.areas[%d].roles must not be empty", i))
		}
		for _, r := range a.Roles {
			if !knownRoles[r] {
				errs = append(errs, fmt.Sprintf("session.areas[%d]: unknown role %q", i, r))
			}
		}
	}

	if (c.Credentials.Backend == "sqlite" || c.Audit.Enabled) && c.Database.Path == "" {
		errs = append(errs, "database.path is required for the sqlite credential store and audit")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// NeedsDatabase reports whether any enabled component requires SQLite.
func (c *Config) NeedsDatabase() bool {
	return c.Credentials.Backend == "sqlite" || c.Audit.Enabled
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetBackendTimeout returns the per-request backend timeout.
func (c *Config) GetBackendTimeout() time.Duration {
	return time.Duration(c.Backend.Timeout) * time.Second
}

// GetRefreshSkew returns how early an access token is renewed before expiry.
func (c *Config) GetRefreshSkew() time.Duration {
	return time.Duration(c.Session.RefreshSkew) * time.Second
}
