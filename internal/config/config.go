package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AlertsConfig holds zone alarm delivery settings.
type AlertsConfig struct {
	// Cooldown suppresses re-firing an alarm on the same path for this long
	// after it fired. Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`

	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the host configuration.
const (
	DefaultHTTPPort        = 3000
	DefaultLogLevel        = "info"
	DefaultSelfPrefix      = "self."
	DefaultStoreBackend    = "file"
	DefaultStorePath       = "tidewatch-store.yaml"
	DefaultOutboundTimeout = 10 * time.Second
	DefaultCooldown        = 15 * time.Minute
)

// Config holds the configuration parsed from the `server:` section.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all host settings.
type ServerConfig struct {
	HTTPPort   int    `yaml:"http_port"`
	LogLevel   string `yaml:"log_level"`
	SelfPrefix string `yaml:"self_prefix"`

	// Auth configures how mutating REST routes authenticate callers.
	Auth AuthConfig `yaml:"auth"`

	Store    StoreConfig    `yaml:"store"`
	Outbound OutboundConfig `yaml:"outbound"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Stats    StatsConfig    `yaml:"stats"`

	// Units overrides the preferred display measure per unit group, on top
	// of what the configuration store holds.
	Units map[string]string `yaml:"units"`
}

// AuthConfig controls client authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// StoreConfig selects the configuration store backend.
type StoreConfig struct {
	// Backend is one of: file | sqlite.
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// OutboundConfig configures publishing edits back to the bus.
type OutboundConfig struct {
	// Endpoint is the base URL of the bus server, e.g. http://localhost:3000.
	Endpoint string        `yaml:"endpoint"`
	TokenEnv string        `yaml:"token_env"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Token returns the bearer token resolved from the environment.
func (o OutboundConfig) Token() string {
	if o.TokenEnv == "" {
		return ""
	}
	return os.Getenv(o.TokenEnv)
}

// StatsConfig toggles the throughput counters.
type StatsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SlogLevel maps LogLevel to a slog.Level. Unknown values map to Info.
func (s ServerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Load reads and parses the config file at path.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config { return defaults() }

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:   DefaultHTTPPort,
			LogLevel:   DefaultLogLevel,
			SelfPrefix: DefaultSelfPrefix,
			Store: StoreConfig{
				Backend: DefaultStoreBackend,
				Path:    DefaultStorePath,
			},
			Outbound: OutboundConfig{
				Timeout: DefaultOutboundTimeout,
			},
			Alerts: AlertsConfig{
				Cooldown: DefaultCooldown,
			},
			Stats: StatsConfig{Enabled: true},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	switch s.Store.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("server.store.backend %q unknown: want file|sqlite", s.Store.Backend)
	}
	if s.Store.Path == "" {
		return fmt.Errorf("server.store.path must not be empty")
	}
	if s.Outbound.Timeout < 0 {
		return fmt.Errorf("server.outbound.timeout must not be negative")
	}
	if s.Alerts.Cooldown < 0 {
		return fmt.Errorf("server.alerts.cooldown must not be negative")
	}
	for i, wh := range s.Alerts.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d].type %q unknown: want slack|teams|http", i, wh.Type)
		}
	}
	return nil
}
