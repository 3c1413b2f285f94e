package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/moneytrail/spendwise/internal/client"
	"github.com/moneytrail/spendwise/internal/cookiestore"
	"github.com/moneytrail/spendwise/internal/observability"
	"github.com/moneytrail/spendwise/internal/proxy"
	"github.com/moneytrail/spendwise/internal/session"
)

// SessionStorageType represents the backends supported for persisted session cookies.
type SessionStorageType string

const (
	SessionStorageTypeFile    SessionStorageType = "file"
	SessionStorageTypeEnv     SessionStorageType = "env"
	SessionStorageTypeKeyring SessionStorageType = "keyring"
	SessionStorageTypeMemory  SessionStorageType = "memory"
)

// keyringService names the keyring entry holding the session cookies.
const keyringService = "spendwise-session"

// Default configuration values
const (
	DefaultConfigLogFormat         = observability.FormatText
	DefaultConfigTelemetryExporter = observability.ExporterStdout
	DefaultConfigAPIBaseURL        = "http://localhost:8000/api"
	DefaultConfigAPITimeout        = 30 * time.Second
	DefaultConfigAPIUserAgent      = "spendwise-cli"
	DefaultConfigRefreshTimeout    = session.DefaultRefreshTimeout
	DefaultConfigCSRFCookie        = client.DefaultCSRFCookie
	DefaultConfigAuthStorage       = SessionStorageTypeFile
	DefaultConfigServerHost        = "127.0.0.1"
	DefaultConfigServerPort        = 4100
	DefaultConfigServerPrefix      = proxy.DefaultPrefix
	DefaultConfigShutdownTimeout   = 5 * time.Second
)

// TelemetryConfig selects where logs go when LogFormat is otel.
type TelemetryConfig struct {
	Exporter observability.Exporter `json:"exporter" validate:"oneof=stdout otlp-http otlp-grpc"`
	// Endpoint overrides the OTLP exporter endpoint. Empty uses the OTEL_* environment.
	Endpoint string `json:"endpoint,omitempty"`
}

// APIConfig holds the remote finance API settings.
type APIConfig struct {
	BaseURL   string        `json:"base_url" validate:"required,url"`
	Timeout   time.Duration `json:"timeout" validate:"gte=0"`
	UserAgent string        `json:"user_agent"`
}

// AuthConfig describes how the session is refreshed and where its cookies persist.
type AuthConfig struct {
	RefreshTimeout time.Duration `json:"refresh_timeout" validate:"gte=0"`
	CSRFCookie     string        `json:"csrf_cookie" validate:"required"`

	Storage SessionStorageType `json:"storage" validate:"required,oneof=file env keyring memory"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to the cookie file
	EnvKey      string `json:"env_key,omitempty"`      // For env storage: environment variable name
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewCookieStore creates the cookie store selected by the configuration.
func (a *AuthConfig) NewCookieStore() (cookiestore.Store, error) {
	switch a.Storage {
	case SessionStorageTypeFile:
		return cookiestore.NewFileStore(a.File)
	case SessionStorageTypeEnv:
		return cookiestore.NewEnvStore(a.EnvKey)
	case SessionStorageTypeKeyring:
		return cookiestore.NewKeyringStore(keyringService, a.KeyringUser)
	case SessionStorageTypeMemory:
		return cookiestore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// ServerConfig holds the local gateway listener configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
	// Prefix is the local path mapped onto the API base URL.
	Prefix string `json:"prefix" validate:"startswith=/"`
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level           `json:"log_level"`
	LogFormat observability.Format `json:"log_format" validate:"oneof=text json otel"`
	Telemetry TelemetryConfig      `json:"telemetry"`
	API       APIConfig            `json:"api"`
	Auth      AuthConfig           `json:"auth"`
	Server    ServerConfig         `json:"server"`
	Shutdown  ShutdownConfig       `json:"shutdown"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = DefaultConfigTelemetryExporter
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = DefaultConfigAPIUserAgent
	}
	if c.Auth.RefreshTimeout == 0 {
		c.Auth.RefreshTimeout = DefaultConfigRefreshTimeout
	}
	if c.Auth.CSRFCookie == "" {
		c.Auth.CSRFCookie = DefaultConfigCSRFCookie
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Server.Prefix == "" {
		c.Server.Prefix = DefaultConfigServerPrefix
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case SessionStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "spendwise", "session.json")
		}
	case SessionStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case SessionStorageTypeEnv:
		// env_key must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case SessionStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case SessionStorageTypeEnv:
		if c.Auth.EnvKey == "" {
			return errors.New("env_key required for env storage")
		}
	case SessionStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}
