package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/Traejpg/mission-control-sub000/internal/index"
	"github.com/Traejpg/mission-control-sub000/internal/storage"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Sync    SyncConfig        `yaml:"sync"`
	Poll    PollConfig        `yaml:"poll"`
	Vault   VaultConfig       `yaml:"vault"`
	Gateway GatewayConfig     `yaml:"gateway"`
	Index   IndexConfig       `yaml:"index"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.Poll.Validate(); err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	if err := c.Vault.Validate(); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if err := c.Gateway.Validate(); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogBuffer int        `yaml:"log_buffer"`
	HTTP      HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogBuffer, validation.Min(0)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// MaxConnections caps concurrently accepted TCP connections; 0 means unlimited.
	MaxConnections int `yaml:"max_connections"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.MaxConnections, validation.Min(0)),
	)
}

// SyncConfig tunes the WebSocket hub.
type SyncConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SendTimeout       time.Duration `yaml:"send_timeout"`
	SendQueue         int           `yaml:"send_queue"`
	MaxMessageBytes   int64         `yaml:"max_message_bytes"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.HeartbeatInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.SendTimeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.SendQueue, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxMessageBytes, validation.Required, validation.Min(int64(1024))),
	)
}

// PollConfig holds the change detector intervals.
type PollConfig struct {
	// FastInterval drives the gateway sessions loop.
	FastInterval time.Duration `yaml:"fast_interval"`
	// SlowInterval drives the vault files loop.
	SlowInterval time.Duration `yaml:"slow_interval"`
}

// Validate validates the poll configuration.
func (c *PollConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FastInterval, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.SlowInterval, validation.Required, validation.Min(100*time.Millisecond)),
	)
}

// VaultConfig holds the Markdown vault settings.
type VaultConfig struct {
	Path    string `yaml:"path"`
	Pattern string `yaml:"pattern"`
	// Watch enables fsnotify-triggered polls on top of the slow loop.
	Watch bool `yaml:"watch"`
	// WriteThrough mirrors client writes and deletes into the vault.
	WriteThrough bool `yaml:"write_through"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Pattern, validation.Required),
	)
}

// GatewayConfig points at the upstream API reporting agent sessions.
// An empty URL disables the sessions loop.
type GatewayConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the gateway configuration.
func (c *GatewayConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, is.URL),
		validation.Field(&c.Timeout, validation.When(c.URL != "", validation.Required)),
	)
}

// Enabled reports whether the sessions loop should run.
func (c *GatewayConfig) Enabled() bool {
	return c.URL != ""
}

// IndexConfig holds the search index database settings.
type IndexConfig struct {
	DSN string `yaml:"dsn"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogBuffer: 200,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Sync: SyncConfig{
			HeartbeatInterval: 30 * time.Second,
			SendTimeout:       10 * time.Second,
			SendQueue:         256,
			MaxMessageBytes:   1 << 20,
		},
		Poll: PollConfig{
			FastInterval: 5 * time.Second,
			SlowInterval: 15 * time.Second,
		},
		Vault: VaultConfig{
			Path:         "./memory",
			Pattern:      storage.DefaultPattern,
			Watch:        true,
			WriteThrough: true,
		},
		Gateway: GatewayConfig{
			Timeout: 5 * time.Second,
		},
		Index: IndexConfig{
			DSN: index.DefaultDSN,
		},
	}
}
