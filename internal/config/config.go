// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.repwise/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: provider, model name, generation limits
//   - Storage: PostgreSQL connection
//   - Server: HTTP listen address and websocket heartbeat timeout
//   - Coach: conversation compaction and bundle window tuning
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidHeartbeatTimeout indicates the websocket heartbeat timeout is out of range.
	ErrInvalidHeartbeatTimeout = errors.New("invalid heartbeat timeout")

	// ErrInvalidCompaction indicates the compaction thresholds are inconsistent.
	ErrInvalidCompaction = errors.New("invalid compaction configuration")

	// ErrInvalidBundleWindow indicates the bundle data window is out of range.
	ErrInvalidBundleWindow = errors.New("invalid bundle window")
)

const (
	// DefaultHeartbeatTimeoutSeconds is how long the coach websocket waits
	// for a client heartbeat before closing the connection.
	DefaultHeartbeatTimeoutSeconds = 60

	// DefaultCompactionThreshold is the message-history length above which
	// background compaction is started.
	DefaultCompactionThreshold = 30

	// DefaultCompactionKeep is the number of most recent messages kept
	// verbatim when compaction truncates the history.
	DefaultCompactionKeep = 10

	// DefaultBundleWindowDays is the workout lookback window for bundle
	// regeneration.
	DefaultBundleWindowDays = 30
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI provider and model configuration
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // Provider-qualified model (e.g. "googleai/gemini-2.5-flash")
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Server configuration
	ListenAddr              string `mapstructure:"listen_addr" json:"listen_addr"`
	HeartbeatTimeoutSeconds int    `mapstructure:"heartbeat_timeout_seconds" json:"heartbeat_timeout_seconds"`

	// Coach session tuning
	CompactionThreshold int `mapstructure:"compaction_threshold" json:"compaction_threshold"`
	CompactionKeep      int `mapstructure:"compaction_keep" json:"compaction_keep"`
	BundleWindowDays    int `mapstructure:"bundle_window_days" json:"bundle_window_days"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".repwise")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when present.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("model_name", "googleai/gemini-2.5-flash")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 4096)

	// Server defaults
	v.SetDefault("listen_addr", "127.0.0.1:3500")
	v.SetDefault("heartbeat_timeout_seconds", DefaultHeartbeatTimeoutSeconds)

	// Coach defaults
	v.SetDefault("compaction_threshold", DefaultCompactionThreshold)
	v.SetDefault("compaction_keep", DefaultCompactionKeep)
	v.SetDefault("bundle_window_days", DefaultBundleWindowDays)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "repwise")
	v.SetDefault("postgres_password", "repwise_dev_password")
	v.SetDefault("postgres_db_name", "repwise")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables(v *viper.Viper) {
	v.SetEnvPrefix("REPWISE")
	v.AutomaticEnv()

	// Sensitive values are only accepted from the environment.
	_ = v.BindEnv("postgres_password", "REPWISE_POSTGRES_PASSWORD", "POSTGRES_PASSWORD")
}

// Validate performs fail-fast validation of the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.ModelName == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if c.HeartbeatTimeoutSeconds < 1 {
		return fmt.Errorf("%w: %d seconds", ErrInvalidHeartbeatTimeout, c.HeartbeatTimeoutSeconds)
	}
	if c.CompactionThreshold < 1 || c.CompactionKeep < 1 || c.CompactionKeep >= c.CompactionThreshold {
		return fmt.Errorf("%w: threshold=%d keep=%d", ErrInvalidCompaction, c.CompactionThreshold, c.CompactionKeep)
	}
	if c.BundleWindowDays < 1 || c.BundleWindowDays > 365 {
		return fmt.Errorf("%w: %d days", ErrInvalidBundleWindow, c.BundleWindowDays)
	}
	return nil
}

// MarshalJSON masks sensitive fields when the configuration is serialized.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	masked := alias(c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "***"
	}
	return json.Marshal(masked)
}
