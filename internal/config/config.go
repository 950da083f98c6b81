package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
	"git.home.luguber.info/inful/memobackup/internal/logfields"
)

// CurrentVersion is the only configuration format version understood by Load.
const CurrentVersion = "1.0"

// Config is the memobackup configuration file.
type Config struct {
	Version string        `yaml:"version"`
	Store   StoreConfig   `yaml:"store"`
	Sync    SyncConfig    `yaml:"sync"`
	Retry   RetryConfig   `yaml:"retry"`
	Remote  RemoteConfig  `yaml:"remote"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig locates the local key-value store.
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite file; defaults to <data_dir>/memos.db
}

// SyncConfig controls change detection and scheduling.
type SyncConfig struct {
	DebounceWindow time.Duration `yaml:"debounce_window"` // quiet period before a change-driven sync
	TickInterval   time.Duration `yaml:"tick_interval"`   // periodic fallback check frequency
	Keys           []string      `yaml:"keys"`            // exact sync-relevant keys
	KeyPrefixes    []string      `yaml:"key_prefixes"`    // sync-relevant key prefixes
	Label          string        `yaml:"label"`           // default backup file label
	WatchExternal  bool          `yaml:"watch_external"`  // watch the store file for writes by other processes
}

// RetryConfig controls retries of failed uploads.
type RetryConfig struct {
	Mode        RetryMode     `yaml:"mode"`
	Delay       time.Duration `yaml:"delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"` // total attempts per intent, including the first
}

// RemoteConfig selects and configures the backup target.
type RemoteConfig struct {
	Type    RemoteType       `yaml:"type"`
	Timeout time.Duration    `yaml:"timeout"`
	Dir     DirRemoteConfig  `yaml:"dir"`
	Git     GitRemoteConfig  `yaml:"git"`
	NATS    NATSRemoteConfig `yaml:"nats"`
	HTTP    HTTPRemoteConfig `yaml:"http"`
}

// DirRemoteConfig writes backups into a (typically synced) directory.
type DirRemoteConfig struct {
	Path string `yaml:"path"`
}

// GitRemoteConfig commits backups into a git repository and pushes them.
type GitRemoteConfig struct {
	URL         string `yaml:"url"`
	Branch      string `yaml:"branch"`
	Workdir     string `yaml:"workdir"`
	Username    string `yaml:"username"`
	Token       string `yaml:"token"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// NATSRemoteConfig stores backups in a JetStream key-value bucket.
type NATSRemoteConfig struct {
	URL     string `yaml:"url"`
	Bucket  string `yaml:"bucket"`
	Subject string `yaml:"subject"` // notices for non-silent uploads
}

// HTTPRemoteConfig uploads backups with PUT requests.
type HTTPRemoteConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// DaemonConfig controls the long-running process.
type DaemonConfig struct {
	AdminAddr string `yaml:"admin_addr"`
	DataDir   string `yaml:"data_dir"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads, expands, normalizes, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		slog.Debug("No .env file loaded", logfields.Error(err))
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, errors.ConfigError(fmt.Sprintf("configuration file not found: %s", configPath)).
			WithContext("path", configPath).
			Build()
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}

	return Parse(data)
}

// Parse builds a configuration from raw YAML, expanding ${VAR} references first.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to unmarshal config").Build()
	}

	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	if cfg.Version != CurrentVersion {
		return nil, errors.ConfigError(fmt.Sprintf("unsupported configuration version: %s (expected %s)", cfg.Version, CurrentVersion)).Build()
	}

	if err := normalize(&cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "normalize").Build()
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a fully defaulted configuration using the local directory remote.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	applyDefaults(cfg)
	return cfg
}
