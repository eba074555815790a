// Package config loads server settings from defaults, an optional YAML file
// and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend names
const (
	StorageFile  = "file"
	StorageRedis = "redis"
	StorageBolt  = "bolt"
)

// Config is the full server configuration
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Mail     MailConfig     `yaml:"mail"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	LogLevel string         `yaml:"log_level"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type     string `yaml:"type"`
	DataDir  string `yaml:"data_dir"`
	FileName string `yaml:"file_name"`
	RedisURL string `yaml:"redis_url"`
	// BoltPath defaults to mail.db inside DataDir
	BoltPath string `yaml:"bolt_path"`
}

// BoltFile returns the bbolt database path
func (s StorageConfig) BoltFile() string {
	if s.BoltPath != "" {
		return s.BoltPath
	}
	return filepath.Join(s.DataDir, "mail.db")
}

// ServerConfig holds HTTP settings
type ServerConfig struct {
	Port int `yaml:"port"`
	// APITokenHash is a bcrypt hash; when set, API requests need the matching bearer token
	APITokenHash string `yaml:"api_token_hash"`
}

// MailConfig holds mail service settings
type MailConfig struct {
	PageSize         int           `yaml:"page_size"`
	CleanupEnabled   bool          `yaml:"cleanup_enabled"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
	CleanupDelay     time.Duration `yaml:"cleanup_delay"`
	CleanupThreshold time.Duration `yaml:"cleanup_threshold"`
}

// SnapshotConfig controls periodic saving of the file backend
type SnapshotConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Type:     StorageFile,
			DataDir:  "data",
			FileName: "data.json",
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Mail: MailConfig{
			PageSize:         10,
			CleanupEnabled:   false,
			CleanupInterval:  120 * time.Minute,
			CleanupDelay:     time.Minute,
			CleanupThreshold: 7 * 24 * time.Hour,
		},
		Snapshot: SnapshotConfig{
			Interval: 2 * time.Minute,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration. The YAML file named by CONFIG_FILE, or
// path when that is unset, is applied over the defaults if it exists;
// environment variables are applied last.
func Load(path string) (Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if p := getenv("CONFIG_FILE"); p != "" {
		path = p
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("STORAGE_TYPE"); v != "" {
		c.Storage.Type = strings.ToLower(v)
	}
	if v := getenv("DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.Storage.RedisURL = v
	}
	if v := getenv("BOLT_PATH"); v != "" {
		c.Storage.BoltPath = v
	}
	if v := getenv("LISTEN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LISTEN_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("API_TOKEN_HASH"); v != "" {
		c.Server.APITokenHash = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case StorageFile, StorageBolt:
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			return errors.New("redis_url required when storage type is redis")
		}
	default:
		return fmt.Errorf("invalid storage type %q: must be file, redis or bolt", c.Storage.Type)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Snapshot.Interval <= 0 {
		return errors.New("snapshot interval must be positive")
	}
	if c.Mail.CleanupEnabled && c.Mail.CleanupInterval <= 0 {
		return errors.New("cleanup interval must be positive")
	}
	if c.Mail.CleanupDelay < 0 {
		return errors.New("cleanup delay must not be negative")
	}
	return nil
}
