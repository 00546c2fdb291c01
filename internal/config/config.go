// Package config loads application settings from the config file and
// environment. Environment variables use the MB_ prefix and override the
// file, so MB_REMOTE_URL beats the remote_url key in config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds everything the CLI and server need to run.
type Config struct {
	// DataDir holds the local database, config file and logs.
	DataDir string `mapstructure:"data_dir"`

	// RemoteURL is the sync backend, e.g. "libsql://markbook-user.turso.io".
	// Empty means local-only mode.
	RemoteURL string `mapstructure:"remote_url"`

	// RemoteToken authenticates against the sync backend.
	RemoteToken string `mapstructure:"remote_token"`

	// UserID scopes remote rows to the signed-in teacher.
	UserID string `mapstructure:"user_id"`

	// DeviceID identifies this installation; generated on first load.
	DeviceID string `mapstructure:"device_id"`

	SyncInterval time.Duration `mapstructure:"sync_interval"`
	Debounce     time.Duration `mapstructure:"debounce"`

	ServerPort int    `mapstructure:"server_port"`
	StaticDir  string `mapstructure:"static_dir"`
	LogFile    string `mapstructure:"log_file"`

	v *viper.Viper
}

// Load reads the configuration. An absent config file is not an error;
// defaults plus environment apply.
func Load() (*Config, error) {
	dataDir := defaultDataDir()
	if env := os.Getenv("MB_DATA_DIR"); env != "" {
		dataDir = env
	}
	return LoadFrom(dataDir)
}

// LoadFrom reads the configuration rooted at the given data directory.
func LoadFrom(dataDir string) (*Config, error) {
	v := viper.New()
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("sync_interval", 30*time.Second)
	v.SetDefault("debounce", 150*time.Millisecond)
	v.SetDefault("server_port", 8374)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dataDir)
	v.SetEnvPrefix("MB")
	v.AutomaticEnv()
	// Unmarshal only sees keys viper knows about; bind each one so
	// env-only settings are picked up too.
	for _, key := range []string{
		"data_dir", "remote_url", "remote_token", "user_id", "device_id",
		"sync_interval", "debounce", "server_port", "static_dir", "log_file",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
		v.Set("device_id", cfg.DeviceID)
	}
	return cfg, nil
}

// DatabasePath returns the local snapshot database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "markbook.db")
}

// LogPath returns the server log location, honoring an override.
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, "markbook.log")
}

// RemoteBacked reports whether a signed-in remote is configured.
func (c *Config) RemoteBacked() bool {
	return c.RemoteURL != "" && c.UserID != ""
}

// Set updates a key in memory; Save persists all current values.
func (c *Config) Set(key string, value any) {
	c.v.Set(key, value)
}

// Save writes the configuration file under the data directory. Used by
// login/logout to persist credentials.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	path := filepath.Join(c.DataDir, "config.yaml")
	if err := c.v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".markbook"
	}
	return filepath.Join(home, ".markbook")
}
