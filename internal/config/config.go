package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied when a field is absent from the config file.
const (
	DefaultSyncIntervalSecs   = 300
	DefaultProbeIntervalSecs  = 30
	DefaultRequestTimeoutSecs = 10
	DefaultOnlineSettleMillis = 2000
	DefaultMaxRetries         = 3
)

// Config represents the global ~/.medisync/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	ServerURL      string `toml:"server_url"`
	AuthToken      string `toml:"auth_token"`

	SyncIntervalSecs   int `toml:"sync_interval_secs"`
	ProbeIntervalSecs  int `toml:"probe_interval_secs"`
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
	OnlineSettleMillis int `toml:"online_settle_millis"`
	MaxRetries         int `toml:"max_retries"`
}

// Default returns a config with all defaults applied and no portal
// credentials. The daemon runs offline-only until server_url is set.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads config from the given path and fills in defaults for
// unset duration and retry fields. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) applyDefaults() {
	if c.SyncIntervalSecs <= 0 {
		c.SyncIntervalSecs = DefaultSyncIntervalSecs
	}
	if c.ProbeIntervalSecs <= 0 {
		c.ProbeIntervalSecs = DefaultProbeIntervalSecs
	}
	if c.RequestTimeoutSecs <= 0 {
		c.RequestTimeoutSecs = DefaultRequestTimeoutSecs
	}
	if c.OnlineSettleMillis <= 0 {
		c.OnlineSettleMillis = DefaultOnlineSettleMillis
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
}

// SyncInterval returns the periodic sync trigger interval.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSecs) * time.Second
}

// ProbeInterval returns the connectivity watcher poll interval.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSecs) * time.Second
}

// RequestTimeout returns the per-request timeout for the remote API client.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// OnlineSettle returns the debounce delay applied to offline-to-online
// edges before a sync cycle is triggered.
func (c *Config) OnlineSettle() time.Duration {
	return time.Duration(c.OnlineSettleMillis) * time.Millisecond
}
