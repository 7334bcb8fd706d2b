package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Storage backend selectors for the daemon.
const (
	StorageCassandra = "cassandra"
	StorageMemory    = "memory"
)

// Config represents the daemon's config.toml.
type Config struct {
	ListenAddr string    `toml:"listen_addr"`
	DataDir    string    `toml:"data_dir"`
	LogPath    string    `toml:"log_path"`
	Storage    string    `toml:"storage"`
	Cassandra  Cassandra `toml:"cassandra"`
}

// Cassandra holds cluster connection settings. Timeouts are in seconds.
type Cassandra struct {
	Hosts          []string `toml:"hosts"`
	Port           int      `toml:"port"`
	Keyspace       string   `toml:"keyspace"`
	ConnectTimeout int      `toml:"connect_timeout"`
	RequestTimeout int      `toml:"request_timeout"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddr: "127.0.0.1:8080",
		DataDir:    "data",
		LogPath:    "courierd.log",
		Storage:    StorageCassandra,
		Cassandra: Cassandra{
			Hosts:          []string{"127.0.0.1"},
			Port:           9042,
			Keyspace:       "courier",
			ConnectTimeout: 10,
			RequestTimeout: 10,
		},
	}
}

// Load reads config from the given path, filling unset fields with defaults.
// A missing file is an error; use Default directly for a fileless setup.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageCassandra, StorageMemory:
	default:
		return fmt.Errorf("config: unknown storage %q", c.Storage)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr is required")
	}
	if c.Storage == StorageCassandra {
		if len(c.Cassandra.Hosts) == 0 {
			return fmt.Errorf("config: cassandra.hosts is required")
		}
		if c.Cassandra.Keyspace == "" {
			return fmt.Errorf("config: cassandra.keyspace is required")
		}
	}
	return nil
}

// DialTimeout returns the connect timeout as a duration.
func (c Cassandra) DialTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// QueryTimeout returns the per-request timeout as a duration.
func (c Cassandra) QueryTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
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
