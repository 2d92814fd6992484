package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Defaults used when a field is absent from the config file.
const (
	DefaultListen   = "127.0.0.1:8632"
	DefaultLogLevel = "info"
)

// Config represents ~/.convd/config.toml.
type Config struct {
	Listen   string `toml:"listen"`
	DataDir  string `toml:"data_dir"`
	LogLevel string `toml:"log_level"`
}

// Default returns a config with all defaults applied. The data
// directory defaults to ~/.convd.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Listen:   DefaultListen,
		DataDir:  filepath.Join(home, ".convd"),
		LogLevel: DefaultLogLevel,
	}
}

// Load reads config from the given path, filling unset fields with
// defaults. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
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

// DBPath returns the SQLite database path inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "convd.db")
}

// LogPath returns the daemon log file path inside the data directory.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "convd.log")
}
