// Package config loads the shared YAML configuration for the three platform
// services. A missing file yields defaults; a present file overlays them.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DataStore holds configuration for the data store service.
type DataStore struct {
	BindAddress  string `yaml:"bind_address"`
	Port         int    `yaml:"port"`
	SnapshotPath string `yaml:"snapshot_path"`
}

// DataStoreAddr points a dependent service at the data store.
type DataStoreAddr struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (d DataStoreAddr) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// Lobby holds configuration for the lobby service.
type Lobby struct {
	BindAddress string        `yaml:"bind_address"`
	Port        int           `yaml:"port"`
	DataStore   DataStoreAddr `yaml:"datastore"`
	PoolSize    int           `yaml:"pool_size"`

	// Bundle tree shared with the developer service (read-only here).
	BundleRoot string `yaml:"bundle_root"`

	// Game server spawning.
	GamePortMin   int    `yaml:"game_port_min"`
	GamePortMax   int    `yaml:"game_port_max"` // exclusive
	Runner        string `yaml:"runner"`
	SettleDelayMS int    `yaml:"settle_delay_ms"`
}

// Developer holds configuration for the developer service.
type Developer struct {
	BindAddress string        `yaml:"bind_address"`
	Port        int           `yaml:"port"`
	DataStore   DataStoreAddr `yaml:"datastore"`
	PoolSize    int           `yaml:"pool_size"`
	BundleRoot  string        `yaml:"bundle_root"`
}

// Config is the whole platform configuration; each binary reads its own
// section.
type Config struct {
	LogLevel  string    `yaml:"log_level"`
	DataStore DataStore `yaml:"datastore"`
	Lobby     Lobby     `yaml:"lobby"`
	Developer Developer `yaml:"developer"`
}

// Level maps LogLevel onto a slog level; unknown values mean info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns a fully populated configuration.
func Default() Config {
	ds := DataStoreAddr{Host: "127.0.0.1", Port: 17047}
	return Config{
		LogLevel: "info",
		DataStore: DataStore{
			BindAddress:  "0.0.0.0",
			Port:         17047,
			SnapshotPath: "database.json",
		},
		Lobby: Lobby{
			BindAddress:   "0.0.0.0",
			Port:          17048,
			DataStore:     ds,
			PoolSize:      4,
			BundleRoot:    "uploaded_games",
			GamePortMin:   10100,
			GamePortMax:   11000,
			Runner:        "python3",
			SettleDelayMS: 2500,
		},
		Developer: Developer{
			BindAddress: "0.0.0.0",
			Port:        17049,
			DataStore:   ds,
			PoolSize:    4,
			BundleRoot:  "uploaded_games",
		},
	}
}

// Load reads the config file at path. A missing file returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
