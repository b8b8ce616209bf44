// Package config loads the node's runtime configuration from a TOML file.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// NodeConfig describes one member of the cluster's address book.
type NodeConfig struct {
	ID   uint64 `toml:"id"`
	Addr string `toml:"addr"`
}

// Config is the full set of settings a spotmatchd process needs to start.
type Config struct {
	ID              uint64       `toml:"id"`
	StartWithLeader bool         `toml:"start_with_leader"`
	Addr            string       `toml:"addr"`
	MetricsAddr     string       `toml:"metrics_addr"`
	BasePath        string       `toml:"base_path"`
	LogLevel        string       `toml:"log_level"`
	LogJSON         bool         `toml:"log_json"`
	NodeList        []NodeConfig `toml:"node_list"`
}

// Default returns the configuration used when no file is present, matching
// a single-node development cluster.
func Default() Config {
	return Config{
		ID:              1,
		StartWithLeader: false,
		Addr:            "0.0.0.0:4000",
		MetricsAddr:     "0.0.0.0:4010",
		BasePath:        "./data",
		LogLevel:        "info",
		LogJSON:         false,
	}
}

// Load reads and parses a TOML config file at path. If the file does not
// exist, Default is returned rather than an error, matching a fresh
// development checkout with no config committed yet.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Peers returns the voter ids of the configured node list, used to bootstrap
// a fresh cluster.
func (c Config) Peers() []uint64 {
	ids := make([]uint64, 0, len(c.NodeList))
	for _, n := range c.NodeList {
		ids = append(ids, n.ID)
	}
	return ids
}

// PeerAddr looks up a peer's network address by id.
func (c Config) PeerAddr(id uint64) (string, bool) {
	for _, n := range c.NodeList {
		if n.ID == id {
			return n.Addr, true
		}
	}
	return "", false
}
