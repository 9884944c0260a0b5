// Package config loads the eventsift service configuration from YAML.
package config

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultListenAddr is the API listen address used when none is
	// configured.
	DefaultListenAddr = ":1218"

	// DefaultClickHouseAddr is the ClickHouse native-protocol address used
	// when none is configured.
	DefaultClickHouseAddr = "localhost:9000"
)

type (
	// ClickHouse holds the connection settings for the backing store.
	ClickHouse struct {
		// Addr is the host:port of the native interface.
		Addr string `yaml:"addr,omitempty"`

		// Database, Username and Password authenticate the connection.
		Database string `yaml:"database,omitempty"`
		Username string `yaml:"username,omitempty"`
		Password string `yaml:"password,omitempty"`

		// Table is the events table queried and written by the service.
		Table string `yaml:"table"`
	}

	// Config is the top-level service configuration.
	Config struct {
		// ListenAddr is the HTTP API bind address.
		ListenAddr string `yaml:"listen_addr,omitempty"`

		// ClickHouse configures the backing store.
		ClickHouse ClickHouse `yaml:"clickhouse"`
	}
)

// Load parses a configuration from r, applying defaults for omitted values.
//
// Example:
//
//	cfg, err := config.Load(strings.NewReader(`
//	listen_addr: ":1218"
//	clickhouse:
//	  addr: "clickhouse:9000"
//	  table: events
//	`))
func Load(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.ClickHouse.Addr == "" {
		cfg.ClickHouse.Addr = DefaultClickHouseAddr
	}
	if cfg.ClickHouse.Table == "" {
		return nil, errors.New("clickhouse.table is required")
	}

	return &cfg, nil
}

// LoadFile loads a configuration from the file at path.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open config file %s", path)
	}
	defer f.Close()

	return Load(f)
}
