package app

import (
	"fmt"
	"strings"

	coreconfig "github.com/m3rciful/flowbot/core/config"
	"github.com/m3rciful/flowbot/core/database"
	"github.com/m3rciful/flowbot/core/valkey"
)

const defaultSQLitePath = "flowbot.db"

// Config is the process configuration: the core sections plus the
// infrastructure the core packages cannot import themselves.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database database.Config `yaml:"database"`
	Valkey   valkey.Config   `yaml:"valkey"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// LoadConfig reads path, overlays the environment and validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	db := &cfg.Database
	db.Driver = db.DriverName()
	switch db.Driver {
	case database.DriverPostgres:
		db.Host = orDefault(db.Host, "localhost")
		db.Port = orDefault(db.Port, "5432")
		db.SSLMode = orDefault(db.SSLMode, "disable")
	case database.DriverSQLite:
		db.Path = orDefault(db.Path, defaultSQLitePath)
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: postgres, sqlite", cfg.Database.Driver)
	}

	if db.MaxConnections < 0 {
		return fmt.Errorf("database.max_connections must be >= 0")
	}

	cfg.Valkey.Address = strings.TrimSpace(cfg.Valkey.Address)
	return nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
