package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/stratumhq/dbflow/pkg/routing"
)

// Supported database drivers.
const (
	DriverPostgres  = "postgres"
	DriverSQLServer = "sqlserver"
)

// Config holds all configuration for dbflow.
// Configuration can come from a YAML file or environment variables;
// environment variables override YAML values. Passwords must only come from
// environment variables, named per database by password_env.
type Config struct {
	// DefaultDatabase is the identifier resolution falls back to when no
	// registration, declaration, or ambient value applies.
	DefaultDatabase string `yaml:"default_database" env:"DBFLOW_DEFAULT_DATABASE" env-default:"Default"`

	// Databases are the connection targets routing decisions refer to.
	Databases []DatabaseConfig `yaml:"databases"`

	// Routing holds declarative name-keyed routing rules, the configuration
	// analog of in-code declarations.
	Routing RoutingRules `yaml:"routing"`
}

// DatabaseConfig describes one connection target.
type DatabaseConfig struct {
	ID       string `yaml:"id"`
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	// PasswordEnv names the environment variable holding this database's
	// password. Secrets never live in YAML.
	PasswordEnv string `yaml:"password_env"`

	MaxConns int32 `yaml:"max_conns"`
	MinConns int32 `yaml:"min_conns"`
}

// Password resolves the database password from the environment.
func (d *DatabaseConfig) Password() string {
	if d.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(d.PasswordEnv)
}

// RoutingRules maps entity type names and operation identities to database
// identifiers.
type RoutingRules struct {
	Entities   map[string]string `yaml:"entities"`
	Operations map[string]string `yaml:"operations"`
}

// Load reads configuration from the given YAML file with environment
// variable overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks database definitions and that every routing rule targets
// a configured database or the default identifier.
func (c *Config) Validate() error {
	ids := make(map[string]struct{}, len(c.Databases))
	for i := range c.Databases {
		db := &c.Databases[i]
		if db.ID == "" {
			return fmt.Errorf("database %d has no id", i)
		}
		if _, dup := ids[db.ID]; dup {
			return fmt.Errorf("duplicate database id %q", db.ID)
		}
		ids[db.ID] = struct{}{}
		switch db.Driver {
		case DriverPostgres, DriverSQLServer:
		default:
			return fmt.Errorf("database %q: unsupported driver %q", db.ID, db.Driver)
		}
	}

	check := func(kind, name, target string) error {
		if target == c.DefaultDatabase || target == string(routing.DefaultDatabase) {
			return nil
		}
		if _, ok := ids[target]; !ok {
			return fmt.Errorf("routing rule for %s %q targets unknown database %q", kind, name, target)
		}
		return nil
	}
	for name, target := range c.Routing.Entities {
		if err := check("entity", name, target); err != nil {
			return err
		}
	}
	for identity, target := range c.Routing.Operations {
		if err := check("operation", identity, target); err != nil {
			return err
		}
	}
	return nil
}

// Database returns the configuration for id.
func (c *Config) Database(id string) (DatabaseConfig, bool) {
	for _, db := range c.Databases {
		if db.ID == id {
			return db, true
		}
	}
	return DatabaseConfig{}, false
}

// StaticProvider turns the routing rules into a metadata provider for the
// router's declared-metadata tier.
func (c *Config) StaticProvider() *routing.StaticProvider {
	entities := make(map[string]routing.DatabaseID, len(c.Routing.Entities))
	for name, target := range c.Routing.Entities {
		entities[name] = routing.DatabaseID(target)
	}
	operations := make(map[string]routing.DatabaseID, len(c.Routing.Operations))
	for identity, target := range c.Routing.Operations {
		operations[identity] = routing.DatabaseID(target)
	}
	return routing.NewStaticProvider(entities, operations)
}
