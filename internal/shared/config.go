package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Source    RouterConfig    `toml:"source" envPrefix:"UMX_SOURCE_"`
	Target    RouterConfig    `toml:"target" envPrefix:"UMX_TARGET_"`
	Export    ExportConfig    `toml:"export"`
	Migration MigrationConfig `toml:"migration"`
	Schema    SchemaSet       `toml:"schema"`
	Database  DatabaseConfig  `toml:"database"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Log       LogConfig       `toml:"log"`
}

// RouterConfig contains the API endpoint and credentials of one RouterOS device.
type RouterConfig struct {
	Address  string `toml:"address" env:"ADDRESS"`
	Port     int    `toml:"port" env:"PORT"`
	Username string `toml:"username" env:"USERNAME"`
	Password string `toml:"password" env:"PASSWORD"`
	TLS      bool   `toml:"tls" env:"TLS"`
	Insecure bool   `toml:"insecure" env:"INSECURE"`
}

// ExportConfig controls the CSV audit artifact.
type ExportConfig struct {
	Enabled bool   `toml:"enabled" env:"UMX_EXPORT_ENABLED"`
	Path    string `toml:"path" env:"UMX_EXPORT_PATH"`
}

// MigrationConfig contains replication settings.
type MigrationConfig struct {
	DryRun      bool    `toml:"dry_run" env:"UMX_DRY_RUN"`
	RateLimit   float64 `toml:"rate_limit" env:"UMX_RATE_LIMIT"`
	DialTimeout string  `toml:"dial_timeout" env:"UMX_DIAL_TIMEOUT"`
	CallTimeout string  `toml:"call_timeout" env:"UMX_CALL_TIMEOUT"`
}

// SchemaSet holds the field tables of both device schemas.
type SchemaSet struct {
	Source SchemaConfig `toml:"source"`
	Target SchemaConfig `toml:"target"`
}

// SchemaConfig is a resource path plus a canonical-to-device field name table.
type SchemaConfig struct {
	Path   string              `toml:"path"`
	Fields map[string][]string `toml:"fields"`
}

// DatabaseConfig contains run history database settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"UMX_DATABASE_PATH"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// MetricsConfig contains the Prometheus textfile output location.
type MetricsConfig struct {
	Textfile string `toml:"textfile" env:"UMX_METRICS_TEXTFILE"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level" env:"UMX_LOG_LEVEL"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	// credentials may end up in this file
	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides config values with UMX_* environment variables that are set.
func ApplyEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("%w: failed to parse environment: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate reports the first missing or malformed setting required for a migration.
func (c *Config) Validate() error {
	if err := c.Source.validate("source"); err != nil {
		return err
	}
	if err := c.Target.validate("target"); err != nil {
		return err
	}
	if strings.TrimSpace(c.Schema.Source.Path) == "" {
		return fmt.Errorf("%w: source schema path is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Schema.Target.Path) == "" {
		return fmt.Errorf("%w: target schema path is required", ErrInvalidConfig)
	}

	if c.Migration.RateLimit < 0 {
		return fmt.Errorf("%w: rate_limit must not be negative", ErrInvalidConfig)
	}
	if _, err := c.DialTimeout(); err != nil {
		return err
	}
	if _, err := c.CallTimeout(); err != nil {
		return err
	}
	return nil
}

func (r RouterConfig) validate(name string) error {
	if strings.TrimSpace(r.Address) == "" {
		return fmt.Errorf("%w: %s address is required", ErrInvalidConfig, name)
	}
	if strings.TrimSpace(r.Username) == "" {
		return fmt.Errorf("%w: %s username is required", ErrMissingCredentials, name)
	}
	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("%w: %s port %d out of range", ErrInvalidConfig, name, r.Port)
	}
	return nil
}

// DialTimeout parses migration.dial_timeout; an empty value disables the bound.
func (c *Config) DialTimeout() (time.Duration, error) {
	return parseDuration("dial_timeout", c.Migration.DialTimeout)
}

// CallTimeout parses migration.call_timeout; an empty value disables the bound.
func (c *Config) CallTimeout() (time.Duration, error) {
	return parseDuration("call_timeout", c.Migration.CallTimeout)
}

func parseDuration(name, value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s %q is not a valid duration", ErrInvalidConfig, name, value)
	}
	return d, nil
}
