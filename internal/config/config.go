package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Production ProductionConfig `mapstructure:"production"`
	Demo       DemoConfig       `mapstructure:"demo"`
	Locale     LocaleConfig     `mapstructure:"locale"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the snapshot backend: sqlite, postgres or badger.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	Slot       string `mapstructure:"slot"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type ProductionConfig struct {
	ProfitPerEmpanada float64 `mapstructure:"profit_per_empanada"`
	SeedFile          string  `mapstructure:"seed_file"`
}

type DemoConfig struct {
	EnabledByDefault bool          `mapstructure:"enabled_by_default"`
	MinDelay         time.Duration `mapstructure:"min_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	MaxCount         int           `mapstructure:"max_count"`
	BackfillHours    int           `mapstructure:"backfill_hours"`
}

type LocaleConfig struct {
	Language string `mapstructure:"language"`
	Currency string `mapstructure:"currency"`
	Timezone string `mapstructure:"timezone"`
}

// NATSConfig enables change publishing when URL is set.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// Load reads the YAML file at path. An empty path uses defaults and the
// environment only. Variables use the PULSE_ prefix, e.g. PULSE_SERVER_HTTP_PORT.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadOptional is Load, but a missing file falls back to defaults.
func LoadOptional(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return Load(path)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.slot", "empanada-machine-demo")
	v.SetDefault("storage.sqlite_path", "./data/pulse.db")
	v.SetDefault("storage.badger_path", "./data/badger")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "pulse")
	v.SetDefault("database.user", "pulse")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("production.profit_per_empanada", 1.0)
	v.SetDefault("production.seed_file", "")

	v.SetDefault("demo.enabled_by_default", true)
	v.SetDefault("demo.min_delay", "1500ms")
	v.SetDefault("demo.max_delay", "4s")
	v.SetDefault("demo.max_count", 3)
	v.SetDefault("demo.backfill_hours", 8)

	v.SetDefault("locale.language", "en")
	v.SetDefault("locale.currency", "USD")
	v.SetDefault("locale.timezone", "Local")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "pulse.events")

	v.SetDefault("log.development", false)
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite", "postgres", "badger":
	default:
		return fmt.Errorf("unsupported storage backend %q (want sqlite, postgres or badger)", c.Storage.Backend)
	}
	if strings.TrimSpace(c.Storage.Slot) == "" {
		return fmt.Errorf("storage.slot must not be empty")
	}
	if c.Demo.MinDelay <= 0 || c.Demo.MaxDelay <= c.Demo.MinDelay {
		return fmt.Errorf("demo delays must satisfy 0 < min_delay < max_delay (got %s, %s)",
			c.Demo.MinDelay, c.Demo.MaxDelay)
	}
	if c.Demo.MaxCount <= 0 {
		return fmt.Errorf("demo.max_count must be positive, got %d", c.Demo.MaxCount)
	}
	if c.Production.ProfitPerEmpanada < 0 {
		return fmt.Errorf("production.profit_per_empanada must not be negative")
	}
	if _, err := c.Locale.Location(); err != nil {
		return err
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// Location resolves the configured time zone used for day boundaries.
func (l *LocaleConfig) Location() (*time.Location, error) {
	if l.Timezone == "" || l.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid locale.timezone %q: %w", l.Timezone, err)
	}
	return loc, nil
}
