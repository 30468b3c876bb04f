/*
Package config loads server configuration.

PRECEDENCE (lowest to highest):
  1. Defaults
  2. YAML file (optional, --config)
  3. Environment: STOCK_DB_DRIVER, STOCK_DB_DSN, STOCK_PORT,
     STOCK_LOG_LEVEL, STOCK_ENVIRONMENT, STOCK_MAX_RETRIES
  4. Command-line flags (applied by cmd/server)

EXAMPLE FILE:
  port: 8080
  environment: production
  log_level: info
  database:
    driver: mysql
    dsn: "stock:secret@tcp(db:3306)/stock"
  engine:
    max_retries: 5
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/warp/batch-stock/inventory"
	"github.com/warp/batch-stock/logging"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int      `yaml:"port"`
	Environment string   `yaml:"environment"`
	LogLevel    string   `yaml:"log_level"`
	Database    Database `yaml:"database"`
	Engine      Engine   `yaml:"engine"`
	CORS        CORS     `yaml:"cors"`
}

type Database struct {
	// Driver is "sqlite3", "mysql" or "memory".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Engine struct {
	MaxRetries int `yaml:"max_retries"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func Default() Config {
	return Config{
		Port:        8080,
		Environment: "development",
		LogLevel:    string(logging.LevelInfo),
		Database: Database{
			Driver: "sqlite3",
			DSN:    "stock.db",
		},
		Engine: Engine{MaxRetries: inventory.DefaultMaxRetries},
		CORS: CORS{
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
	}
}

// Load reads defaults, then path (if non-empty), then the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("STOCK_DB_DRIVER"); ok {
		c.Database.Driver = v
	}
	if v, ok := lookup("STOCK_DB_DSN"); ok {
		c.Database.DSN = v
	}
	if v, ok := lookup("STOCK_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("STOCK_ENVIRONMENT"); ok {
		c.Environment = v
	}
	if v, ok := lookup("STOCK_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STOCK_PORT: %w", err)
		}
		c.Port = port
	}
	if v, ok := lookup("STOCK_MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STOCK_MAX_RETRIES: %w", err)
		}
		c.Engine.MaxRetries = n
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Database.Driver {
	case "sqlite3", "sqlite", "mysql":
		if c.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("database dsn is required for driver %q", c.Database.Driver))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Engine.MaxRetries < 0 {
		errs = append(errs, errors.New("engine max_retries must not be negative"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
