package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig   `mapstructure:"server"`
	Database   DatabaseConfig `mapstructure:"database"`
	Schema     SchemaConfig   `mapstructure:"schema"`
	Log        LogConfig      `mapstructure:"log"`
	JWTSecret  string         `mapstructure:"jwt_secret"`
	AccessTTL  time.Duration  `mapstructure:"access_ttl"`
	RefreshTTL time.Duration  `mapstructure:"refresh_ttl"`
	// LoginRate is the number of login or refresh attempts allowed per
	// client IP per minute. Zero disables the limit.
	LoginRate int `mapstructure:"login_rate"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory holding the SQLite file
}

// SchemaConfig controls the schema editor core.
type SchemaConfig struct {
	// GeneratedNamespace prefixes class names of entities created without one.
	GeneratedNamespace string `mapstructure:"generated_namespace"`
	// TypesFile replaces the built-in type catalog when set.
	TypesFile string `mapstructure:"types_file"`
	// WatchTypes reloads TypesFile when it changes on disk.
	WatchTypes bool `mapstructure:"watch_types"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// Color is "auto", "always" or "never".
	Color string `mapstructure:"color"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return filepath.Join(d.Path, d.Name+".db")
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// IsMemory returns true when schema state is kept in process memory.
func (d DatabaseConfig) IsMemory() bool {
	return d.Driver == "memory"
}

// Load reads app.yaml from path (or the working directory when path is
// empty). A missing file is not an error; defaults and MDS_ environment
// variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("app")
		v.AddConfigPath(".")
		v.AddConfigPath("../..")
	}

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "mds")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("schema.generated_namespace", "mds.entity")
	v.SetDefault("schema.types_file", "")
	v.SetDefault("schema.watch_types", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.color", "auto")
	v.SetDefault("jwt_secret", "changeme-secret")
	v.SetDefault("access_ttl", "15m")
	v.SetDefault("refresh_ttl", "168h")
	v.SetDefault("login_rate", 10)

	v.SetEnvPrefix("MDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Schema.GeneratedNamespace) == "" {
		return fmt.Errorf("schema.generated_namespace must not be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret must not be empty")
	}
	if c.Schema.WatchTypes && c.Schema.TypesFile == "" {
		return fmt.Errorf("schema.watch_types requires schema.types_file")
	}
	if c.LoginRate < 0 {
		return fmt.Errorf("login_rate must not be negative")
	}
	return nil
}
