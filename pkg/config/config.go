package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigFile is read by Load when present.
const DefaultConfigFile = "config.yaml"

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config holds all configuration for labqms.
// Values come from config.yaml with environment variable overrides.
// Secrets (passwords, keys) come only from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // derived from Port if empty
	Version  string `yaml:"-"`                                      // set at load time

	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Backup   BackupConfig   `yaml:"backup"`
}

// AuthConfig holds how the acting user is identified.
type AuthConfig struct {
	// DefaultActor is recorded as closedBy when a request carries no user name.
	DefaultActor string `yaml:"default_actor" env:"AUTH_DEFAULT_ACTOR" env-default:"system"`
	// UserHeader names the request header carrying the acting user's display name.
	UserHeader string `yaml:"user_header" env:"AUTH_USER_HEADER" env-default:"X-User-Name"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver     string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`
	SQLitePath string `yaml:"sqlite_path" env:"STORAGE_SQLITE_PATH" env-default:"data/labqms.db"`
	// SeedFile is a YAML list of non-conformities bulk-loaded into an empty store.
	SeedFile string `yaml:"seed_file" env:"STORAGE_SEED_FILE" env-default:""`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string        `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int           `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string        `yaml:"user" env:"PGUSER" env-default:"labqms"`
	Password       string        `yaml:"-" env:"PGPASSWORD"` // secret
	Database       string        `yaml:"database" env:"PGDATABASE" env-default:"labqms"`
	SSLMode        string        `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32         `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	MaxConnIdle    time.Duration `yaml:"max_conn_idle" env:"PGMAX_CONN_IDLE" env-default:"30m"`
}

// RedisConfig enables the cross-replica allocation lock. Empty Host disables it.
type RedisConfig struct {
	Host     string        `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string        `yaml:"-" env:"REDIS_PASSWORD"` // secret
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	LockTTL  time.Duration `yaml:"lock_ttl" env:"REDIS_LOCK_TTL" env-default:"10s"`
}

// BackupConfig configures the S3-compatible archive store. Empty Bucket
// disables archiving; export and restore still work.
type BackupConfig struct {
	Bucket       string `yaml:"bucket" env:"BACKUP_S3_BUCKET" env-default:""`
	Region       string `yaml:"region" env:"BACKUP_S3_REGION" env-default:"us-east-1"`
	Endpoint     string `yaml:"endpoint" env:"BACKUP_S3_ENDPOINT" env-default:""`
	UsePathStyle bool   `yaml:"use_path_style" env:"BACKUP_S3_PATH_STYLE" env-default:"false"`
	Prefix       string `yaml:"prefix" env:"BACKUP_S3_PREFIX" env-default:"backups/"`

	// Static credentials; when empty the default AWS credential chain is used.
	AccessKeyID     string `yaml:"-" env:"BACKUP_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"-" env:"BACKUP_S3_SECRET_ACCESS_KEY"`
}

// Enabled reports whether an archive bucket is configured.
func (b *BackupConfig) Enabled() bool { return b.Bucket != "" }

// Load reads config.yaml from the working directory with environment
// variable overrides. A missing file is not an error; defaults and the
// environment are used instead.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultConfigFile, version)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{Version: version}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case errors.Is(statErr, os.ErrNotExist):
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", path, statErr)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)
	cfg.Redis.Host = ResolveHostForDocker(cfg.Redis.Host)

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{Scheme: "http", Host: "localhost:" + cfg.Port}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q (want memory, sqlite or postgres)", c.Storage.Driver)
	}
	if c.Storage.Driver == StorageSQLite && c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
	}
	if c.Auth.DefaultActor == "" {
		return fmt.Errorf("auth.default_actor must not be empty")
	}
	if c.Redis.Host != "" && c.Redis.LockTTL <= 0 {
		return fmt.Errorf("redis.lock_ttl must be positive")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
