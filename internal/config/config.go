// Package config loads fetchctl settings from defaults, an optional YAML file,
// a .env file and TURBOFETCH_ environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix = "TURBOFETCH_"

	// DefaultFile is read when no explicit path is given. It may be absent.
	DefaultFile = "turbofetch.yaml"

	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Client  ClientConfig  `koanf:"client"`
	CallLog CallLogConfig `koanf:"calllog"`
	Offline OfflineConfig `koanf:"offline"`
	Log     LogConfig     `koanf:"log"`
	Serve   ServeConfig   `koanf:"serve"`

	k *koanf.Koanf
}

type ClientConfig struct {
	BaseURL      string            `koanf:"baseurl" validate:"omitempty,url"`
	Timeout      time.Duration     `koanf:"timeout" validate:"gt=0"`
	MaxBodyBytes int64             `koanf:"maxbodybytes" validate:"gt=0"`
	Logging      bool              `koanf:"logging"`
	Page         string            `koanf:"page"`
	UserAgent    string            `koanf:"useragent"`
	Debug        bool              `koanf:"debug"`
	Headers      map[string]string `koanf:"headers"`
}

type CallLogConfig struct {
	Backend  string         `koanf:"backend" validate:"oneof=none memory mongo postgres"`
	Name     string         `koanf:"name"`
	Mongo    MongoConfig    `koanf:"mongo"`
	Postgres PostgresConfig `koanf:"postgres"`
}

type MongoConfig struct {
	URI        string `koanf:"uri"`
	Database   string `koanf:"database"`
	Collection string `koanf:"collection"`
}

type PostgresConfig struct {
	DSN         string        `koanf:"dsn"`
	Table       string        `koanf:"table"`
	LockTimeout time.Duration `koanf:"locktimeout" validate:"gte=0"`
}

type OfflineConfig struct {
	Enabled bool          `koanf:"enabled"`
	Backend string        `koanf:"backend" validate:"oneof=memory redis"`
	Name    string        `koanf:"name"`
	Page    string        `koanf:"page"`
	TTL     time.Duration `koanf:"ttl" validate:"gte=0"`
	Redis   RedisConfig   `koanf:"redis"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0,lte=15"`
}

// LogConfig controls the CLI's own logging. When File is set, output is
// duplicated into a size-rotated file.
type LogConfig struct {
	Level      string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Pretty     bool   `koanf:"pretty"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"maxsizemb" validate:"gte=0"`
	MaxBackups int    `koanf:"maxbackups" validate:"gte=0"`
	MaxAgeDays int    `koanf:"maxagedays" validate:"gte=0"`
	Compress   bool   `koanf:"compress"`
}

type ServeConfig struct {
	Addr            string        `koanf:"addr" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `koanf:"shutdowntimeout" validate:"gt=0"`
}

func defaults() map[string]any {
	return map[string]any{
		"client.baseurl":      "",
		"client.timeout":      "5s",
		"client.maxbodybytes": 10 << 20,
		"client.logging":      true,
		"client.page":         "",
		"client.useragent":    "",
		"client.debug":        false,

		"calllog.backend":              BackendMemory,
		"calllog.name":                 "ApiLogs",
		"calllog.mongo.database":       "ApiLogsDB",
		"calllog.mongo.collection":     "ApiLogs",
		"calllog.postgres.table":       "api_call_logs",
		"calllog.postgres.locktimeout": "2s",

		"offline.enabled":    false,
		"offline.backend":    BackendMemory,
		"offline.name":       "offline-cache",
		"offline.page":       "",
		"offline.ttl":        "10m",
		"offline.redis.addr": "localhost:6379",
		"offline.redis.db":   0,

		"log.level":      "info",
		"log.pretty":     true,
		"log.file":       "",
		"log.maxsizemb":  25,
		"log.maxbackups": 10,
		"log.maxagedays": 14,
		"log.compress":   true,

		"serve.addr":            "127.0.0.1:8089",
		"serve.shutdowntimeout": "10s",
	}
}

// Load builds a Config. path names a YAML file; an empty path tries
// DefaultFile and tolerates its absence, an explicit path must exist.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := loadFile(k, path); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnv,
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// transformEnv maps TURBOFETCH_CALLLOG_MONGO_URI to calllog.mongo.uri.
func transformEnv(key, value string) (string, any) {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "_", "."), value
}

// String returns a raw value by dotted key, for keys the struct does not
// model.
func (c *Config) String(key string) string {
	if c.k == nil {
		return ""
	}
	return c.k.String(key)
}

// Validate checks field constraints, then the rules that span fields.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	var errs []error
	switch cfg.CallLog.Backend {
	case BackendMongo:
		if cfg.CallLog.Mongo.URI == "" {
			errs = append(errs, errors.New("calllog.mongo.uri is required for the mongo backend"))
		}
	case BackendPostgres:
		if cfg.CallLog.Postgres.DSN == "" {
			errs = append(errs, errors.New("calllog.postgres.dsn is required for the postgres backend"))
		}
	}
	if cfg.Offline.Enabled && cfg.Offline.Backend == BackendRedis && cfg.Offline.Redis.Addr == "" {
		errs = append(errs, errors.New("offline.redis.addr is required for the redis backend"))
	}
	if cfg.Client.Logging && cfg.CallLog.Backend == BackendNone {
		errs = append(errs, errors.New("client.logging requires a calllog backend"))
	}
	return errors.Join(errs...)
}
