package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"

	FeedMemory = "memory"
	FeedKafka  = "kafka"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Storage struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Question struct {
		TTL string `yaml:"ttl"`
	} `yaml:"question"`
	Feed struct {
		Driver      string   `yaml:"driver"`
		Brokers     []string `yaml:"brokers"`
		TopicPrefix string   `yaml:"topicPrefix"`
	} `yaml:"feed"`
	Export struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"export"`
}

// Load reads an optional .env file, the YAML config at path, then applies
// environment overrides. A missing config file is not an error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.SQLite.Path = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := cast.ToIntE(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Feed.Brokers = splitList(v)
		if cfg.Feed.Driver == "" {
			cfg.Feed.Driver = FeedKafka
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Driver == "" {
		// a configured postgres url implies postgres storage
		if cfg.Postgres.URL != "" {
			cfg.Storage.Driver = StoragePostgres
		} else {
			cfg.Storage.Driver = StorageMemory
		}
	}
	if cfg.Feed.Driver == "" {
		cfg.Feed.Driver = FeedMemory
	}
	if cfg.Feed.TopicPrefix == "" {
		cfg.Feed.TopicPrefix = "responses"
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "live-response.db"
	}
	if cfg.Export.Timezone == "" {
		cfg.Export.Timezone = "Asia/Seoul"
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Location resolves the export timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Export.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
