// Package config loads application configuration from a YAML file with
// environment variable overrides layered on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Worker     WorkerConfig     `yaml:"worker"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Vendor     VendorConfig     `yaml:"vendor"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis connection and queue settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	QueueKey string `yaml:"queue_key"`
}

// WorkerConfig holds task runner settings.
type WorkerConfig struct {
	NumWorkers int `yaml:"num_workers"`
	PageSize   int `yaml:"page_size"`
}

// AggregatorConfig holds receipt aggregation settings.
type AggregatorConfig struct {
	BatchSize            int `yaml:"batch_size"`
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`
}

// FlushInterval returns the flush interval as a duration.
func (a AggregatorConfig) FlushInterval() time.Duration {
	return time.Duration(a.FlushIntervalSeconds) * time.Second
}

// VendorConfig holds delivery vendor simulator settings.
type VendorConfig struct {
	CallbackURL   string  `yaml:"callback_url"`
	SuccessRate   float64 `yaml:"success_rate"`
	MaxDelayMilli int     `yaml:"max_delay_ms"`
}

// MaxDelay returns the maximum simulated vendor latency.
func (v VendorConfig) MaxDelay() time.Duration {
	return time.Duration(v.MaxDelayMilli) * time.Millisecond
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			URL:             "postgres://localhost:5432/crm?sslmode=disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			QueueKey: "crm:tasks",
		},
		Worker: WorkerConfig{NumWorkers: 4, PageSize: 500},
		Aggregator: AggregatorConfig{
			BatchSize:            50,
			FlushIntervalSeconds: 5,
		},
		Vendor: VendorConfig{
			CallbackURL:   "http://localhost:8080/api/delivery-receipt",
			SuccessRate:   0.9,
			MaxDelayMilli: 2000,
		},
	}
}

// Load reads configuration from a YAML file, starting from defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv loads the YAML file if present and applies environment
// overrides. A .env file is honored if one exists.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := Load(path)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = n
		}
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if key := os.Getenv("QUEUE_KEY"); key != "" {
		cfg.Redis.QueueKey = key
	}
	if n := os.Getenv("WORKER_COUNT"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Worker.NumWorkers = v
		}
	}
	if n := os.Getenv("AGGREGATOR_BATCH_SIZE"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Aggregator.BatchSize = v
		}
	}
	if url := os.Getenv("VENDOR_CALLBACK_URL"); url != "" {
		cfg.Vendor.CallbackURL = url
	}
	if rate := os.Getenv("VENDOR_SUCCESS_RATE"); rate != "" {
		if v, err := strconv.ParseFloat(rate, 64); err == nil {
			cfg.Vendor.SuccessRate = v
		}
	}
	return cfg, nil
}
