package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Upstream UpstreamConfig `yaml:"upstream"`
	ML       MLConfig       `yaml:"ml"`
	Cache    CacheConfig    `yaml:"cache"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig selects and configures the store backend
type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // postgres or sqlite
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	DBName     string `yaml:"dbname"`
	SSLMode    string `yaml:"sslmode"`
	SQLitePath string `yaml:"sqlite_path"`
}

// KafkaConfig holds Kafka configuration. Empty brokers disables events.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	RequestsTopic string   `yaml:"requests_topic"`
	GroupID       string   `yaml:"group_id"`
}

// Enabled reports whether a broker is configured
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Brokers[0] != ""
}

// RedisConfig configures the HTTP response cache. Empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLSec   int    `yaml:"ttl_sec"`
}

// UpstreamConfig configures the price history provider
type UpstreamConfig struct {
	YahooBaseURL      string  `yaml:"yahoo_base_url"`
	TimeoutSec        int     `yaml:"timeout_sec"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// MLConfig configures the prediction service client
type MLConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// CacheConfig holds history cache defaults
type CacheConfig struct {
	HistoryTTLSec int `yaml:"history_ttl_sec"`
}

// SweeperConfig schedules the stale-series refresh job
type SweeperConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Cron       string `yaml:"cron"`
	StaleAfter int    `yaml:"stale_after_sec"`
	Months     int    `yaml:"months"`
	BatchLimit int    `yaml:"batch_limit"`
}

// LogConfig holds logging options
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Host: "0.0.0.0"},
		Database: DatabaseConfig{
			Driver:     "postgres",
			Host:       "localhost",
			Port:       "5432",
			User:       "postgres",
			Password:   "postgres",
			DBName:     "nextworth",
			SSLMode:    "disable",
			SQLitePath: "data/marketdata.db",
		},
		Kafka: KafkaConfig{
			Topic:         "marketdata-events",
			RequestsTopic: "marketdata-refresh-requests",
			GroupID:       "marketdata-cache",
		},
		Redis: RedisConfig{TTLSec: 60},
		Upstream: UpstreamConfig{
			YahooBaseURL:      "https://query1.finance.yahoo.com",
			TimeoutSec:        15,
			RequestsPerSecond: 2,
			Burst:             5,
		},
		ML:    MLConfig{BaseURL: "http://localhost:8000", TimeoutSec: 30},
		Cache: CacheConfig{HistoryTTLSec: 3600},
		Sweeper: SweeperConfig{
			Enabled:    true,
			Cron:       "0 */30 * * * *",
			StaleAfter: 24 * 3600,
			Months:     24,
			BatchLimit: 50,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.SQLitePath = getEnv("SQLITE_PATH", c.Database.SQLitePath)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)
	c.Kafka.RequestsTopic = getEnv("KAFKA_REQUESTS_TOPIC", c.Kafka.RequestsTopic)
	c.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", c.Kafka.GroupID)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.TTLSec = getEnvInt("REDIS_TTL_SEC", c.Redis.TTLSec)

	c.Upstream.YahooBaseURL = getEnv("YAHOO_BASE_URL", c.Upstream.YahooBaseURL)
	c.Upstream.TimeoutSec = getEnvInt("UPSTREAM_TIMEOUT_SEC", c.Upstream.TimeoutSec)
	c.Upstream.RequestsPerSecond = getEnvFloat("UPSTREAM_RPS", c.Upstream.RequestsPerSecond)
	c.Upstream.Burst = getEnvInt("UPSTREAM_BURST", c.Upstream.Burst)

	c.ML.BaseURL = getEnv("ML_SERVICE_URL", c.ML.BaseURL)
	c.ML.TimeoutSec = getEnvInt("ML_TIMEOUT_SEC", c.ML.TimeoutSec)

	c.Cache.HistoryTTLSec = getEnvInt("HISTORY_TTL_SEC", c.Cache.HistoryTTLSec)

	c.Sweeper.Enabled = getEnvBool("SWEEPER_ENABLED", c.Sweeper.Enabled)
	c.Sweeper.Cron = getEnv("SWEEPER_CRON", c.Sweeper.Cron)
	c.Sweeper.StaleAfter = getEnvInt("SWEEPER_STALE_AFTER_SEC", c.Sweeper.StaleAfter)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.SQLitePath == "" {
		return fmt.Errorf("database.sqlite_path is required for the sqlite driver")
	}
	if c.ML.TimeoutSec <= 0 {
		return fmt.Errorf("ml.timeout_sec must be positive")
	}
	if c.Upstream.TimeoutSec <= 0 {
		return fmt.Errorf("upstream.timeout_sec must be positive")
	}
	if c.Cache.HistoryTTLSec <= 0 {
		return fmt.Errorf("cache.history_ttl_sec must be positive")
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// HistoryTTL returns the default history TTL
func (c CacheConfig) HistoryTTL() time.Duration {
	return time.Duration(c.HistoryTTLSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
