// Package app wires the configured store, upstreams and transports into a
// running market data service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/trogers1052/nextworth-marketdata/internal/api"
	"github.com/trogers1052/nextworth-marketdata/internal/config"
	"github.com/trogers1052/nextworth-marketdata/internal/database"
	"github.com/trogers1052/nextworth-marketdata/internal/httpx"
	"github.com/trogers1052/nextworth-marketdata/internal/kafka"
	"github.com/trogers1052/nextworth-marketdata/internal/marketcache"
	"github.com/trogers1052/nextworth-marketdata/internal/upstream/mlservice"
	"github.com/trogers1052/nextworth-marketdata/internal/upstream/ratelimit"
	"github.com/trogers1052/nextworth-marketdata/internal/upstream/yahoo"
)

// App holds the long-lived components of the service
type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	DB       *database.DB
	Service  *marketcache.Service
	Producer *kafka.Producer
	Redis    *redis.Client
}

// NewLogger builds the JSON logger used by every component
func NewLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.Level).Warn("Unknown log level, using info")
	}
	return logger
}

// Build opens the store, applies migrations and assembles the service.
// Kafka and Redis are only connected when configured.
func Build(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.WithField("driver", db.Dialect()).Info("Database ready")

	a := &App{Config: cfg, Logger: logger, DB: db}

	upstreamTimeout := time.Duration(cfg.Upstream.TimeoutSec) * time.Second
	series := ratelimit.NewSeriesProvider(
		yahoo.New(
			yahoo.WithBaseURL(cfg.Upstream.YahooBaseURL),
			yahoo.WithHTTPClient(httpx.New(upstreamTimeout)),
			yahoo.WithTimeout(upstreamTimeout),
		),
		cfg.Upstream.RequestsPerSecond,
		cfg.Upstream.Burst,
	)

	mlTimeout := time.Duration(cfg.ML.TimeoutSec) * time.Second
	model := mlservice.New(cfg.ML.BaseURL,
		mlservice.WithHTTPClient(httpx.New(mlTimeout)),
		mlservice.WithTimeout(mlTimeout),
	)

	options := []marketcache.Option{
		marketcache.WithLogger(logger.WithField("component", "marketcache")),
		marketcache.WithHistoryTTL(cfg.Cache.HistoryTTL()),
	}
	if cfg.Kafka.Enabled() {
		a.Producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		options = append(options, marketcache.WithNotifier(a.Producer))
		logger.WithField("topic", cfg.Kafka.Topic).Info("Publishing refresh events")
	}
	a.Service = marketcache.New(db, series, model, options...)

	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	return a, nil
}

// Router returns the HTTP API, with the Redis response cache when configured
func (a *App) Router() http.Handler {
	handler := api.NewHandler(a.Service, a.DB, a.Logger.WithField("component", "api"))

	var cache *api.ResponseCache
	if a.Redis != nil {
		ttl := time.Duration(a.Config.Redis.TTLSec) * time.Second
		cache = api.NewResponseCache(api.NewRedisBackend(a.Redis), ttl, a.Logger.WithField("component", "cache"))
	}
	return api.SetupRoutes(handler, cache)
}

// Consumer returns a refresh-request consumer, or nil when Kafka is disabled
func (a *App) Consumer() *kafka.Consumer {
	if !a.Config.Kafka.Enabled() || a.Config.Kafka.RequestsTopic == "" {
		return nil
	}
	return kafka.NewConsumer(a.Config.Kafka.Brokers, a.Config.Kafka.RequestsTopic, a.Config.Kafka.GroupID,
		a.Service, a.Logger.WithField("component", "kafka"))
}

// Close releases every connection held by the app
func (a *App) Close() error {
	var errs []error
	if a.Producer != nil {
		errs = append(errs, a.Producer.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
