// Package marketcache is the read-through cache in front of the price
// history and prediction upstreams.
package marketcache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/trogers1052/nextworth-marketdata/internal/inflight"
	"github.com/trogers1052/nextworth-marketdata/internal/models"
	"github.com/trogers1052/nextworth-marketdata/internal/upstream"
)

// Store is the persistence the orchestrator reads and writes.
// *database.DB satisfies it.
type Store interface {
	EnsureAsset(ctx context.Context, a *models.Asset) (*models.Asset, error)
	UpdateAssetMetadata(ctx context.Context, id uuid.UUID, name, currency string) error
	UpsertPricePoint(ctx context.Context, p *models.PricePoint) error
	GetPricePointsRange(ctx context.Context, assetID uuid.UUID, g models.Granularity, start, end time.Time) ([]*models.PricePoint, error)
	UpsertPredictionPoint(ctx context.Context, p *models.PredictionPoint) error
	GetPredictionPoints(ctx context.Context, assetID uuid.UUID, h models.Horizon) ([]*models.PredictionPoint, error)
}

// Notifier is told about data freshly written from an upstream
type Notifier interface {
	PublishHistoryRefreshed(ctx context.Context, resp *models.HistoryResponse) error
	PublishPredictionRefreshed(ctx context.Context, resp *models.PredictionResponse) error
}

// DefaultHistoryTTL applies when a history request carries no TTL
const DefaultHistoryTTL = time.Hour

// Service coordinates the store, the freshness rules, the upstreams and the
// in-flight registries
type Service struct {
	store    Store
	series   upstream.SeriesProvider
	model    upstream.PredictionProvider
	notifier Notifier
	logger   logrus.FieldLogger
	now      func() time.Time

	historyTTL  time.Duration
	history     *inflight.Registry[*models.HistoryResponse]
	predictions *inflight.Registry[*models.PredictionResponse]
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier publishes refresh events after upstream writes
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithHistoryTTL sets the TTL used for history requests that carry none,
// including the history fetched to feed predictions
func WithHistoryTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.historyTTL = ttl
		}
	}
}

// WithHistoryRegistry injects the registry that coalesces history requests
func WithHistoryRegistry(r *inflight.Registry[*models.HistoryResponse]) Option {
	return func(s *Service) {
		s.history = r
	}
}

// WithPredictionRegistry injects the registry that coalesces prediction requests
func WithPredictionRegistry(r *inflight.Registry[*models.PredictionResponse]) Option {
	return func(s *Service) {
		s.predictions = r
	}
}

// New creates a Service
func New(store Store, series upstream.SeriesProvider, model upstream.PredictionProvider, options ...Option) *Service {
	s := &Service{
		store:       store,
		series:      series,
		model:       model,
		logger:      logrus.StandardLogger(),
		now:         time.Now,
		historyTTL:  DefaultHistoryTTL,
		history:     inflight.New[*models.HistoryResponse](),
		predictions: inflight.New[*models.PredictionResponse](),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// InFlight returns the number of history and prediction computations
// currently running
func (s *Service) InFlight() (history, predictions int) {
	return s.history.Len(), s.predictions.Len()
}

func (s *Service) ensureAsset(ctx context.Context, symbol string) (*models.Asset, error) {
	return s.store.EnsureAsset(ctx, &models.Asset{
		Symbol:   symbol,
		Category: upstream.InferCategory(symbol),
		Currency: models.DefaultCurrency,
	})
}

func (s *Service) notify(fn func(Notifier) error) {
	if s.notifier == nil {
		return
	}
	if err := fn(s.notifier); err != nil {
		s.logger.WithError(err).Warn("Failed to publish refresh event")
	}
}
