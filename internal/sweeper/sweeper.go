// Package sweeper periodically refreshes persisted series that nobody has
// requested recently.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/trogers1052/nextworth-marketdata/internal/config"
	"github.com/trogers1052/nextworth-marketdata/internal/database"
	"github.com/trogers1052/nextworth-marketdata/internal/marketcache"
	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

// Store lists persisted rows by fetch time. *database.DB satisfies it.
type Store interface {
	ListStaleSeries(ctx context.Context, before time.Time, limit int) ([]database.StaleSeries, error)
	CountPredictionsFetchedBefore(ctx context.Context, t time.Time) (int64, error)
}

// Refresher reloads one series. *marketcache.Service satisfies it.
type Refresher interface {
	GetHistory(ctx context.Context, req marketcache.HistoryRequest) (*models.HistoryResponse, error)
}

// Report summarizes one sweep
type Report struct {
	Stale            int
	Refreshed        int
	Degraded         int
	Failed           int
	StalePredictions int64
}

// Sweeper runs the refresh job on a cron schedule
type Sweeper struct {
	cron      *cron.Cron
	store     Store
	refresher Refresher
	cfg       config.SweeperConfig
	logger    logrus.FieldLogger
	now       func() time.Time
}

// New creates a Sweeper. The schedule uses the six-field cron format with
// seconds.
func New(store Store, refresher Refresher, cfg config.SweeperConfig, logger logrus.FieldLogger) *Sweeper {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sweeper{
		cron:      cron.New(cron.WithSeconds()),
		store:     store,
		refresher: refresher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Register schedules the sweep. Runs use ctx.
func (s *Sweeper) Register(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.Cron, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.WithError(err).Error("Stale sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}
	return nil
}

// Start starts the cron scheduler
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.WithField("schedule", s.cfg.Cron).Info("Sweeper started")
}

// Stop stops the scheduler and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Sweeper stopped")
}

// RunOnce refreshes every series whose newest point is older than the
// configured age, up to the batch limit
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	var report Report

	staleAfter := time.Duration(s.cfg.StaleAfter) * time.Second
	cutoff := s.now().Add(-staleAfter)

	series, err := s.store.ListStaleSeries(ctx, cutoff, s.cfg.BatchLimit)
	if err != nil {
		return report, fmt.Errorf("failed to list stale series: %w", err)
	}
	report.Stale = len(series)

	for _, ss := range series {
		if ctx.Err() != nil {
			break
		}
		log := s.logger.WithFields(logrus.Fields{"symbol": ss.Symbol, "granularity": ss.Granularity})

		months := s.monthsFor(ss.Granularity)
		if err := models.CheckSpan(months, ss.Granularity); err != nil {
			log.WithError(err).Debug("Skipping series with no refreshable span")
			continue
		}

		resp, err := s.refresher.GetHistory(ctx, marketcache.HistoryRequest{
			Symbol:      ss.Symbol,
			Months:      months,
			Granularity: ss.Granularity,
			TTL:         staleAfter,
		})
		if err != nil {
			report.Failed++
			log.WithError(err).Warn("Failed to refresh stale series")
			continue
		}
		if resp.Source.Degraded() {
			report.Degraded++
			continue
		}
		report.Refreshed++
	}

	count, err := s.store.CountPredictionsFetchedBefore(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to count stale predictions")
	}
	report.StalePredictions = count

	s.logger.WithFields(logrus.Fields{
		"stale":             report.Stale,
		"refreshed":         report.Refreshed,
		"degraded":          report.Degraded,
		"failed":            report.Failed,
		"stale_predictions": report.StalePredictions,
	}).Info("Stale sweep complete")
	return report, nil
}

// monthsFor picks the span refreshed for a granularity. Daily series only
// exist for the shortest range.
func (s *Sweeper) monthsFor(g models.Granularity) int {
	if g == models.GranularityDaily {
		return models.SupportedMonths()[0]
	}
	return models.RoundUpMonths(s.cfg.Months)
}
