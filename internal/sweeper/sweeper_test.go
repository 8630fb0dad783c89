package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/nextworth-marketdata/internal/config"
	"github.com/trogers1052/nextworth-marketdata/internal/database"
	"github.com/trogers1052/nextworth-marketdata/internal/marketcache"
	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

type mockStore struct {
	series      []database.StaleSeries
	predictions int64
	before      time.Time
	limit       int
	err         error
}

func (m *mockStore) ListStaleSeries(ctx context.Context, before time.Time, limit int) ([]database.StaleSeries, error) {
	m.before = before
	m.limit = limit
	return m.series, m.err
}

func (m *mockStore) CountPredictionsFetchedBefore(ctx context.Context, t time.Time) (int64, error) {
	return m.predictions, nil
}

type mockRefresher struct {
	requests []marketcache.HistoryRequest
	results  map[string]models.Source
	fail     map[string]bool
}

func (m *mockRefresher) GetHistory(ctx context.Context, req marketcache.HistoryRequest) (*models.HistoryResponse, error) {
	m.requests = append(m.requests, req)
	if m.fail[req.Symbol] {
		return nil, marketcache.ErrUnavailable
	}
	source := models.SourceUpstream
	if s, ok := m.results[req.Symbol]; ok {
		source = s
	}
	return &models.HistoryResponse{Symbol: req.Symbol, Source: source}, nil
}

func testConfig() config.SweeperConfig {
	return config.SweeperConfig{Enabled: true, Cron: "0 */30 * * * *", StaleAfter: 3600, Months: 24, BatchLimit: 10}
}

func TestRunOnce(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := &mockStore{
		series: []database.StaleSeries{
			{Symbol: "AAPL", Granularity: models.GranularityMonthly, Points: 24},
			{Symbol: "MSFT", Granularity: models.GranularityDaily, Points: 21},
			{Symbol: "DOWN", Granularity: models.GranularityWeekly, Points: 100},
			{Symbol: "OLD", Granularity: models.GranularityMonthly, Points: 12},
		},
		predictions: 7,
	}
	refresher := &mockRefresher{
		fail:    map[string]bool{"DOWN": true},
		results: map[string]models.Source{"OLD": models.SourceStale},
	}
	logger, _ := test.NewNullLogger()
	s := New(store, refresher, testConfig(), logger)
	s.now = func() time.Time { return now }

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{Stale: 4, Refreshed: 2, Degraded: 1, Failed: 1, StalePredictions: 7}, report)
	assert.Equal(t, now.Add(-time.Hour), store.before)
	assert.Equal(t, 10, store.limit)

	require.Len(t, refresher.requests, 4)
	assert.Equal(t, marketcache.HistoryRequest{Symbol: "AAPL", Months: 24, Granularity: models.GranularityMonthly, TTL: time.Hour}, refresher.requests[0])
	assert.Equal(t, 1, refresher.requests[1].Months, "daily series refresh the shortest range")
}

func TestRunOnceListFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := New(&mockStore{err: errors.New("db down")}, &mockRefresher{}, testConfig(), logger)

	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	logger, _ := test.NewNullLogger()

	s := New(&mockStore{}, &mockRefresher{}, testConfig(), logger)
	require.NoError(t, s.Register(context.Background()))
	s.Start()
	s.Stop()

	cfg := testConfig()
	cfg.Cron = "every now and then"
	assert.Error(t, New(&mockStore{}, &mockRefresher{}, cfg, logger).Register(context.Background()))
}
