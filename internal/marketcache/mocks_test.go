package marketcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
	"github.com/trogers1052/nextworth-marketdata/internal/upstream"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// MockStore is an in-memory Store that enforces the same row invariants as
// the database
type MockStore struct {
	mu          sync.Mutex
	assets      map[string]*models.Asset
	prices      map[string]*models.PricePoint
	predictions map[string]*models.PredictionPoint
	nextID      int
	priceWrites int
}

func NewMockStore() *MockStore {
	return &MockStore{
		assets:      make(map[string]*models.Asset),
		prices:      make(map[string]*models.PricePoint),
		predictions: make(map[string]*models.PredictionPoint),
	}
}

func (m *MockStore) EnsureAsset(ctx context.Context, a *models.Asset) (*models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.assets[a.Symbol]; ok {
		out := *existing
		return &out, nil
	}
	created := *a
	created.ID = uuid.New()
	created.Currency = models.NormalizeCurrency(a.Currency)
	created.CreatedAt = testNow
	created.UpdatedAt = testNow
	m.assets[a.Symbol] = &created
	out := created
	return &out, nil
}

func (m *MockStore) UpdateAssetMetadata(ctx context.Context, id uuid.UUID, name, currency string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assets {
		if a.ID == id {
			a.Name = name
			a.Currency = currency
			return nil
		}
	}
	return errors.New("asset not found")
}

func priceKey(p *models.PricePoint) string {
	return fmt.Sprintf("%s|%s|%s", p.AssetID, p.Granularity, p.Period.Format(time.DateOnly))
}

func (m *MockStore) UpsertPricePoint(ctx context.Context, p *models.PricePoint) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid price point: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceWrites++
	key := priceKey(p)
	if existing, ok := m.prices[key]; ok {
		p.ID = existing.ID
	} else {
		m.nextID++
		p.ID = m.nextID
	}
	stored := *p
	m.prices[key] = &stored
	return nil
}

func (m *MockStore) GetPricePointsRange(ctx context.Context, assetID uuid.UUID, g models.Granularity, start, end time.Time) ([]*models.PricePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PricePoint
	for _, p := range m.prices {
		if p.AssetID != assetID || p.Granularity != g || p.Period.Before(start) || p.Period.After(end) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out, nil
}

func (m *MockStore) UpsertPredictionPoint(ctx context.Context, p *models.PredictionPoint) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid prediction point: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%s", p.AssetID, p.Horizon, p.Period.Format(time.DateOnly))
	if existing, ok := m.predictions[key]; ok {
		p.ID = existing.ID
	} else {
		m.nextID++
		p.ID = m.nextID
	}
	stored := *p
	m.predictions[key] = &stored
	return nil
}

func (m *MockStore) GetPredictionPoints(ctx context.Context, assetID uuid.UUID, h models.Horizon) ([]*models.PredictionPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PredictionPoint
	for _, p := range m.predictions {
		if p.AssetID == assetID && p.Horizon == h {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out, nil
}

func (m *MockStore) PriceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prices)
}

func (m *MockStore) PriceWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.priceWrites
}

// seedSeries persists n monthly points ending at the current month. The
// first expired points get a fetch time older than ttl.
func (m *MockStore) seedSeries(symbol string, n, expired int, ttl time.Duration) *models.Asset {
	asset, _ := m.EnsureAsset(context.Background(), &models.Asset{Symbol: symbol, Category: models.CategoryStock, Currency: "USD"})
	for i, b := range monthlyBars(n, 100) {
		fetchedAt := testNow.Add(-ttl / 2)
		if i < expired {
			fetchedAt = testNow.Add(-2 * ttl)
		}
		_ = m.UpsertPricePoint(context.Background(), &models.PricePoint{
			AssetID:     asset.ID,
			Granularity: models.GranularityMonthly,
			Period:      b.Period,
			Open:        b.Open,
			High:        b.High,
			Low:         b.Low,
			Close:       b.Close,
			Volume:      b.Volume,
			Currency:    b.Currency,
			FetchedAt:   fetchedAt,
		})
	}
	return asset
}

func (m *MockStore) seedPredictions(symbol string, h models.Horizon, fetchedAt time.Time) {
	asset, _ := m.EnsureAsset(context.Background(), &models.Asset{Symbol: symbol, Category: models.CategoryStock, Currency: "USD"})
	for i := 1; i <= h.Months(); i++ {
		_ = m.UpsertPredictionPoint(context.Background(), &models.PredictionPoint{
			AssetID:        asset.ID,
			Horizon:        h,
			Period:         models.GranularityMonthly.Truncate(testNow.AddDate(0, i, 0)),
			PredictedClose: decimal.NewFromInt(int64(150 + i)),
			ModelVersion:   "seeded",
			FetchedAt:      fetchedAt,
		})
	}
}

func predictionRow(asset *models.Asset, h models.Horizon, period, version string, fetchedAt time.Time) *models.PredictionPoint {
	day, err := time.Parse("2006-01-02", period)
	if err != nil {
		panic(err)
	}
	return &models.PredictionPoint{
		AssetID:        asset.ID,
		Horizon:        h,
		Period:         day,
		PredictedClose: decimal.NewFromInt(150),
		ModelVersion:   version,
		FetchedAt:      fetchedAt,
	}
}

// monthlyBars returns n monthly bars ending at the current month with
// closes base, base+1, ...
func monthlyBars(n int, base int64) []upstream.Bar {
	bars := make([]upstream.Bar, 0, n)
	for i := 0; i < n; i++ {
		c := decimal.NewFromInt(base + int64(i))
		bars = append(bars, upstream.Bar{
			Period:   models.GranularityMonthly.Truncate(testNow.AddDate(0, i-n+1, 0)),
			Open:     c,
			High:     c.Add(decimal.NewFromInt(1)),
			Low:      c.Sub(decimal.NewFromInt(1)),
			Close:    c,
			Volume:   1000,
			Currency: "USD",
		})
	}
	return bars
}

// fakeSeries is a SeriesProvider that counts calls and can hold them until
// release is closed
type fakeSeries struct {
	calls   atomic.Int32
	release chan struct{}
	fetch   func(symbol string, months int, g models.Granularity) (*upstream.Series, error)

	mu     sync.Mutex
	months []int
}

func (f *fakeSeries) Name() string { return "fake" }

func (f *fakeSeries) FetchSeries(ctx context.Context, symbol string, months int, g models.Granularity) (*upstream.Series, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.months = append(f.months, months)
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return f.fetch(symbol, months, g)
}

func seriesOf(n int) func(string, int, models.Granularity) (*upstream.Series, error) {
	return func(symbol string, months int, g models.Granularity) (*upstream.Series, error) {
		return &upstream.Series{
			Symbol:      symbol,
			Name:        symbol + " Inc.",
			Currency:    "USD",
			Granularity: g,
			Bars:        monthlyBars(n, 100),
		}, nil
	}
}

func failingSeries(err error) func(string, int, models.Granularity) (*upstream.Series, error) {
	return func(string, int, models.Granularity) (*upstream.Series, error) {
		return nil, err
	}
}

// fakeModel is a PredictionProvider with a scripted result
type fakeModel struct {
	calls   atomic.Int32
	predict func(req upstream.PredictionRequest) upstream.PredictionResult

	mu   sync.Mutex
	last upstream.PredictionRequest
}

func (f *fakeModel) Name() string { return "fake-model" }

func (f *fakeModel) Predict(ctx context.Context, req upstream.PredictionRequest) upstream.PredictionResult {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	return f.predict(req)
}

func forecastOf(months int) func(upstream.PredictionRequest) upstream.PredictionResult {
	return func(req upstream.PredictionRequest) upstream.PredictionResult {
		f := &upstream.Forecast{ModelVersion: "chronos-t5-small", InferenceTime: 800 * time.Millisecond, InputPoints: len(req.History)}
		for i := 1; i <= months; i++ {
			f.Steps = append(f.Steps, upstream.ForecastStep{
				Date:  models.GranularityMonthly.Truncate(testNow.AddDate(0, i, 0)),
				Close: decimal.NewFromInt(int64(200 + i)),
			})
		}
		return upstream.Ok(f)
	}
}

func failingModel(reason upstream.FailureReason) func(upstream.PredictionRequest) upstream.PredictionResult {
	return func(upstream.PredictionRequest) upstream.PredictionResult {
		return upstream.Failed(reason, errors.New("model down"))
	}
}

// recordingNotifier captures published refresh events
type recordingNotifier struct {
	mu          sync.Mutex
	history     []*models.HistoryResponse
	predictions []*models.PredictionResponse
}

func (n *recordingNotifier) PublishHistoryRefreshed(ctx context.Context, resp *models.HistoryResponse) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = append(n.history, resp)
	return nil
}

func (n *recordingNotifier) PublishPredictionRefreshed(ctx context.Context, resp *models.PredictionResponse) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.predictions = append(n.predictions, resp)
	return nil
}
