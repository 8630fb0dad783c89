package marketcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/trogers1052/nextworth-marketdata/internal/database"
	"github.com/trogers1052/nextworth-marketdata/internal/freshness"
	"github.com/trogers1052/nextworth-marketdata/internal/inflight"
	"github.com/trogers1052/nextworth-marketdata/internal/models"
	"github.com/trogers1052/nextworth-marketdata/internal/upstream"
)

const dateLayout = "2006-01-02"

// HistoryRequest selects one persisted series. TTL is how old a point may
// be and still count as fresh; zero means the service default.
type HistoryRequest struct {
	Symbol      string
	Months      int
	Granularity models.Granularity
	TTL         time.Duration
}

func (s *Service) normalizeHistoryRequest(req HistoryRequest) (HistoryRequest, error) {
	req.Symbol = upstream.NormalizeSymbol(req.Symbol)
	if req.Symbol == "" {
		return req, fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	if req.Granularity == "" {
		req.Granularity = models.GranularityMonthly
	}
	if err := models.CheckSpan(req.Months, req.Granularity); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.TTL < 0 {
		return req, fmt.Errorf("%w: ttl must be positive", ErrInvalidRequest)
	}
	if req.TTL == 0 {
		req.TTL = s.historyTTL
	}
	return req, nil
}

// GetHistory returns the series for req from the store when enough of it is
// fresh, otherwise from the series provider. When the provider fails for any
// reason other than an unknown symbol, persisted points of any age are
// returned with a warning.
//
// Concurrent identical requests share a single computation. Failures wrap
// ErrInvalidRequest, ErrNotFound or ErrUnavailable.
func (s *Service) GetHistory(ctx context.Context, req HistoryRequest) (*models.HistoryResponse, error) {
	req, err := s.normalizeHistoryRequest(req)
	if err != nil {
		return nil, err
	}

	key := inflight.HistoryKey(req.Symbol, req.Months, req.Granularity.String())
	resp, shared, err := s.history.Do(ctx, key, func(ctx context.Context) (*models.HistoryResponse, error) {
		return s.loadHistory(ctx, req)
	})
	if shared {
		s.logger.WithField("key", key).Debug("Joined in-flight history request")
	}
	return resp, err
}

func (s *Service) loadHistory(ctx context.Context, req HistoryRequest) (*models.HistoryResponse, error) {
	log := s.logger.WithFields(logrus.Fields{
		"symbol":      req.Symbol,
		"months":      req.Months,
		"granularity": req.Granularity,
	})

	asset, err := s.ensureAsset(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, req.Symbol, err)
	}

	now := s.now().UTC()
	start, end := historySpan(now, req.Months, req.Granularity)

	points, err := s.store.GetPricePointsRange(ctx, asset.ID, req.Granularity, start, end)
	if err != nil {
		log.WithError(err).Warn("Failed to read persisted series, treating as a miss")
	}

	eval := freshness.EvaluateSeries(points, freshness.ExpectedPoints(req.Months, req.Granularity), req.TTL, now)
	if eval.Sufficient {
		log.WithField("coverage", eval.Coverage()).Debug("History cache hit")
		return shapeHistory(asset, req, points, models.SourceCache, latestPriceFetch(points), ""), nil
	}
	log.WithFields(logrus.Fields{"fresh": eval.Fresh, "expected": eval.Expected}).Debug("History cache miss")

	series, err := s.series.FetchSeries(ctx, req.Symbol, req.Months, req.Granularity)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, req.Symbol)
		}
		log.WithError(err).WithField("kind", upstream.KindOf(err)).Warn("Series provider failed, falling back to persisted data")
		return s.staleHistory(ctx, asset, req, start, end, err)
	}
	if len(series.Bars) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.Symbol)
	}

	s.refreshAssetMetadata(ctx, log, asset, series)

	rows := make([]*models.PricePoint, 0, len(series.Bars))
	for _, b := range series.Bars {
		rows = append(rows, &models.PricePoint{
			AssetID:     asset.ID,
			Granularity: req.Granularity,
			Period:      b.Period,
			Open:        b.Open,
			High:        b.High,
			Low:         b.Low,
			Close:       b.Close,
			Volume:      b.Volume,
			Currency:    b.Currency,
			FetchedAt:   now,
		})
	}

	written, report := database.NewSequentialWriter[*models.PricePoint](s.store.UpsertPricePoint, log).WriteAll(ctx, rows)
	if report.Skipped > 0 {
		log.WithFields(logrus.Fields{"written": report.Written, "skipped": report.Skipped}).Warn("Some upstream points were not persisted")
	}
	if len(written) == 0 {
		return s.staleHistory(ctx, asset, req, start, end, errors.New("no upstream point could be persisted"))
	}

	inSpan := withinSpan(written, start, end)
	if len(inSpan) == 0 {
		return s.staleHistory(ctx, asset, req, start, end, errors.New("no upstream point falls inside the requested span"))
	}

	resp := shapeHistory(asset, req, inSpan, models.SourceUpstream, now, "")
	s.notify(func(n Notifier) error { return n.PublishHistoryRefreshed(ctx, resp) })
	log.WithField("points", resp.PointCount).Info("History refreshed from upstream")
	return resp, nil
}

// staleHistory serves persisted points regardless of age after an upstream
// failure
func (s *Service) staleHistory(ctx context.Context, asset *models.Asset, req HistoryRequest, start, end time.Time, cause error) (*models.HistoryResponse, error) {
	points, err := s.store.GetPricePointsRange(ctx, asset.ID, req.Granularity, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, req.Symbol, errors.Join(cause, err))
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, req.Symbol, cause)
	}
	cachedAt := latestPriceFetch(points)
	warning := fmt.Sprintf("Live market data is unavailable; showing data last updated %s", humanize.Time(cachedAt))
	return shapeHistory(asset, req, points, models.SourceStale, cachedAt, warning), nil
}

func (s *Service) refreshAssetMetadata(ctx context.Context, log logrus.FieldLogger, asset *models.Asset, series *upstream.Series) {
	name := asset.Name
	if series.Name != "" {
		name = series.Name
	}
	currency := asset.Currency
	if c := models.NormalizeCurrency(series.Currency); series.Currency != "" && models.IsAllowedCurrency(c) {
		currency = c
	}
	if name == asset.Name && currency == asset.Currency {
		return
	}
	if err := s.store.UpdateAssetMetadata(ctx, asset.ID, name, currency); err != nil {
		log.WithError(err).Warn("Failed to update asset metadata")
		return
	}
	asset.Name = name
	asset.Currency = currency
}

// historySpan is the inclusive period window of a request ending now
func historySpan(now time.Time, months int, g models.Granularity) (time.Time, time.Time) {
	return g.Truncate(now.AddDate(0, -months, 0)), now
}

// withinSpan keeps the points whose period lies in [start, end]
func withinSpan(points []*models.PricePoint, start, end time.Time) []*models.PricePoint {
	out := make([]*models.PricePoint, 0, len(points))
	for _, p := range points {
		if p.Period.Before(start) || p.Period.After(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func latestPriceFetch(points []*models.PricePoint) time.Time {
	var latest time.Time
	for _, p := range points {
		if p.FetchedAt.After(latest) {
			latest = p.FetchedAt
		}
	}
	return latest
}

func shapeHistory(asset *models.Asset, req HistoryRequest, points []*models.PricePoint, source models.Source, cachedAt time.Time, warning string) *models.HistoryResponse {
	sorted := make([]*models.PricePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Period.Before(sorted[j].Period) })

	series := make([]models.SeriesPoint, 0, len(sorted))
	for _, p := range sorted {
		series = append(series, models.SeriesPoint{
			Date:      p.Period.UTC().Format(dateLayout),
			Timestamp: p.Period.UnixMilli(),
			Open:      p.Open.InexactFloat64(),
			High:      p.High.InexactFloat64(),
			Low:       p.Low.InexactFloat64(),
			Close:     p.Close.InexactFloat64(),
			Volume:    p.Volume,
			Currency:  p.Currency,
		})
	}

	var currentPrice *float64
	if n := len(series); n > 0 {
		last := series[n-1].Close
		currentPrice = &last
	}

	label, _ := models.RangeLabel(req.Months)
	return &models.HistoryResponse{
		Symbol:       asset.Symbol,
		Name:         asset.Name,
		Category:     asset.Category,
		Currency:     models.NormalizeCurrency(asset.Currency),
		CurrentPrice: currentPrice,
		Range:        label,
		Granularity:  req.Granularity.String(),
		PointCount:   len(series),
		Series:       series,
		Source:       source,
		CachedAt:     cachedAt.UTC(),
		TTL:          int(req.TTL / time.Second),
		Warning:      warning,
	}
}
