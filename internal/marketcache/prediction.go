package marketcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/trogers1052/nextworth-marketdata/internal/database"
	"github.com/trogers1052/nextworth-marketdata/internal/freshness"
	"github.com/trogers1052/nextworth-marketdata/internal/inflight"
	"github.com/trogers1052/nextworth-marketdata/internal/models"
	"github.com/trogers1052/nextworth-marketdata/internal/upstream"
)

const (
	// MinPredictionHistoryMonths is the floor of the history span fed to
	// the model
	MinPredictionHistoryMonths = 24
	// MinPredictionObservations is the fewest usable closes the model
	// accepts
	MinPredictionObservations = 3
)

// PredictionHistoryMonths is the monthly history span requested before
// forecasting h: twice the horizon, floored at MinPredictionHistoryMonths and
// rounded up to a supported range
func PredictionHistoryMonths(h models.Horizon) int {
	return models.RoundUpMonths(max(2*h.Months(), MinPredictionHistoryMonths))
}

// GetPrediction returns forecasts for symbol over horizon. Persisted
// forecasts younger than the horizon's TTL are reused; otherwise monthly
// history is loaded through GetHistory and handed to the model. When the
// history or the model fails, persisted forecasts of any age are returned
// with a warning.
//
// Failures wrap ErrInvalidRequest, ErrNotFound, ErrInsufficientInput or
// ErrUnavailable.
func (s *Service) GetPrediction(ctx context.Context, symbol string, horizon models.Horizon) (*models.PredictionResponse, error) {
	symbol = upstream.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	if _, err := models.ParseHorizon(string(horizon)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	key := inflight.PredictionKey(symbol, horizon.String())
	resp, _, err := s.predictions.Do(ctx, key, func(ctx context.Context) (*models.PredictionResponse, error) {
		return s.loadPrediction(ctx, symbol, horizon)
	})
	return resp, err
}

func (s *Service) loadPrediction(ctx context.Context, symbol string, horizon models.Horizon) (*models.PredictionResponse, error) {
	log := s.logger.WithFields(logrus.Fields{
		"symbol":  symbol,
		"horizon": horizon,
	})

	asset, err := s.ensureAsset(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, symbol, err)
	}

	now := s.now().UTC()
	points, err := s.store.GetPredictionPoints(ctx, asset.ID, horizon)
	if err != nil {
		log.WithError(err).Warn("Failed to read persisted predictions, treating as a miss")
	}

	eval := freshness.EvaluatePredictions(points, horizon.TTL(), now)
	if eval.Sufficient {
		log.Debug("Prediction cache hit")
		return shapePrediction(asset, horizon, eval.Points, models.SourceCache, latestPredictionFetch(eval.Points), ""), nil
	}

	history, err := s.GetHistory(ctx, HistoryRequest{
		Symbol:      symbol,
		Months:      PredictionHistoryMonths(horizon),
		Granularity: models.GranularityMonthly,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		log.WithError(err).Warn("History for prediction unavailable, falling back to persisted predictions")
		return s.stalePredictions(ctx, asset, horizon, err)
	}

	observations := observationsFrom(history)
	if len(observations) < MinPredictionObservations {
		return nil, fmt.Errorf("%w: %s has %d usable observations, need %d",
			ErrInsufficientInput, symbol, len(observations), MinPredictionObservations)
	}

	result := s.model.Predict(ctx, upstream.PredictionRequest{
		Symbol:   symbol,
		Horizon:  horizon,
		Currency: history.Currency,
		History:  observations,
	})
	forecast, ok := result.Forecast()
	if !ok {
		failure := result.Failure()
		log.WithError(failure).WithField("reason", failure.Reason).Warn("Prediction model failed, falling back to persisted predictions")
		return s.stalePredictions(ctx, asset, horizon, failure)
	}

	rows := make([]*models.PredictionPoint, 0, len(forecast.Steps))
	for _, step := range forecast.Steps {
		rows = append(rows, &models.PredictionPoint{
			AssetID:        asset.ID,
			Horizon:        horizon,
			Period:         models.GranularityDaily.Truncate(step.Date),
			PredictedClose: step.Close,
			LowerBound:     step.LowerBound,
			UpperBound:     step.UpperBound,
			ModelVersion:   forecast.ModelVersion,
			FetchedAt:      now,
		})
	}

	written, report := database.NewSequentialWriter[*models.PredictionPoint](s.store.UpsertPredictionPoint, log).WriteAll(ctx, rows)
	if report.Skipped > 0 {
		log.WithFields(logrus.Fields{"written": report.Written, "skipped": report.Skipped}).Warn("Some forecast points were not persisted")
	}
	if len(written) == 0 {
		return s.stalePredictions(ctx, asset, horizon, errors.New("no forecast point could be persisted"))
	}

	resp := shapePrediction(asset, horizon, written, models.SourceModel, now, "")
	s.notify(func(n Notifier) error { return n.PublishPredictionRefreshed(ctx, resp) })
	log.WithFields(logrus.Fields{
		"points":         len(written),
		"model_version":  forecast.ModelVersion,
		"inference_time": forecast.InferenceTime,
		"input_points":   forecast.InputPoints,
	}).Info("Predictions refreshed from model")
	return resp, nil
}

func (s *Service) stalePredictions(ctx context.Context, asset *models.Asset, horizon models.Horizon, cause error) (*models.PredictionResponse, error) {
	points, err := s.store.GetPredictionPoints(ctx, asset.ID, horizon)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, asset.Symbol, errors.Join(cause, err))
	}
	points = currentForecast(points, s.now().UTC())
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, asset.Symbol, cause)
	}
	cachedAt := latestPredictionFetch(points)
	warning := fmt.Sprintf("Prediction service is unavailable; showing a forecast generated %s", humanize.Time(cachedAt))
	return shapePrediction(asset, horizon, points, models.SourceStaleCache, cachedAt, warning), nil
}

// observationsFrom keeps the positive closes of a history response
func observationsFrom(history *models.HistoryResponse) []upstream.Observation {
	out := make([]upstream.Observation, 0, len(history.Series))
	for _, p := range history.Series {
		if p.Close <= 0 {
			continue
		}
		out = append(out, upstream.Observation{
			Date:  time.UnixMilli(p.Timestamp).UTC(),
			Close: decimal.NewFromFloat(p.Close),
		})
	}
	return out
}

// currentForecast keeps the rows of the newest model run whose periods have
// not yet passed
func currentForecast(points []*models.PredictionPoint, now time.Time) []*models.PredictionPoint {
	latest := latestPredictionFetch(points)
	floor := models.GranularityMonthly.Truncate(now)
	out := make([]*models.PredictionPoint, 0, len(points))
	for _, p := range points {
		if !p.FetchedAt.Equal(latest) || p.Period.Before(floor) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func latestPredictionFetch(points []*models.PredictionPoint) time.Time {
	var latest time.Time
	for _, p := range points {
		if p.FetchedAt.After(latest) {
			latest = p.FetchedAt
		}
	}
	return latest
}

func shapePrediction(asset *models.Asset, horizon models.Horizon, points []*models.PredictionPoint, source models.Source, cachedAt time.Time, warning string) *models.PredictionResponse {
	sorted := make([]*models.PredictionPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Period.Before(sorted[j].Period) })

	var modelVersion string
	var newest time.Time
	predictions := make([]models.ForecastPoint, 0, len(sorted))
	for _, p := range sorted {
		fp := models.ForecastPoint{
			Date:           p.Period.UTC().Format(dateLayout),
			PredictedClose: p.PredictedClose.InexactFloat64(),
		}
		if p.LowerBound != nil {
			v := p.LowerBound.InexactFloat64()
			fp.LowerBound = &v
		}
		if p.UpperBound != nil {
			v := p.UpperBound.InexactFloat64()
			fp.UpperBound = &v
		}
		predictions = append(predictions, fp)

		if !p.FetchedAt.Before(newest) {
			newest = p.FetchedAt
			modelVersion = p.ModelVersion
		}
	}

	return &models.PredictionResponse{
		Symbol:       asset.Symbol,
		Horizon:      horizon.String(),
		Predictions:  predictions,
		Source:       source,
		CachedAt:     cachedAt.UTC(),
		TTL:          int(horizon.TTL() / time.Second),
		ModelVersion: modelVersion,
		Warning:      warning,
	}
}
