// Package freshness decides whether persisted points can answer a request
// without calling an upstream.
package freshness

import (
	"math"
	"time"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

// SufficiencyRatio is the share of expected buckets that must be fresh for
// a history series to count as a cache hit. It absorbs holidays and short
// listing histories.
const SufficiencyRatio = 0.8

// ExpectedPoints is the number of buckets a span of months should contain
func ExpectedPoints(months int, g models.Granularity) float64 {
	return float64(months) * g.PointsPerMonth()
}

// SeriesResult is the outcome of evaluating a persisted history span
type SeriesResult struct {
	Sufficient bool
	Fresh      int
	Expected   float64
	Points     []*models.PricePoint
}

// Coverage is the fresh count divided by the expected count
func (r SeriesResult) Coverage() float64 {
	if r.Expected <= 0 {
		return 0
	}
	return float64(r.Fresh) / r.Expected
}

// EvaluateSeries counts points fetched after now-ttl and compares them with
// SufficiencyRatio of expected
func EvaluateSeries(points []*models.PricePoint, expected float64, ttl time.Duration, now time.Time) SeriesResult {
	cutoff := now.Add(-ttl)
	fresh := 0
	for _, p := range points {
		if p.FetchedAt.After(cutoff) {
			fresh++
		}
	}

	// Compare integers so float noise cannot flip the boundary
	required := int(math.Ceil(SufficiencyRatio*expected - 1e-9))
	return SeriesResult{
		Sufficient: expected > 0 && fresh >= required,
		Fresh:      fresh,
		Expected:   expected,
		Points:     points,
	}
}

// PredictionResult is the outcome of evaluating persisted forecasts
type PredictionResult struct {
	Sufficient bool
	Fresh      int
	Points     []*models.PredictionPoint
}

// EvaluatePredictions requires at least one forecast fetched after now-ttl.
// Only the fresh rows are returned for reuse.
func EvaluatePredictions(points []*models.PredictionPoint, ttl time.Duration, now time.Time) PredictionResult {
	cutoff := now.Add(-ttl)
	var fresh []*models.PredictionPoint
	for _, p := range points {
		if p.FetchedAt.After(cutoff) {
			fresh = append(fresh, p)
		}
	}
	return PredictionResult{
		Sufficient: len(fresh) > 0,
		Fresh:      len(fresh),
		Points:     fresh,
	}
}
