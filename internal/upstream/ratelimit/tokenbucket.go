// Package ratelimit gates calls into an upstream provider.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
	"github.com/trogers1052/nextworth-marketdata/internal/upstream"
)

// NewLimiter builds a token bucket that starts full so an initial burst goes
// through. A non-positive rate disables limiting.
func NewLimiter(tokensPerSecond float64, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if tokensPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(tokensPerSecond), burst)
}

// SeriesProvider gates a series provider with a token bucket. A caller that
// gives up while waiting, or whose deadline the wait would overrun, gets a
// timeout fetch error.
type SeriesProvider struct {
	P       upstream.SeriesProvider
	Limiter *rate.Limiter
}

// NewSeriesProvider wraps p
func NewSeriesProvider(p upstream.SeriesProvider, tokensPerSecond float64, burst int) *SeriesProvider {
	return &SeriesProvider{P: p, Limiter: NewLimiter(tokensPerSecond, burst)}
}

func (s *SeriesProvider) Name() string { return s.P.Name() }

func (s *SeriesProvider) FetchSeries(ctx context.Context, symbol string, months int, g models.Granularity) (*upstream.Series, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, upstream.Timeout(s.P.Name(), symbol, err)
		}
	}
	return s.P.FetchSeries(ctx, symbol, months, g)
}
