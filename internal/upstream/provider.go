// Package upstream defines the contracts of the external price history and
// prediction sources, plus the normalization shared by every adapter.
package upstream

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

// Bar is one normalized observation returned by a series provider
type Bar struct {
	Period   time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   int64
	Currency string
}

// Series is a normalized upstream history. Bars are oldest first with one
// bar per bucket.
type Series struct {
	Symbol      string
	Name        string
	Currency    string
	Granularity models.Granularity
	Bars        []Bar
}

// SeriesProvider fetches price history. Failures are *FetchError.
type SeriesProvider interface {
	Name() string
	FetchSeries(ctx context.Context, symbol string, months int, g models.Granularity) (*Series, error)
}

// PredictionProvider runs a forecast model over a history. It never returns
// a bare error: every failure is a ModelFailure inside the result.
type PredictionProvider interface {
	Name() string
	Predict(ctx context.Context, req PredictionRequest) PredictionResult
}
