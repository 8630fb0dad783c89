package upstream

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

// Observation is one historical close handed to the model
type Observation struct {
	Date  time.Time
	Close decimal.Decimal
}

// PredictionRequest is the input of a forecast
type PredictionRequest struct {
	Symbol   string
	Horizon  models.Horizon
	Currency string
	History  []Observation
}

// ForecastStep is one predicted future period
type ForecastStep struct {
	Date       time.Time
	Close      decimal.Decimal
	LowerBound *decimal.Decimal
	UpperBound *decimal.Decimal
}

// Forecast is a successful model output
type Forecast struct {
	ModelVersion  string
	InferenceTime time.Duration
	InputPoints   int
	Steps         []ForecastStep
}

// FailureReason classifies a model failure
type FailureReason string

const (
	ReasonTimeout     FailureReason = "timeout"
	ReasonUnavailable FailureReason = "unavailable"
	ReasonMalformed   FailureReason = "malformed_response"
	ReasonRejected    FailureReason = "rejected"
)

// ModelFailure explains why no forecast was produced
type ModelFailure struct {
	Reason FailureReason
	Err    error
}

func (f *ModelFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("model failure (%s): %v", f.Reason, f.Err)
	}
	return fmt.Sprintf("model failure (%s)", f.Reason)
}

func (f *ModelFailure) Unwrap() error { return f.Err }

// PredictionResult holds exactly one of a forecast or a failure
type PredictionResult struct {
	forecast *Forecast
	failure  *ModelFailure
}

// Ok wraps a successful forecast
func Ok(f *Forecast) PredictionResult {
	return PredictionResult{forecast: f}
}

// Failed wraps a model failure
func Failed(reason FailureReason, err error) PredictionResult {
	return PredictionResult{failure: &ModelFailure{Reason: reason, Err: err}}
}

// Forecast returns the forecast and true on success
func (r PredictionResult) Forecast() (*Forecast, bool) {
	return r.forecast, r.forecast != nil
}

// Failure returns the failure, or nil on success. A zero PredictionResult
// is reported as a malformed failure.
func (r PredictionResult) Failure() *ModelFailure {
	if r.forecast != nil {
		return nil
	}
	if r.failure == nil {
		return &ModelFailure{Reason: ReasonMalformed}
	}
	return r.failure
}
