package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PredictionPoint is one model forecast for an asset, horizon and future period
type PredictionPoint struct {
	ID             int              `json:"id"`
	AssetID        uuid.UUID        `json:"asset_id"`
	Horizon        Horizon          `json:"horizon"`
	Period         time.Time        `json:"period"`
	PredictedClose decimal.Decimal  `json:"predicted_close"`
	LowerBound     *decimal.Decimal `json:"lower_bound,omitempty"`
	UpperBound     *decimal.Decimal `json:"upper_bound,omitempty"`
	ModelVersion   string           `json:"model_version"`
	FetchedAt      time.Time        `json:"fetched_at"`
}

// Validate checks the row invariants enforced before every write
func (p *PredictionPoint) Validate() error {
	if _, err := ParseHorizon(string(p.Horizon)); err != nil {
		return err
	}
	if p.Period.IsZero() {
		return errors.New("period is required")
	}
	if p.PredictedClose.IsNegative() {
		return fmt.Errorf("predicted close is negative: %s", p.PredictedClose)
	}
	if p.LowerBound != nil && p.UpperBound != nil && p.LowerBound.GreaterThan(*p.UpperBound) {
		return fmt.Errorf("lower bound %s above upper bound %s", p.LowerBound, p.UpperBound)
	}
	return nil
}
