package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrDisallowedCurrency marks a point quoted in a currency outside the allowed set
var ErrDisallowedCurrency = errors.New("currency not allowed")

// PricePoint is one OHLCV observation for an asset in one bucket
type PricePoint struct {
	ID          int             `json:"id"`
	AssetID     uuid.UUID       `json:"asset_id"`
	Granularity Granularity     `json:"granularity"`
	Period      time.Time       `json:"period"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      int64           `json:"volume"`
	Currency    string          `json:"currency"`
	FetchedAt   time.Time       `json:"fetched_at"`
}

// Validate checks the row invariants enforced before every write
func (p *PricePoint) Validate() error {
	if !IsAllowedCurrency(p.Currency) {
		return fmt.Errorf("%w: %q", ErrDisallowedCurrency, p.Currency)
	}
	if !p.Granularity.Valid() {
		return fmt.Errorf("invalid granularity %q", p.Granularity)
	}
	if p.Period.IsZero() {
		return errors.New("period is required")
	}
	for name, v := range map[string]decimal.Decimal{"open": p.Open, "high": p.High, "low": p.Low, "close": p.Close} {
		if v.IsNegative() {
			return fmt.Errorf("%s is negative: %s", name, v)
		}
	}
	if p.Low.GreaterThan(p.High) {
		return fmt.Errorf("low %s above high %s", p.Low, p.High)
	}
	if p.Open.LessThan(p.Low) || p.Open.GreaterThan(p.High) {
		return fmt.Errorf("open %s outside [%s, %s]", p.Open, p.Low, p.High)
	}
	if p.Close.LessThan(p.Low) || p.Close.GreaterThan(p.High) {
		return fmt.Errorf("close %s outside [%s, %s]", p.Close, p.Low, p.High)
	}
	if p.Volume < 0 {
		return fmt.Errorf("volume is negative: %d", p.Volume)
	}
	return nil
}
