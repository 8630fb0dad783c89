package models

import (
	"fmt"
	"time"
)

// Horizon is the forward span of a prediction
type Horizon string

const (
	Horizon3M Horizon = "3m"
	Horizon6M Horizon = "6m"
	Horizon1Y Horizon = "1y"
	Horizon2Y Horizon = "2y"
	Horizon5Y Horizon = "5y"
)

// HorizonBucket groups horizons that share a cache TTL
type HorizonBucket string

const (
	BucketShort  HorizonBucket = "short"
	BucketMedium HorizonBucket = "medium"
	BucketLong   HorizonBucket = "long"
)

var horizonMonths = map[Horizon]int{
	Horizon3M: 3,
	Horizon6M: 6,
	Horizon1Y: 12,
	Horizon2Y: 24,
	Horizon5Y: 60,
}

var bucketTTL = map[HorizonBucket]time.Duration{
	BucketShort:  6 * time.Hour,
	BucketMedium: 24 * time.Hour,
	BucketLong:   7 * 24 * time.Hour,
}

// ParseHorizon validates a horizon string such as "1y"
func ParseHorizon(s string) (Horizon, error) {
	h := Horizon(s)
	if _, ok := horizonMonths[h]; !ok {
		return "", fmt.Errorf("unsupported horizon: %q", s)
	}
	return h, nil
}

// Months returns the number of monthly forecast steps for the horizon
func (h Horizon) Months() int {
	return horizonMonths[h]
}

// Bucket returns the TTL bucket of the horizon
func (h Horizon) Bucket() HorizonBucket {
	switch h {
	case Horizon3M, Horizon6M:
		return BucketShort
	case Horizon1Y, Horizon2Y:
		return BucketMedium
	}
	return BucketLong
}

// TTL is how long persisted predictions for the horizon stay fresh
func (h Horizon) TTL() time.Duration {
	return bucketTTL[h.Bucket()]
}

func (h Horizon) String() string { return string(h) }
