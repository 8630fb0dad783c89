package models

import "time"

// Source tags where a response's data came from
type Source string

const (
	SourceCache      Source = "cache"
	SourceUpstream   Source = "upstream"
	SourceStale      Source = "stale"
	SourceModel      Source = "model"
	SourceStaleCache Source = "stale_cache"
)

// Degraded reports whether the response was served from expired data
func (s Source) Degraded() bool {
	return s == SourceStale || s == SourceStaleCache
}

// SeriesPoint is one entry of a history response series
type SeriesPoint struct {
	Date      string  `json:"date"`
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	Currency  string  `json:"currency"`
}

// HistoryResponse is the shaped result of a history lookup
type HistoryResponse struct {
	Symbol       string        `json:"symbol"`
	Name         string        `json:"name"`
	Category     string        `json:"category"`
	Currency     string        `json:"currency"`
	CurrentPrice *float64      `json:"currentPrice"`
	Range        string        `json:"range"`
	Granularity  string        `json:"granularity"`
	PointCount   int           `json:"pointCount"`
	Series       []SeriesPoint `json:"series"`
	Source       Source        `json:"source"`
	CachedAt     time.Time     `json:"cachedAt"`
	TTL          int           `json:"ttl"`
	Warning      string        `json:"warning,omitempty"`
}

// ForecastPoint is one entry of a prediction response
type ForecastPoint struct {
	Date           string   `json:"date"`
	PredictedClose float64  `json:"predictedClose"`
	LowerBound     *float64 `json:"lowerBound,omitempty"`
	UpperBound     *float64 `json:"upperBound,omitempty"`
}

// PredictionResponse is the shaped result of a prediction lookup
type PredictionResponse struct {
	Symbol       string          `json:"symbol"`
	Horizon      string          `json:"horizon"`
	Predictions  []ForecastPoint `json:"predictions"`
	Source       Source          `json:"source"`
	CachedAt     time.Time       `json:"cachedAt"`
	TTL          int             `json:"ttl"`
	ModelVersion string          `json:"modelVersion"`
	Warning      string          `json:"warning,omitempty"`
}
