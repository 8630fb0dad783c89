package models

import "time"

// Event types
const (
	EventHistoryRefreshed    = "HISTORY_REFRESHED"
	EventPredictionRefreshed = "PREDICTION_REFRESHED"
	EventRefreshRequested    = "REFRESH_REQUESTED"
)

// RefreshEvent is published after fresh upstream data has been persisted
type RefreshEvent struct {
	EventType   string    `json:"event_type"`
	Symbol      string    `json:"symbol"`
	Range       string    `json:"range,omitempty"`
	Granularity string    `json:"granularity,omitempty"`
	Horizon     string    `json:"horizon,omitempty"`
	PointCount  int       `json:"point_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// RefreshRequest asks the service to warm the cache for a symbol.
// Months and Interval select a history series; Horizon selects predictions.
type RefreshRequest struct {
	EventType string `json:"event_type"`
	Symbol    string `json:"symbol"`
	Months    int    `json:"months,omitempty"`
	Interval  string `json:"interval,omitempty"`
	Horizon   string `json:"horizon,omitempty"`
}
