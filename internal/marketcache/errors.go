package marketcache

import "errors"

// Outcomes surfaced to callers. Every failure returned by the Service wraps
// exactly one of these.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("symbol not found")
	ErrUnavailable       = errors.New("market data unavailable")
	ErrInsufficientInput = errors.New("insufficient history for prediction")
)
