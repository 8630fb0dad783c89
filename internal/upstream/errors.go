package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a fetch failure
type Kind string

const (
	KindNotFound    Kind = "NOT_FOUND"
	KindUnavailable Kind = "UNAVAILABLE"
	KindTimeout     Kind = "TIMEOUT"
)

// Sentinels for errors.Is matching against a *FetchError
var (
	ErrNotFound    = errors.New("upstream: not found")
	ErrUnavailable = errors.New("upstream: unavailable")
	ErrTimeout     = errors.New("upstream: timeout")
)

// FetchError is the typed failure of a series provider
type FetchError struct {
	Kind     Kind
	Provider string
	Symbol   string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Symbol, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Symbol, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches the package sentinels by kind
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

// NotFound builds a KindNotFound error
func NotFound(provider, symbol string, err error) *FetchError {
	return &FetchError{Kind: KindNotFound, Provider: provider, Symbol: symbol, Err: err}
}

// Unavailable builds a KindUnavailable error
func Unavailable(provider, symbol string, err error) *FetchError {
	return &FetchError{Kind: KindUnavailable, Provider: provider, Symbol: symbol, Err: err}
}

// Timeout builds a KindTimeout error
func Timeout(provider, symbol string, err error) *FetchError {
	return &FetchError{Kind: KindTimeout, Provider: provider, Symbol: symbol, Err: err}
}

// FromTransport classifies an error returned by an HTTP round trip
func FromTransport(provider, symbol string, err error) *FetchError {
	if IsTimeout(err) {
		return Timeout(provider, symbol, err)
	}
	return Unavailable(provider, symbol, err)
}

// IsTimeout reports whether err is a deadline or network timeout
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// KindOf returns the kind of a *FetchError in err's chain. Errors that are
// not fetch errors count as unavailable.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if IsTimeout(err) {
		return KindTimeout
	}
	return KindUnavailable
}
