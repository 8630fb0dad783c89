package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

// Backend stores cached response bodies
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

// RedisBackend keeps response bodies in Redis
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps a connected client
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, body, ttl).Err()
}

// ResponseCache short-circuits repeated GETs with a stored body. Degraded
// and failed responses are never stored.
type ResponseCache struct {
	backend Backend
	ttl     time.Duration
	logger  logrus.FieldLogger
}

// NewResponseCache creates a cache middleware storing bodies for ttl
func NewResponseCache(backend Backend, ttl time.Duration, logger logrus.FieldLogger) *ResponseCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ResponseCache{backend: backend, ttl: ttl, logger: logger}
}

// Middleware is a mux.MiddlewareFunc
func (c *ResponseCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		key := cacheKey(r)

		raw, ok, err := c.backend.Get(ctx, key)
		if err != nil {
			c.logger.WithError(err).Warn("Response cache read failed")
		}
		if ok {
			var entry cachedResponse
			if err := json.Unmarshal(raw, &entry); err == nil && len(entry.Body) > 0 {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Cache", "HIT")
				if entry.Source != "" {
					w.Header().Set(headerSource, string(entry.Source))
				}
				w.WriteHeader(http.StatusOK)
				w.Write(entry.Body)
				return
			}
			c.logger.WithField("key", key).Warn("Discarding unreadable response cache entry")
		}

		recorder := &responseRecorder{
			ResponseWriter: w,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		w.Header().Set("X-Cache", "MISS")
		next.ServeHTTP(recorder, r)

		if recorder.status < 200 || recorder.status >= 300 || recorder.body.Len() == 0 {
			return
		}
		source := models.Source(w.Header().Get(headerSource))
		if source.Degraded() {
			return
		}
		entry, err := json.Marshal(cachedResponse{Source: source, Body: recorder.body.Bytes()})
		if err != nil {
			c.logger.WithError(err).Warn("Response cache encode failed")
			return
		}
		if err := c.backend.Set(ctx, key, entry, c.expiryFor(recorder.body.Bytes())); err != nil {
			c.logger.WithError(err).Warn("Response cache write failed")
		}
	})
}

// cachedResponse is the stored form of a replayable response
type cachedResponse struct {
	Source models.Source `json:"source"`
	Body   []byte        `json:"body"`
}

// expiryFor never keeps a body longer than the freshness window it was
// served under
func (c *ResponseCache) expiryFor(body []byte) time.Duration {
	var meta struct {
		TTL int `json:"ttl"`
	}
	if err := json.Unmarshal(body, &meta); err != nil || meta.TTL <= 0 {
		return c.ttl
	}
	return min(c.ttl, time.Duration(meta.TTL)*time.Second)
}

type responseRecorder struct {
	http.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

func cacheKey(r *http.Request) string {
	return fmt.Sprintf("cache:%s:%s?%s", r.Method, r.URL.Path, r.URL.RawQuery)
}
