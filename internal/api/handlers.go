package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/trogers1052/nextworth-marketdata/internal/marketcache"
	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

const (
	defaultMonths = 12
	headerSource  = "X-Data-Source"
)

// MarketData is the read API served over HTTP. *marketcache.Service
// satisfies it.
type MarketData interface {
	GetHistory(ctx context.Context, req marketcache.HistoryRequest) (*models.HistoryResponse, error)
	GetPrediction(ctx context.Context, symbol string, horizon models.Horizon) (*models.PredictionResponse, error)
}

// Pinger reports store connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	service MarketData
	db      Pinger
	logger  logrus.FieldLogger
}

// NewHandler creates a new Handler
func NewHandler(service MarketData, db Pinger, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		service: service,
		db:      db,
		logger:  logger,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// GetHistory handles GET /history/{symbol}?months=&interval=&ttl=
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	query := r.URL.Query()

	req := marketcache.HistoryRequest{
		Symbol:      symbol,
		Months:      defaultMonths,
		Granularity: models.GranularityMonthly,
	}
	if v := query.Get("months"); v != "" {
		months, err := strconv.Atoi(v)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorBody{Error: "months must be an integer"})
			return
		}
		req.Months = months
	}
	if v := query.Get("interval"); v != "" {
		g, err := models.ParseGranularity(v)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		req.Granularity = g
	}
	if v := query.Get("ttl"); v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil || ttl <= 0 {
			respondJSON(w, http.StatusBadRequest, errorBody{Error: "ttl must be a positive number of seconds"})
			return
		}
		req.TTL = time.Duration(ttl) * time.Second
	}

	resp, err := h.service.GetHistory(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	w.Header().Set(headerSource, string(resp.Source))
	respondJSON(w, http.StatusOK, resp)
}

// GetPrediction handles GET /predictions/{symbol}?horizon=
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	horizon := models.Horizon1Y
	if v := r.URL.Query().Get("horizon"); v != "" {
		parsed, err := models.ParseHorizon(v)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		horizon = parsed
	}

	resp, err := h.service.GetPrediction(r.Context(), symbol, horizon)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	w.Header().Set(headerSource, string(resp.Source))
	respondJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "healthy", "database": "up"}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.WithError(err).Warn("Health check failed to reach database")
			status["status"] = "degraded"
			status["database"] = "down"
			respondJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	respondJSON(w, http.StatusOK, status)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := h.logger.WithError(err).WithField("path", r.URL.Path)
	if status >= http.StatusInternalServerError {
		log.Warn("Market data request failed")
	} else {
		log.Debug("Market data request rejected")
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	respondJSON(w, status, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, marketcache.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, marketcache.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, marketcache.ErrInsufficientInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, marketcache.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
