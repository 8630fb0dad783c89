package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes. When cache is non-nil, market data
// GETs are served through it.
func SetupRoutes(handler *Handler, cache *ResponseCache) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// Market data routes
	api := r.PathPrefix("/api/v1").Subrouter()
	if cache != nil {
		api.Use(cache.Middleware)
	}
	api.HandleFunc("/history/{symbol}", handler.GetHistory).Methods("GET")
	api.HandleFunc("/predictions/{symbol}", handler.GetPrediction).Methods("GET")

	return r
}
