package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vigil-systems/vigil/collector/internal/auth"
	"github.com/vigil-systems/vigil/collector/internal/handlers"
	"github.com/vigil-systems/vigil/common/middleware"
)

// NewRouter constructs the collector's HTTP routes. Event and query routes
// sit behind API-key auth; health and metrics stay open for probes and
// scrapers.
func NewRouter(h *handlers.Handler, a *auth.Authenticator, corsOrigins []string) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/events", h.HandleEvent)
	api.HandleFunc("POST /api/v1/events/batch", h.HandleBatch)
	api.HandleFunc("GET /api/v1/events", h.HandleQuery)
	api.HandleFunc("GET /api/v1/events/{id}", h.HandleGetEvent)
	api.HandleFunc("GET /api/v1/stats", h.HandleStats)

	mux := http.NewServeMux()
	mux.Handle("/api/", a.Middleware(api))

	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(middleware.CORS(corsOrigins)(mux))
}
