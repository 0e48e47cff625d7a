// Package httpapi assembles the public router: shared middleware, the
// contact routes and the metrics endpoint.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	platformmetrics "reconciler/internal/platform/metrics"
	"reconciler/pkg/platform/middleware/metadata"
	"reconciler/pkg/platform/middleware/requesttime"
)

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig carries the transport level knobs.
type RouterConfig struct {
	AllowedOrigins []string
	Metrics        *platformmetrics.Metrics
	Gatherer       prometheus.Gatherer
}

// NewRouter wires middleware in the order handlers rely on: request id and
// client metadata first, then the request clock, then recovery.
func NewRouter(cfg RouterConfig, registrars ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Use(metadata.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.AllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", metadata.RequestIDHeader},
		ExposedHeaders: []string{metadata.RequestIDHeader, "Retry-After"},
		MaxAge:         300,
	}))

	for _, reg := range registrars {
		reg.Register(r)
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
