// Package httptransport assembles the PIMS HTTP surface: shared middleware,
// health and metrics endpoints, and the authenticated module handlers.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pims/pkg/platform/httputil"
	"pims/pkg/platform/middleware/auth"
	"pims/pkg/platform/middleware/request"
	"pims/pkg/platform/middleware/requesttime"
)

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the pieces the router wires together. Nil metrics or an empty
// handler list are allowed.
type Deps struct {
	Logger         *slog.Logger
	Metrics        request.HTTPMetrics
	TokenValidator auth.TokenValidator
	Handlers       []Registrar
	HealthChecks   map[string]HealthCheck
	RequestTimeout time.Duration
	// RateLimit runs after authentication. Nil disables it.
	RateLimit func(http.Handler) http.Handler
}

// NewRouter wires all public endpoints.
func NewRouter(d Deps) http.Handler {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(d.Logger))
	r.Use(request.Logger(d.Logger))
	r.Use(request.Metrics(d.Metrics))
	r.Use(requesttime.Middleware)
	r.Use(chimiddleware.Timeout(timeout))

	r.Get("/health", healthHandler(d.HealthChecks))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(d.TokenValidator, d.Logger))
		if d.RateLimit != nil {
			r.Use(d.RateLimit)
		}
		for _, h := range d.Handlers {
			h.Register(r)
		}
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": state, "checks": results})
	}
}
