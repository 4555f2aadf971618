/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. RealIP:     Client address from proxy headers
  3. Logger:     zap request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Prometheus count and latency per route pattern
  6. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/leave/*     Authenticated; decisions need MANAGER or ADMIN
  /api/scenarios/* ADMIN only
  /healthz         Public liveness
  /metrics         Public Prometheus scrape

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Authentication and role gate
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/leave-ledger/auth"
	"github.com/warp/leave-ledger/metrics"
)

// RouterConfig carries what the router needs beyond the handlers.
type RouterConfig struct {
	Verifier       *auth.Verifier
	Metrics        *metrics.Collector
	AllowedOrigins []string
}

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.log))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", h.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(cfg.Verifier))

		r.Route("/leave", func(r chi.Router) {
			r.Post("/requests", h.SubmitLeaveRequest)
			r.Get("/requests/me", h.GetMyLeaveRequests)
			r.Get("/balances/me", h.GetMyLeaveBalances)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(auth.RoleManager, auth.RoleAdmin))
				r.Get("/requests/pending", h.GetPendingRequests)
				r.Put("/requests/{id}/status", h.UpdateRequestStatus)
			})
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Use(RequireRole(auth.RoleAdmin))
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
