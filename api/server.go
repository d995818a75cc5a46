/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. Metrics:    Prometheus request counters and latencies
  5. CORS:       Cross-origin requests for the coaching frontend

ROUTE GROUPS:
  /api/clients/{clientID}/plans/{planID}/*   Compliance tracking
  /api/plans/*                               Plan lifecycle
  /api/admin/*                               Duplicate sweep
  /api/scenarios/*                           Demo scenarios
  /metrics                                   Prometheus scrape endpoint

Write routes under /api/clients are rate limited per client.

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/complianced/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/adherence-engine/metrics"
)

// RouterOptions configures NewRouter. Zero values fall back to defaults.
type RouterOptions struct {
	AllowedOrigins []string
	Limiter        *RateLimiter
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if opts.Limiter == nil {
		opts.Limiter = NewRateLimiter(0, 1, h.Log)
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(metrics.InstrumentHTTP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Compliance routes
		r.Route("/clients/{clientID}/plans/{planID}", func(r chi.Router) {
			r.Get("/history", h.GetHistory)
			r.Get("/calendar", h.GetCalendar)
			r.Get("/summary", h.GetSummary)
			r.Get("/days/{date}", h.GetDay)

			r.Group(func(r chi.Router) {
				r.Use(opts.Limiter.Handler)
				r.Post("/days/{date}/toggle", h.ToggleItem)
				r.Put("/days/{date}/notes", h.SetNotes)
				r.Post("/rename-item", h.RenameItem)
			})
		})

		// Plan routes
		r.Route("/plans", func(r chi.Router) {
			r.Get("/", h.ListPlans)
			r.Post("/", h.CreatePlan)
			r.Get("/{id}", h.GetPlan)
			r.Post("/{id}/assign", h.AssignPlan)
			r.Post("/{id}/unassign", h.UnassignPlan)
			r.Delete("/{id}", h.DeletePlan)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.Sweep)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
