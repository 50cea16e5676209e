/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. requestLog: Structured request logging via zerolog
  4. CORS:       Cross-origin requests for the planning frontend

ROUTE GROUPS:
  /api/employees/*    Directory and per-employee views
  /api/tasks/*        Task management
  /api/assignments/*  Placement engine operations
  /api/leave/*        Absence records and approvals
  /api/health         Liveness probe
  /metrics            Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/pland/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter creates a router with all routes configured. The registry may
// be nil to skip the metrics endpoint.
func NewRouter(h *Handler, corsOrigins []string, reg *prometheus.Registry) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog(h.Log))
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.SaveEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Delete("/{id}", h.DeleteEmployee)
			r.Get("/{id}/availability", h.GetAvailability)
			r.Get("/{id}/balance", h.GetBalance)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/", h.SaveTask)
			r.Delete("/{id}", h.DeleteTask)
		})

		r.Route("/assignments", func(r chi.Router) {
			r.Post("/", h.PlaceAssignment)
			r.Get("/{id}", h.GetAssignment)
			r.Post("/{id}/resize", h.ResizeAssignment)
			r.Post("/{id}/move", h.MoveAssignment)
			r.Delete("/{id}", h.UnscheduleAssignment)
		})

		r.Route("/leave", func(r chi.Router) {
			r.Post("/requests", h.SubmitLeaveRequest)
			r.Get("/requests", h.ListLeaveRecords)
			r.Get("/requests/{id}", h.GetLeaveRecord)
			r.Post("/requests/{id}/approve", h.ApproveLeave)
			r.Post("/requests/{id}/reject", h.RejectLeave)
			r.Post("/requests/{id}/cancel", h.CancelLeave)
			r.Delete("/requests/{id}", h.DeleteLeaveRecord)
			r.Put("/allocations", h.SetAllocation)
		})
	})

	if reg != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	return r
}

// requestLog emits one structured line per request.
func requestLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
