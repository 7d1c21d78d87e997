/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through logrus
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the HR frontend

ROUTE GROUPS:
  /api/employees/*      Onboarding, balances, journal, recalculation
  /api/leaves/*         Application lifecycle
  /api/policy           Active leave policy
  /api/admin/*          Adjustments, deletion log, monthly credit job
  /healthz              Liveness check

SECURITY NOTE:
  Authentication happens in the gateway. This service trusts the
  X-Actor-Email and X-Actor-Role headers it forwards.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	r := chi.NewRouter()

	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", HeaderActorEmail, HeaderActorRole},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Post("/", h.OnboardEmployee)
			r.Get("/{email}", h.GetEmployee)
			r.Get("/{email}/balance", h.GetBalance)
			r.Get("/{email}/journal", h.GetJournal)
			r.Post("/{email}/balance/recalculate", h.RecalculateBalance)
		})

		// Leave application routes
		r.Route("/leaves", func(r chi.Router) {
			r.Get("/", h.ListLeaves)
			r.Post("/", h.SubmitLeave)
			r.Post("/validate", h.ValidateLeave)
			r.Get("/{id}", h.GetLeave)
			r.Patch("/{id}", h.EditLeave)
			r.Delete("/{id}", h.DeleteLeave)
			r.Post("/{id}/approve", h.ApproveLeave)
			r.Post("/{id}/reject", h.RejectLeave)
			r.Post("/{id}/actions", h.ActOnLeave)
		})

		// Policy routes
		r.Get("/policy", h.GetPolicy)
		r.Put("/policy", h.ReplacePolicy)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/adjustments", h.ListAdjustments)
			r.Post("/adjustments", h.CreateAdjustment)
			r.Post("/adjustments/bulk", h.CreateBulkAdjustment)
			r.Get("/deletions", h.ListDeletions)
			r.Get("/credits/logs", h.ListCredits)
			r.Post("/credits/run", h.RunCredits)
			r.Get("/credits/schedule", h.GetCreditSchedule)
		})
	})

	return r
}

// requestLogger writes one structured line per request.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.WithFields(logrus.Fields{
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"bytes":      ww.BytesWritten(),
					"duration":   time.Since(start).String(),
					"request_id": middleware.GetReqID(r.Context()),
				}).Debug("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
