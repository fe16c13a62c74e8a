/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/points/*   Standings and direct awards
  /api/codes/*    Code issuance, preview, redemption
  /api/live       WebSocket standings feed

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-House", "X-User", "X-Admin"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/points", func(r chi.Router) {
			r.Get("/", h.GetStandings)
			r.Get("/stats", h.GetStats)
			r.Post("/", h.AddPoints)
		})

		r.Route("/codes", func(r chi.Router) {
			r.Post("/", h.IssueCode)
			r.Get("/{code}", h.PreviewCode)
			r.Post("/{code}/redeem", h.RedeemCode)
		})

		r.Get("/live", h.serveWs)
	})

	return r
}
