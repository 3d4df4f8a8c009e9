package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		// Public routes (no auth required)
		r.Get("/health", h.Health)
		r.Get("/settings/public", h.PublicSettings)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Get("/journals", h.ListJournals)
			r.Post("/journal", h.CreateJournal)
			r.Put("/journals/{id}", h.UpdateJournal)
			r.Delete("/journals/{id}", h.DeleteJournal)
			r.Put("/settings", h.UpdateSettings)
		})
	})

	return r
}
