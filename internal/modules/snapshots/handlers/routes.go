package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all snapshot routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/snapshots", func(r chi.Router) {
		r.Get("/", h.HandleList)        // Recent snapshots, newest first
		r.Get("/latest", h.HandleLatest) // Most recent snapshot
		r.Get("/{id}", h.HandleGet)      // One snapshot by id
		r.Post("/run", h.HandleRun)      // Compute and persist a new snapshot
	})
}
