package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all view routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/views", func(r chi.Router) {
		r.Get("/", h.HandleListViews)          // List views in stable order
		r.Post("/", h.HandleCreateView)        // Create a view
		r.Get("/{id}", h.HandleGetView)        // Get a single view
		r.Put("/{id}", h.HandleUpdateView)     // Update a view
		r.Delete("/{id}", h.HandleDeleteView)  // Delete a view
	})
}
