package handlers

import "github.com/go-chi/chi/v5"

// RegisterRoutes registers engine routes on the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/engine", func(r chi.Router) {
		r.Get("/universe", h.HandleGetUniverse)
		r.Get("/market-weights", h.HandleGetMarketWeights)
		r.Get("/implied-returns", h.HandleGetImpliedReturns)
		r.Post("/black-litterman", h.HandleComputeBlackLitterman)
	})
}
