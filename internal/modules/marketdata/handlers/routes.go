package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all market data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/marketdata", func(r chi.Router) {
		r.Get("/coverage", h.HandleGetCoverage)              // History coverage per asset
		r.Get("/summary", h.HandleGetSummary)                // Descriptive statistics per asset
		r.Get("/prices/{assetID}", h.HandleGetPrices)        // Stored daily prices
		r.Post("/prices/{assetID}", h.HandleImportPrices)    // Import daily prices
		r.Post("/caps", h.HandleImportMarketCaps)            // Import market caps
	})
}
