// Package handlers provides HTTP handlers for price and capitalization history.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/tilt/internal/modules/marketdata"
)

// Handler handles market data HTTP requests
type Handler struct {
	store     *marketdata.Store
	analytics *marketdata.Analytics
	assetIDs  []string
	startDate string
	endDate   string
	log       zerolog.Logger
}

// NewHandler creates a new market data handler. The asset ids and window are
// the configured universe and calculation window, used as defaults.
func NewHandler(store *marketdata.Store, analytics *marketdata.Analytics, assetIDs []string, startDate, endDate string, log zerolog.Logger) *Handler {
	return &Handler{
		store:     store,
		analytics: analytics,
		assetIDs:  assetIDs,
		startDate: startDate,
		endDate:   endDate,
		log:       log.With().Str("handler", "marketdata").Logger(),
	}
}

// HandleGetCoverage reports stored history per universe asset.
func (h *Handler) HandleGetCoverage(w http.ResponseWriter, r *http.Request) {
	coverage, err := h.store.Coverage(h.assetIDs)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"coverage": coverage})
}

// HandleGetPrices returns stored daily prices for one asset. Query params
// start and end override the configured window.
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	start, end := h.window(r)

	prices, err := h.store.DailyPrices(assetID, start, end)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset_id": assetID,
		"start":    start,
		"end":      end,
		"prices":   prices,
		"count":    len(prices),
	})
}

// HandleImportPrices stores daily prices for one asset.
func (h *Handler) HandleImportPrices(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")

	var req struct {
		Prices []marketdata.DailyPrice `json:"prices"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Prices) == 0 {
		h.writeError(w, http.StatusBadRequest, "no prices provided")
		return
	}

	if err := h.store.SaveDailyPrices(assetID, req.Prices); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset_id": assetID,
		"imported": len(req.Prices),
	})
}

// HandleImportMarketCaps stores capitalization observations.
func (h *Handler) HandleImportMarketCaps(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caps []marketdata.MarketCap `json:"caps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Caps) == 0 {
		h.writeError(w, http.StatusBadRequest, "no caps provided")
		return
	}

	if err := h.store.SaveMarketCaps(req.Caps); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"imported": len(req.Caps)})
}

// HandleGetSummary returns descriptive statistics per universe asset.
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	start, end := h.window(r)

	summaries, err := h.analytics.AssetSummaries(h.assetIDs, start, end)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"start":     start,
		"end":       end,
		"summaries": summaries,
	})
}

func (h *Handler) window(r *http.Request) (string, string) {
	start := r.URL.Query().Get("start")
	if start == "" {
		start = h.startDate
	}
	end := r.URL.Query().Get("end")
	if end == "" {
		end = h.endDate
	}
	return start, end
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
