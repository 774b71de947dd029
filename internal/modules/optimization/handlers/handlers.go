// Package handlers exposes the Black-Litterman engine over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/tilt/internal/modules/optimization"
	"github.com/aristath/tilt/internal/modules/views"
)

// Handler handles engine HTTP requests. The engine itself never logs, so
// every failure is reported here before it is written to the client.
type Handler struct {
	engine    *optimization.Engine
	viewsRepo *views.Repository
	log       zerolog.Logger
}

// NewHandler creates a new engine handler.
func NewHandler(engine *optimization.Engine, viewsRepo *views.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		engine:    engine,
		viewsRepo: viewsRepo,
		log:       log.With().Str("handler", "engine").Logger(),
	}
}

// HandleGetUniverse returns the ordered asset universe with labels, together
// with the configured calculation window and hyperparameters.
func (h *Handler) HandleGetUniverse(w http.ResponseWriter, r *http.Request) {
	settings := h.engine.Settings()
	startDate, calculationDate := h.engine.Dates()

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"assets":           settings.Assets(),
		"count":            settings.AssetCount(),
		"start_date":       startDate,
		"calculation_date": calculationDate,
		"tau":              settings.Tau,
		"risk_aversion":    settings.RiskAversion,
	})
}

// HandleGetMarketWeights returns capitalization-implied weights as of the
// optional ?end= date. An empty date means the configured calculation date.
func (h *Handler) HandleGetMarketWeights(w http.ResponseWriter, r *http.Request) {
	endDate := r.URL.Query().Get("end")

	weights, err := h.engine.MarketWeights(endDate)
	if err != nil {
		h.log.Error().Err(err).Str("end", endDate).Msg("Failed to fetch market weights")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"weights": weights,
		"count":   len(weights),
	})
}

// HandleGetImpliedReturns returns equilibrium returns over the optional
// ?start=&end= window, scaled by the configured risk aversion. Empty dates
// mean the configured window.
func (h *Handler) HandleGetImpliedReturns(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("start")
	endDate := r.URL.Query().Get("end")

	returns, err := h.engine.MarketReturns(startDate, endDate)
	if err != nil {
		h.log.Error().Err(err).Str("start", startDate).Str("end", endDate).Msg("Failed to fetch implied returns")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"returns": returns,
		"count":   len(returns),
	})
}

type computeRequest struct {
	Start   string   `json:"start"`
	End     string   `json:"end"`
	ViewIDs []string `json:"view_ids"`
}

// HandleComputeBlackLitterman runs the full computation over the stored
// views, or the subset named by view_ids, and returns the posterior weights
// together with the calibrated per-view variances. All body fields are
// optional; an empty body means the configured window and every stored view.
func (h *Handler) HandleComputeBlackLitterman(w http.ResponseWriter, r *http.Request) {
	var req computeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	collection, err := h.loadCollection(req.ViewIDs)
	if err != nil {
		h.writeViewsError(w, err)
		return
	}

	result, err := h.engine.Compute(collection, req.Start, req.End)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"weights":        result.Weights,
		"view_variances": result.ViewVariances,
		"view_count":     collection.Len(),
	})
}

func (h *Handler) loadCollection(viewIDs []string) (views.Collection, error) {
	if len(viewIDs) > 0 {
		return h.viewsRepo.CollectionFor(viewIDs...)
	}
	return h.viewsRepo.Collection()
}

// writeEngineError maps computation failures onto HTTP statuses:
// configuration and alignment problems are the caller's fault, numerical
// failures are unprocessable, anything else is internal.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	h.log.Error().Err(err).Msg("Computation failed")

	switch {
	case errors.Is(err, optimization.ErrConfiguration),
		errors.Is(err, optimization.ErrDimensionMismatch):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, optimization.ErrSingularMatrix),
		errors.Is(err, optimization.ErrCalibrationNonConvergence):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeViewsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, views.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, views.ErrInvalidView), errors.Is(err, views.ErrDuplicateID):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
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
