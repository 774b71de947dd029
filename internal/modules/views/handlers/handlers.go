// Package handlers provides HTTP handlers for managing investor views.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/tilt/internal/modules/views"
)

// Handler handles view HTTP requests
type Handler struct {
	repo *views.Repository
	log  zerolog.Logger
}

// NewHandler creates a new views handler
func NewHandler(repo *views.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "views").Logger(),
	}
}

type viewRequest struct {
	Name           string             `json:"name"`
	Confidence     float64            `json:"confidence"`
	OutPerformance float64            `json:"out_performance"`
	Allocation     map[string]float64 `json:"allocation"`
}

// HandleListViews returns all stored views in stable order.
func (h *Handler) HandleListViews(w http.ResponseWriter, r *http.Request) {
	records, err := h.repo.Records()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"views": records,
		"count": len(records),
	})
}

// HandleGetView returns a single view by id.
func (h *Handler) HandleGetView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := h.repo.Get(id)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, view)
}

// HandleCreateView stores a new view and returns it with its assigned id.
func (h *Handler) HandleCreateView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := views.NewView(req.Name, req.Confidence, req.OutPerformance, req.Allocation)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.Create(view); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, view)
}

// HandleUpdateView rewrites an existing view in place.
func (h *Handler) HandleUpdateView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req viewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view := views.View{
		ID:             id,
		Name:           req.Name,
		Confidence:     req.Confidence,
		OutPerformance: req.OutPerformance,
		Allocation:     req.Allocation,
	}

	if err := h.repo.Update(view); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, view)
}

// HandleDeleteView removes a view by id.
func (h *Handler) HandleDeleteView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.repo.Delete(id); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// writeRepoError maps repository errors onto HTTP status codes.
func (h *Handler) writeRepoError(w http.ResponseWriter, err error) {
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
