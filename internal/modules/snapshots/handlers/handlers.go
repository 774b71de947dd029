// Package handlers provides HTTP handlers for weight snapshot operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/tilt/internal/modules/snapshots"
)

// Handler handles snapshot HTTP requests
type Handler struct {
	service *snapshots.Service
	repo    *snapshots.Repository
	log     zerolog.Logger
}

// NewHandler creates a new snapshots handler
func NewHandler(service *snapshots.Service, repo *snapshots.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		repo:    repo,
		log:     log.With().Str("handler", "snapshots").Logger(),
	}
}

// HandleList returns recent snapshots, newest first. Query param limit caps
// the result size.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	list, err := h.repo.List(limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": list,
		"count":     len(list),
	})
}

// HandleLatest returns the most recent snapshot.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.repo.Latest()
	if err != nil {
		if errors.Is(err, snapshots.ErrNoSnapshots) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, snapshot)
}

// HandleGet returns one snapshot by id.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid snapshot id")
		return
	}

	snapshot, err := h.repo.Get(id)
	if err != nil {
		if errors.Is(err, snapshots.ErrNoSnapshots) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, snapshot)
}

// HandleRun computes target weights from the stored views and persists the
// result.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Run()
	if err != nil {
		h.log.Error().Err(err).Msg("Snapshot run failed")
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, snapshot)
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
