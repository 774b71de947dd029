package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tilt/internal/modules/views"

	_ "modernc.org/sqlite"
)

func setupTestRouter(t *testing.T) (*chi.Mux, *views.Repository) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE views (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			confidence REAL NOT NULL,
			out_performance REAL NOT NULL,
			allocation TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	require.NoError(t, err)

	repo := views.NewRepository(db, zerolog.Nop())
	handler := NewHandler(repo, zerolog.Nop())

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router, repo
}

func TestHandleCreateView(t *testing.T) {
	router, repo := setupTestRouter(t)

	body := `{"name":"tech over utilities","confidence":0.6,"out_performance":0.02,"allocation":{"TECH":1,"UTIL":-1}}`
	req := httptest.NewRequest("POST", "/views/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created views.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "tech over utilities", created.Name)

	stored, err := repo.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, stored)
}

func TestHandleCreateView_InvalidBody(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest("POST", "/views/", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateView_InvalidConfidence(t *testing.T) {
	router, _ := setupTestRouter(t)

	body := `{"name":"x","confidence":1.5,"out_performance":0.02,"allocation":{"TECH":1}}`
	req := httptest.NewRequest("POST", "/views/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListViews(t *testing.T) {
	router, repo := setupTestRouter(t)

	view, err := views.NewView("single", 0.5, 0.01, views.NewAbsoluteAllocation("TECH"))
	require.NoError(t, err)
	require.NoError(t, repo.Create(view))

	req := httptest.NewRequest("GET", "/views/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Views []views.Record `json:"views"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Count)
	require.Len(t, response.Views, 1)
	assert.Equal(t, view.ID, response.Views[0].ID)
	assert.NotZero(t, response.Views[0].CreatedAt)
}

func TestHandleGetView_NotFound(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest("GET", "/views/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleUpdateView(t *testing.T) {
	router, repo := setupTestRouter(t)

	view, err := views.NewView("original", 0.4, 0.01, views.NewAbsoluteAllocation("TECH"))
	require.NoError(t, err)
	require.NoError(t, repo.Create(view))

	body := `{"name":"revised","confidence":0.9,"out_performance":0.03,"allocation":{"TECH":1}}`
	req := httptest.NewRequest("PUT", "/views/"+view.ID, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := repo.Get(view.ID)
	require.NoError(t, err)
	assert.Equal(t, "revised", stored.Name)
	assert.Equal(t, 0.9, stored.Confidence)
}

func TestHandleUpdateView_NotFound(t *testing.T) {
	router, _ := setupTestRouter(t)

	body := `{"name":"x","confidence":0.5,"out_performance":0.01,"allocation":{"TECH":1}}`
	req := httptest.NewRequest("PUT", "/views/missing", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDeleteView(t *testing.T) {
	router, repo := setupTestRouter(t)

	view, err := views.NewView("short lived", 0.4, 0.01, views.NewAbsoluteAllocation("TECH"))
	require.NoError(t, err)
	require.NoError(t, repo.Create(view))

	req := httptest.NewRequest("DELETE", "/views/"+view.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	_, err = repo.Get(view.ID)
	assert.ErrorIs(t, err, views.ErrNotFound)
}

func TestHandleDeleteView_NotFound(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest("DELETE", "/views/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
