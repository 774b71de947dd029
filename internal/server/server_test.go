package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tilt/internal/config"
	"github.com/aristath/tilt/internal/di"
)

const testSettingsYAML = `
parameters:
  tau: 0.05
  risk_aversion: 2.5
market_data:
  first_date: "2024-01-01"
  last_date: "2024-12-31"
  asset_universe:
    - id: VWCE
      label: All-World
    - id: AGGH
      label: Global Bonds
`

// newTestServer wires a full container against temp databases and returns a
// server ready for httptest traffic.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	dataDir := t.TempDir()
	settingsPath := filepath.Join(dataDir, "settings.yaml")
	require.NoError(t, os.WriteFile(settingsPath, []byte(testSettingsYAML), 0644))

	cfg := &config.Config{
		DataDir:      dataDir,
		SettingsPath: settingsPath,
		LogLevel:     "info",
		Port:         8001,
	}

	container, _, err := di.Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	return New(Config{
		Log:       zerolog.Nop(),
		Config:    cfg,
		DevMode:   true,
		Container: container,
	})
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// seedHistory imports sixty days of synthetic prices for both universe
// assets plus one capitalization observation each, all over the HTTP API.
func seedHistory(t *testing.T, srv *Server) {
	t.Helper()

	type price struct {
		Date  string  `json:"date"`
		Close float64 `json:"close"`
	}

	var vwce, aggh []price
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		date := base.AddDate(0, 0, i).Format("2006-01-02")

		// Two drifting series with different oscillation periods so the
		// sample covariance is neither singular nor perfectly correlated.
		vwceClose := 100.0 + 0.25*float64(i)
		if i%2 == 1 {
			vwceClose += 1.2
		}
		agghClose := 50.0 + 0.05*float64(i)
		if i%3 == 0 {
			agghClose += 0.3
		}

		vwce = append(vwce, price{Date: date, Close: vwceClose})
		aggh = append(aggh, price{Date: date, Close: agghClose})
	}

	rec := doRequest(t, srv, http.MethodPost, "/api/marketdata/prices/VWCE", map[string]interface{}{"prices": vwce})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = doRequest(t, srv, http.MethodPost, "/api/marketdata/prices/AGGH", map[string]interface{}{"prices": aggh})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, srv, http.MethodPost, "/api/marketdata/caps", map[string]interface{}{
		"caps": []map[string]interface{}{
			{"asset_id": "VWCE", "date": "2024-02-29", "market_cap": 600e9},
			{"asset_id": "AGGH", "date": "2024-02-29", "market_cap": 400e9},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "tilt", body["service"])
}

func TestSystemInfoEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/system/info", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "tilt", body["service"])
	assert.Equal(t, float64(3), body["database_count"])
	assert.Equal(t, false, body["cloud_backups_enabled"])
}

func TestSystemHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/system/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])

	databases, ok := body["databases"].(map[string]interface{})
	require.True(t, ok)
	for _, name := range []string{"history", "views", "results"} {
		assert.Equal(t, "ok", databases[name])
	}
}

func TestSystemDatabaseStatsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/system/database/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	databases, ok := body["databases"].([]interface{})
	require.True(t, ok)
	assert.Len(t, databases, 3)
	assert.Greater(t, body["total_size_mb"], 0.0)
}

func TestManualBackupEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/system/backup", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "not_configured", body["cloud_upload"])

	backupDir, ok := body["backup_dir"].(string)
	require.True(t, ok)
	for _, name := range []string{"history.db", "views.db", "results.db"} {
		assert.FileExists(t, filepath.Join(backupDir, name))
	}
}

func TestViewsCRUDOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/views", map[string]interface{}{
		"name":            "equities beat bonds",
		"confidence":      0.5,
		"out_performance": 0.03,
		"allocation":      map[string]float64{"VWCE": 1.0, "AGGH": -1.0},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody(t, rec)
	id, ok := created["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	rec = doRequest(t, srv, http.MethodGet, "/api/views", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])

	rec = doRequest(t, srv, http.MethodDelete, "/api/views/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/views/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViewsRejectInvalidConfidence(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/views", map[string]interface{}{
		"name":            "overconfident",
		"confidence":      1.5,
		"out_performance": 0.03,
		"allocation":      map[string]float64{"VWCE": 1.0},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEngineUniverseEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/engine/universe", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, 0.05, body["tau"])
	assert.Equal(t, 2.5, body["risk_aversion"])
	assert.Equal(t, "2024-01-01", body["start_date"])
	assert.Equal(t, "2024-12-31", body["calculation_date"])
}

func TestEngineEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	seedHistory(t, srv)

	// Capitalization-implied weights follow the imported caps exactly.
	rec := doRequest(t, srv, http.MethodGet, "/api/engine/market-weights", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	weights := decodeBody(t, rec)["weights"].(map[string]interface{})
	assert.InDelta(t, 0.6, weights["VWCE"].(float64), 1e-9)
	assert.InDelta(t, 0.4, weights["AGGH"].(float64), 1e-9)

	// With no stored views the posterior equals the market weights.
	rec = doRequest(t, srv, http.MethodPost, "/api/engine/black-litterman", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["view_count"])
	posterior := body["weights"].(map[string]interface{})
	assert.InDelta(t, 0.6, posterior["VWCE"].(float64), 1e-9)
	assert.InDelta(t, 0.4, posterior["AGGH"].(float64), 1e-9)

	// A view asserting a spread far above the equilibrium one tilts the
	// posterior towards the outperformer.
	rec = doRequest(t, srv, http.MethodPost, "/api/views", map[string]interface{}{
		"name":            "equities beat bonds",
		"confidence":      0.5,
		"out_performance": 0.10,
		"allocation":      map[string]float64{"VWCE": 1.0, "AGGH": -1.0},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(t, srv, http.MethodPost, "/api/engine/black-litterman", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body = decodeBody(t, rec)
	assert.Equal(t, float64(1), body["view_count"])

	tilted := body["weights"].(map[string]interface{})
	vwce := tilted["VWCE"].(float64)
	aggh := tilted["AGGH"].(float64)
	assert.Greater(t, vwce, 0.6)
	assert.Less(t, aggh, 0.4)
	assert.InDelta(t, 1.0, vwce+aggh, 1e-9)

	variances := body["view_variances"].(map[string]interface{})
	require.Len(t, variances, 1)
	for _, v := range variances {
		assert.Greater(t, v.(float64), 0.0)
	}
}

func TestEngineWithoutHistoryFails(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/engine/market-weights", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSnapshotRunOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	seedHistory(t, srv)

	rec := doRequest(t, srv, http.MethodPost, "/api/snapshots/run", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody(t, rec)
	assert.Equal(t, float64(0), created["view_count"])

	rec = doRequest(t, srv, http.MethodGet, "/api/snapshots/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	latest := decodeBody(t, rec)
	assert.Equal(t, created["id"], latest["id"])

	rec = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/snapshots/%v", created["id"]), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRouteReturns404(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/nonsense", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
