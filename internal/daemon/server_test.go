package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/shopvault/internal/maintenance"
	"github.com/edvin/shopvault/internal/model"
)

func testRouter(t *testing.T) (http.Handler, *maintenance.Coordinator) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := newMetrics(reg)
	m.backupRuns.WithLabelValues("succeeded").Inc()

	coord := maintenance.NewCoordinator(zerolog.Nop(), t.TempDir(), "")
	return newRouter(reg, coord), coord
}

func TestHealthz(t *testing.T) {
	router, _ := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shopvault_backup_runs_total")
}

func TestMaintenanceEndpoint(t *testing.T) {
	router, coord := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/maintenance", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var st model.MaintenanceState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.Active)

	_, err := coord.Enter("restore in progress")
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/maintenance", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Active)
	assert.Equal(t, "restore in progress", st.Reason)
}
