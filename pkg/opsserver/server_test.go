package opsserver

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebuilder/pkg/logx"
	"sitebuilder/pkg/metrics"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, NewHandler(prometheus.NewRegistry()), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestHealthzRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(prometheus.NewRegistry()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsExposeRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewPrometheusRecorder(reg).ObserveDeployment("deployed", 0)

	rec := get(t, NewHandler(reg), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sitebuilder_deployments_total{status="deployed"} 1`)
}

func TestVersion(t *testing.T) {
	rec := get(t, NewHandler(prometheus.NewRegistry()), "/version")
	assert.Contains(t, rec.Body.String(), "sitebuilder dev")
}

func TestStartAndShutdown(t *testing.T) {
	t.Cleanup(logx.SetOutput(&bytes.Buffer{}))

	s, err := Start("127.0.0.1:0", prometheus.NewRegistry())
	require.NoError(t, err)

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	require.NoError(t, s.Shutdown(context.Background()))
	_, err = http.Get("http://" + s.Addr() + "/healthz")
	assert.Error(t, err)
}
