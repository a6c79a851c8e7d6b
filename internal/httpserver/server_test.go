package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/httpserver"
)

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth_OK(t *testing.T) {
	s := httpserver.New(":0", "1.2.3", map[string]httpserver.Check{
		"redis": func(context.Context) error { return nil },
	}, zap.NewNop())

	rec, body := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, map[string]any{"redis": "ok"}, body["checks"])
}

func TestHealth_Degraded(t *testing.T) {
	s := httpserver.New(":0", "dev", map[string]httpserver.Check{
		"postgres": func(context.Context) error { return errors.New("connection refused") },
		"redis":    func(context.Context) error { return nil },
	}, zap.NewNop())

	rec, body := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "connection refused", checks["postgres"])
	assert.Equal(t, "ok", checks["redis"])
}

func TestMetrics(t *testing.T) {
	s := httpserver.New(":0", "dev", nil, zap.NewNop())
	rec, _ := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := httpserver.New("127.0.0.1:0", "dev", nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}
