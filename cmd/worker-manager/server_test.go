package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]readinessCheck
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "all dependencies up",
			checks:     map[string]readinessCheck{"postgres": ok, "redis": ok},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok"},
		},
		{
			name: "redis down",
			checks: map[string]readinessCheck{
				"postgres": ok,
				"redis":    func(context.Context) error { return errors.New("redis ping failed") },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "ok", "redis": "redis ping failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newMux(tt.checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body struct {
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantChecks, body.Checks)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewHTTPServer_DefaultPort(t *testing.T) {
	assert.Equal(t, ":8080", newHTTPServer(0, nil).Addr)
	assert.Equal(t, ":9090", newHTTPServer(9090, nil).Addr)
}
