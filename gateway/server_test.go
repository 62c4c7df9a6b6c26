// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Lexigate

package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("no store") }

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(func(deps *Deps) {
		deps.Health = okPinger{}
	})

	rec := env.do(http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestHealthEndpointDegraded(t *testing.T) {
	env := newTestEnv(func(deps *Deps) {
		deps.Health = failingPinger{}
	})

	rec := env.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decodeBody(t, rec)["status"])
}

func TestRequestIDEchoed(t *testing.T) {
	env := newTestEnv(nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestRequestIDGenerated(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do(http.MethodGet, "/health", "", nil)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.7"}, "10.0.0.2:1234", "203.0.113.7"},
		{"remote addr", nil, "203.0.113.5:4567", "203.0.113.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(nil)
	requestsTotal.WithLabelValues("/health", "200").Inc()

	rec := env.do(http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lexigate_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/prompt", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
