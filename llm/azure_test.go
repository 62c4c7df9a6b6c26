// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Lexigate

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHTTPClient is a mock HTTP client for testing.
type mockHTTPClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.DoFunc(req)
}

// Helper to create a successful chat response.
func successResponse(content string) *http.Response {
	resp := map[string]any{
		"id":    "chatcmpl-test123",
		"model": "gpt-4o-mini-2024-07-18",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     12,
			"completion_tokens": 8,
			"total_tokens":      20,
		},
	}
	body, _ := json.Marshal(resp)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

// Helper to create an error response.
func errorResponse(statusCode int, code, message string) *http.Response {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"type":    "invalid_request_error",
		},
	}
	body, _ := json.Marshal(resp)
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestProvider(t *testing.T, client HTTPClient) *AzureProvider {
	t.Helper()
	p, err := NewAzureProvider(AzureConfig{
		Endpoint:   "https://test.openai.azure.com",
		APIKey:     "test-key",
		Deployment: "gpt-4o-mini",
	})
	require.NoError(t, err)
	p.SetHTTPClient(client)
	return p
}

func TestNewAzureProviderValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  AzureConfig
	}{
		{"missing endpoint", AzureConfig{APIKey: "k", Deployment: "d"}},
		{"missing api key", AzureConfig{Endpoint: "https://e", Deployment: "d"}},
		{"missing deployment", AzureConfig{Endpoint: "https://e", APIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAzureProvider(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestChat(t *testing.T) {
	var captured *http.Request
	var capturedBody map[string]any

	p := newTestProvider(t, &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			captured = req
			raw, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(raw, &capturedBody)
			return successResponse("  Hello there.  "), nil
		},
	})

	reply, err := p.Chat(context.Background(), ChatRequest{
		System:      "You are helpful.",
		User:        "say hello",
		Temperature: 0.2,
		MaxTokens:   1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", reply)

	assert.Equal(t, "test-key", captured.Header.Get("api-key"))
	assert.Contains(t, captured.URL.String(),
		"/openai/deployments/gpt-4o-mini/chat/completions?api-version=2023-05-15")

	assert.Equal(t, 0.2, capturedBody["temperature"])
	assert.Equal(t, float64(1000), capturedBody["max_tokens"])
	messages := capturedBody["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
}

func TestChatDefaultTemperature(t *testing.T) {
	var capturedBody map[string]any
	p := newTestProvider(t, &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			raw, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(raw, &capturedBody)
			return successResponse("ok"), nil
		},
	})

	_, err := p.Chat(context.Background(), ChatRequest{User: "hi", Temperature: -1})
	require.NoError(t, err)
	assert.Equal(t, DefaultTemperature, capturedBody["temperature"])
	_, hasMax := capturedBody["max_tokens"]
	assert.False(t, hasMax)
}

func TestChatAPIError(t *testing.T) {
	p := newTestProvider(t, &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return errorResponse(http.StatusUnauthorized, "invalid_api_key", "bad key"), nil
		},
	})

	_, err := p.Chat(context.Background(), ChatRequest{User: "hi"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsAuthError())
	assert.False(t, apiErr.IsRateLimitError())
}

func TestChatServerErrorMarksUnhealthy(t *testing.T) {
	p := newTestProvider(t, &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return errorResponse(http.StatusInternalServerError, "server_error", "boom"), nil
		},
	})

	assert.True(t, p.IsHealthy())
	_, err := p.Chat(context.Background(), ChatRequest{User: "hi"})
	require.Error(t, err)
	assert.False(t, p.IsHealthy())
}

func TestQueryCompleterPinsSampling(t *testing.T) {
	var capturedBody map[string]any
	p := newTestProvider(t, &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			raw, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(raw, &capturedBody)
			return successResponse("SELECT 1"), nil
		},
	})

	reply, err := QueryCompleter{Provider: p}.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", reply)
	assert.Equal(t, 0.2, capturedBody["temperature"])
	assert.Equal(t, float64(1000), capturedBody["max_tokens"])
}
