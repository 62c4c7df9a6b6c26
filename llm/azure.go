// Copyright 2025 Lexigate
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package llm holds the upstream model clients: an Azure OpenAI chat
// client used by the prompt, search, and LLM translation tiers, and an
// Azure Translator client for the basic tier.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultAPIVersion is the Azure OpenAI API version used when the
	// configuration does not pin one.
	DefaultAPIVersion = "2023-05-15"

	// DefaultTimeout is the HTTP timeout for upstream model calls.
	DefaultTimeout = 120 * time.Second

	// DefaultTemperature applies when a chat request does not set one.
	DefaultTemperature = 0.7
)

// HTTPClient is an interface for HTTP client operations (enables testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// AzureConfig contains configuration for the Azure OpenAI provider.
type AzureConfig struct {
	Endpoint   string        // Required: Azure OpenAI endpoint URL
	APIKey     string        // Required: Azure OpenAI API key
	Deployment string        // Required: deployment name
	APIVersion string        // Optional: API version (default: 2023-05-15)
	Timeout    time.Duration // Optional: HTTP timeout (default: 120s)
}

// AzureProvider is a chat completion client for Azure OpenAI.
type AzureProvider struct {
	endpoint   string
	apiKey     string
	deployment string
	apiVersion string
	client     HTTPClient
	healthy    bool
	mu         sync.RWMutex
}

// ChatRequest is one system/user exchange with sampling parameters.
type ChatRequest struct {
	System      string
	User        string
	Temperature float64 // negative means use the default
	MaxTokens   int     // zero means no explicit cap
	TopP        float64 // zero means omit
}

// NewAzureProvider creates an Azure OpenAI chat client.
func NewAzureProvider(cfg AzureConfig) (*AzureProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("azure OpenAI endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("azure OpenAI API key is required")
	}
	if cfg.Deployment == "" {
		return nil, fmt.Errorf("azure OpenAI deployment name is required")
	}

	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &AzureProvider{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		deployment: cfg.Deployment,
		apiVersion: cfg.APIVersion,
		client:     &http.Client{Timeout: cfg.Timeout},
		healthy:    true,
	}, nil
}

// IsHealthy reports whether the last upstream call succeeded.
func (p *AzureProvider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy && p.apiKey != ""
}

func (p *AzureProvider) setHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

func (p *AzureProvider) buildURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		p.endpoint, p.deployment, p.apiVersion)
}

// Chat sends one completion request and returns the assistant's reply
// text, trimmed.
func (p *AzureProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	temperature := req.Temperature
	if temperature < 0 {
		temperature = DefaultTemperature
	}

	messages := make([]map[string]string, 0, 2)
	if req.System != "" {
		messages = append(messages, map[string]string{
			"role":    "system",
			"content": req.System,
		})
	}
	messages = append(messages, map[string]string{
		"role":    "user",
		"content": req.User,
	})

	apiReq := map[string]any{
		"messages":    messages,
		"temperature": temperature,
	}
	if req.MaxTokens > 0 {
		apiReq["max_tokens"] = req.MaxTokens
	}
	if req.TopP > 0 {
		apiReq["top_p"] = req.TopP
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.buildURL(), bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.setHealthy(false)
		return "", fmt.Errorf("azure OpenAI API error: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			p.setHealthy(false)
		}
		return "", parseAPIError(resp.StatusCode, body)
	}

	p.setHealthy(true)

	var apiResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(apiResp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(apiResp.Choices[0].Message.Content), nil
}

// SetHTTPClient sets a custom HTTP client for testing.
func (p *AzureProvider) SetHTTPClient(client HTTPClient) {
	p.client = client
}

// QueryCompleter adapts the provider to query synthesis: temperature
// pinned low for determinism and output capped at 1000 tokens.
type QueryCompleter struct {
	Provider *AzureProvider
}

func (q QueryCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	return q.Provider.Chat(ctx, ChatRequest{
		System:      system,
		User:        user,
		Temperature: 0.2,
		MaxTokens:   1000,
	})
}

// parseAPIError parses an API error response.
func parseAPIError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		return fmt.Errorf("azure OpenAI API error (status %d): %s", statusCode, string(body))
	}

	return &APIError{
		StatusCode: statusCode,
		Code:       errResp.Error.Code,
		Type:       errResp.Error.Type,
		Message:    errResp.Error.Message,
	}
}

// APIError represents an Azure OpenAI API error.
type APIError struct {
	StatusCode int
	Code       string
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("azure OpenAI API error (status %d, code %s, type %s): %s",
		e.StatusCode, e.Code, e.Type, e.Message)
}

// IsRateLimitError returns true if this is a rate limit error.
func (e *APIError) IsRateLimitError() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == "rate_limit_exceeded"
}

// IsAuthError returns true if this is an authentication error.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode == http.StatusForbidden ||
		e.Code == "invalid_api_key"
}

// Internal API types (OpenAI-compatible format)

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
