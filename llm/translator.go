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

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TranslatorConfig contains configuration for the Azure Translator
// client used by the basic translation tier.
type TranslatorConfig struct {
	Endpoint string        // Required: translate endpoint, api-version included
	APIKey   string        // Required: subscription key
	Region   string        // Required for multi-service resources
	Timeout  time.Duration // Optional: HTTP timeout (default: 30s)
}

// Translator calls the Azure Translator text API.
type Translator struct {
	endpoint string
	apiKey   string
	region   string
	client   HTTPClient
}

// TranslatorError reports a non-2xx upstream response.
type TranslatorError struct {
	StatusCode int
	Body       string
}

func (e *TranslatorError) Error() string {
	return fmt.Sprintf("azure Translator API error (status %d): %s", e.StatusCode, e.Body)
}

// NewTranslator creates an Azure Translator client.
func NewTranslator(cfg TranslatorConfig) (*Translator, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("azure Translator endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("azure Translator API key is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Translator{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		region:   cfg.Region,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// buildURL appends the language pair to the configured endpoint,
// which already carries the api-version parameter.
func (t *Translator) buildURL(from, to string) string {
	sep := "?"
	if strings.Contains(t.endpoint, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sfrom=%s&to=%s", t.endpoint, sep,
		url.QueryEscape(from), url.QueryEscape(to))
}

// Translate converts text between the given languages and returns the
// translated text.
func (t *Translator) Translate(ctx context.Context, text, from, to string) (string, error) {
	payload := []map[string]string{{"Text": text}}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.buildURL(from, to), bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", t.apiKey)
	if t.region != "" {
		httpReq.Header.Set("Ocp-Apim-Subscription-Region", t.region)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("azure Translator API error: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &TranslatorError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var apiResp []struct {
		Translations []struct {
			Text string `json:"text"`
			To   string `json:"to"`
		} `json:"translations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(apiResp) == 0 || len(apiResp[0].Translations) == 0 {
		return "", nil
	}
	return apiResp[0].Translations[0].Text, nil
}

// SetHTTPClient sets a custom HTTP client for testing.
func (t *Translator) SetHTTPClient(client HTTPClient) {
	t.client = client
}
