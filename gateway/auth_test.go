// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Lexigate

package gateway

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexigate/store"
)

func TestAuthenticateMissingKey(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do(http.MethodPost, "/api/v1/prompt", "", map[string]string{"prompt": "hi"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "API key is required", decodeBody(t, rec)["error"])
}

func TestAuthenticateUnknownKey(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do(http.MethodPost, "/api/v1/prompt", "no-such-key", map[string]string{"prompt": "hi"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid API key", decodeBody(t, rec)["error"])
}

func TestAuthenticateRateLimited(t *testing.T) {
	env := newTestEnv(func(deps *Deps) {
		deps.Limiter = denyLimiter{}
	})
	env.clients.add(&store.Client{
		Name:     "acme",
		APIKey:   "key-acme",
		AIType:   store.TierPromptAI,
		PlanType: store.PlanUnlimited,
	})

	rec := env.do(http.MethodPost, "/api/v1/prompt", "key-acme", map[string]string{"prompt": "hi"})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded", decodeBody(t, rec)["error"])
}

func TestTierEnforcement(t *testing.T) {
	env := newTestEnv(nil)
	env.clients.add(&store.Client{
		Name:     "acme",
		APIKey:   "key-acme",
		AIType:   store.TierPromptAI,
		PlanType: store.PlanUnlimited,
	})

	tests := []struct {
		name    string
		path    string
		body    interface{}
		wantErr string
	}{
		{
			name:    "prompt client cannot search",
			path:    "/api/v1/search/mongodb",
			body:    map[string]string{"prompt": "hi", "table": "users"},
			wantErr: "Client not authorized for Search AI",
		},
		{
			name:    "prompt client cannot translate",
			path:    "/api/v1/translate/basic",
			body:    map[string]string{"text": "hi", "baseLanguage": "en", "targetLanguage": "de"},
			wantErr: "Client does not have access to this API",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, tt.path, "key-acme", tt.body)
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, tt.wantErr, decodeBody(t, rec)["error"])
		})
	}
}

func TestTranslationSubTierEnforcement(t *testing.T) {
	env := newTestEnv(nil)
	env.clients.add(&store.Client{
		Name:            "acme",
		APIKey:          "key-acme",
		AIType:          store.TierTranslateAI,
		TranslationType: store.TranslationBasic,
		PlanType:        store.PlanUnlimited,
	})

	rec := env.do(http.MethodPost, "/api/v1/translate/expert", "key-acme",
		map[string]string{"text": "hi", "baseLanguage": "en", "targetLanguage": "de"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Client does not have access to this API", decodeBody(t, rec)["error"])
}

func TestDialectEnforcement(t *testing.T) {
	env := newTestEnv(nil)
	env.clients.add(&store.Client{
		Name:     "acme",
		APIKey:   "key-acme",
		AIType:   store.TierSearchAI,
		Dialect:  "MongoDB",
		PlanType: store.PlanUnlimited,
	})

	rec := env.do(http.MethodPost, "/api/v1/search/mysql", "key-acme",
		map[string]interface{}{"prompt": "hi", "table": "users"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Client is not allowed to access MySQL databases", decodeBody(t, rec)["error"])
}

func TestQuotaBlocksExhaustedPlan(t *testing.T) {
	env := newTestEnv(nil)
	env.clients.add(&store.Client{
		Name:       "acme",
		APIKey:     "key-acme",
		AIType:     store.TierPromptAI,
		PlanType:   store.PlanLimited,
		TokenLimit: 100,
		Usage:      store.Usage{Tokens: 100},
	})

	rec := env.do(http.MethodPost, "/api/v1/prompt", "key-acme", map[string]string{"prompt": "hi"})

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Your token limit has been exceeded. Please upgrade your plan.",
		decodeBody(t, rec)["error"])
}

func TestQuotaAdmitsClientUnderLimit(t *testing.T) {
	env := newTestEnv(nil)
	env.clients.add(&store.Client{
		Name:       "acme",
		APIKey:     "key-acme",
		AIType:     store.TierPromptAI,
		PlanType:   store.PlanLimited,
		TokenLimit: 100,
		Usage:      store.Usage{Tokens: 99},
	})

	// One token of headroom is enough: the limit caps admission, not the
	// size of the admitted call, so a single call may overshoot it.
	rec := env.do(http.MethodPost, "/api/v1/prompt", "key-acme", map[string]string{"prompt": "hi"})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQuotaIgnoresUnlimitedPlan(t *testing.T) {
	env := newTestEnv(nil)
	env.clients.add(&store.Client{
		Name:     "acme",
		APIKey:   "key-acme",
		AIType:   store.TierPromptAI,
		PlanType: store.PlanUnlimited,
		Usage:    store.Usage{Tokens: 1 << 40},
	})

	rec := env.do(http.MethodPost, "/api/v1/prompt", "key-acme", map[string]string{"prompt": "hi"})

	assert.Equal(t, http.StatusOK, rec.Code)
}
