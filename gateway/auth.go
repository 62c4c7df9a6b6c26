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

package gateway

import (
	"errors"
	"net/http"

	"lexigate/connectors/base"
	"lexigate/store"
)

// apiKeyHeader is the bearer header every data-plane call presents.
const apiKeyHeader = "x-api-key"

// authenticate resolves the calling tenant from the x-api-key header,
// enforcing rate limits along the way. It writes the error response
// itself and returns nil when the request must not proceed.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) *store.Client {
	apiKey := r.Header.Get(apiKeyHeader)
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "API key is required")
		return nil
	}

	client, err := s.clients.FindClientByAPIKey(r.Context(), apiKey)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "Invalid API key")
		return nil
	}
	if err != nil {
		s.log.ErrorWithCode("", requestID(r.Context()), "client lookup failed",
			http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, "Unexpected server error")
		return nil
	}

	if s.limiter != nil && !s.limiter.Allow(r.Context(), client.ID.Hex()) {
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return nil
	}

	return client
}

// requireTier enforces the client's capability tier.
func requireTier(w http.ResponseWriter, client *store.Client, tier string) bool {
	if client.AIType != tier {
		if tier == store.TierSearchAI {
			writeError(w, http.StatusForbidden, "Client not authorized for Search AI")
		} else {
			writeError(w, http.StatusForbidden, "Client does not have access to this API")
		}
		return false
	}
	return true
}

// requireTranslationTier enforces the Translate AI sub-tier. A client
// bound to one sub-tier cannot call another tier's endpoint.
func requireTranslationTier(w http.ResponseWriter, client *store.Client, sub string) bool {
	if !requireTier(w, client, store.TierTranslateAI) {
		return false
	}
	if client.TranslationType != sub {
		writeError(w, http.StatusForbidden, "Client does not have access to this API")
		return false
	}
	return true
}

// requireDialect enforces the Search AI client's bound database dialect.
func requireDialect(w http.ResponseWriter, client *store.Client, dialect base.Dialect) bool {
	if client.Dialect != string(dialect) {
		writeError(w, http.StatusForbidden,
			"Client is not allowed to access "+string(dialect)+" databases")
		return false
	}
	return true
}

// checkQuota enforces the token limit before any billable work starts.
// incoming is added when the call's size is known up front (character
// billed calls); zero otherwise. Unlimited plans always pass.
func checkQuota(w http.ResponseWriter, client *store.Client, incoming int64) bool {
	if client.PlanType != store.PlanLimited {
		return true
	}
	if client.Usage.Tokens+incoming > client.TokenLimit || client.Usage.Tokens >= client.TokenLimit {
		writeError(w, http.StatusForbidden,
			"Your token limit has been exceeded. Please upgrade your plan.")
		return false
	}
	return true
}
