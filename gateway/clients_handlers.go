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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"lexigate/connectors/base"
	"lexigate/store"
)

type createClientRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Domain          string `json:"domain"`
	PlanType        string `json:"planType"`
	TokenLimit      int64  `json:"tokenLimit"`
	AIModel         string `json:"aiModel"`
	AIType          string `json:"idxAiType"`
	TranslationType string `json:"translationType"`
	Dialect         string `json:"idxdb"`
}

// validate enforces the tenant provisioning rules and returns the
// error message for the first violation.
func (req createClientRequest) validate() string {
	if req.Name == "" || req.Email == "" || req.Domain == "" ||
		req.PlanType == "" || req.AIType == "" {
		return "Missing required fields"
	}
	if req.PlanType != store.PlanLimited && req.PlanType != store.PlanUnlimited {
		return "Invalid plan type"
	}
	if req.PlanType == store.PlanLimited && req.TokenLimit <= 0 {
		return "Token limit is required for limited plan"
	}
	switch req.AIType {
	case store.TierPromptAI, store.TierTranslateAI, store.TierSearchAI:
	default:
		return "Invalid AI type"
	}
	if req.AIType == store.TierTranslateAI {
		switch req.TranslationType {
		case store.TranslationBasic, store.TranslationAdvanced, store.TranslationExpert:
		default:
			return "Invalid or missing translation type for Translate AI"
		}
	}
	if req.AIType == store.TierSearchAI && !base.Dialect(req.Dialect).Valid() {
		return "Invalid or missing database type for Search AI"
	}
	return ""
}

// handleListClients returns every tenant record.
func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.clients.ListClients(r.Context())
	if err != nil {
		s.log.ErrorWithCode("", requestID(r.Context()), "client listing failed",
			http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, "Error fetching clients")
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

// handleCreateClient provisions a tenant and returns its fresh API key.
func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	client := &store.Client{
		Name:     req.Name,
		Email:    req.Email,
		Domain:   req.Domain,
		PlanType: req.PlanType,
		AIModel:  req.AIModel,
		AIType:   req.AIType,
	}
	if req.PlanType == store.PlanLimited {
		client.TokenLimit = req.TokenLimit
	}
	if req.AIType == store.TierTranslateAI {
		client.TranslationType = req.TranslationType
	}
	if req.AIType == store.TierSearchAI {
		client.Dialect = req.Dialect
	}

	if err := s.clients.CreateClient(r.Context(), client); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict,
				"Client with same name, email or domain already exists")
			return
		}
		s.log.ErrorWithCode("", requestID(r.Context()), "client creation failed",
			http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, "Error creating client")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Client created successfully",
		"clientId": client.ID.Hex(),
		"apiKey":   client.APIKey,
	})
}

// handleGetClient returns one tenant by ID.
func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	client, err := s.clients.GetClient(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrInvalidID) {
		writeError(w, http.StatusBadRequest, "Invalid client ID")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Client not found")
		return
	}
	if err != nil {
		s.log.ErrorWithCode("", requestID(r.Context()), "client fetch failed",
			http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, "Error fetching client")
		return
	}
	writeJSON(w, http.StatusOK, client)
}

type updateClientRequest struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Domain           string `json:"domain"`
	TranslationType  string `json:"translationType"`
	PlanType         string `json:"planType"`
	TokenLimit       int64  `json:"tokenLimit"`
	RegenerateAPIKey bool   `json:"regenerateApiKey"`
}

// handleUpdateClient edits a tenant, optionally rotating its API key.
func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	var req updateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.Name == "" || req.Email == "" || req.Domain == "" ||
		req.TranslationType == "" || req.PlanType == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	switch req.TranslationType {
	case store.TranslationBasic, store.TranslationAdvanced, store.TranslationExpert:
	default:
		writeError(w, http.StatusBadRequest, "Invalid translation type")
		return
	}
	if req.PlanType != store.PlanLimited && req.PlanType != store.PlanUnlimited {
		writeError(w, http.StatusBadRequest, "Invalid plan type")
		return
	}
	if req.PlanType == store.PlanLimited && req.TokenLimit <= 0 {
		writeError(w, http.StatusBadRequest, "Token limit is required for limited plan")
		return
	}

	client, err := s.clients.UpdateClient(r.Context(), mux.Vars(r)["id"], store.ClientUpdate{
		Name:            req.Name,
		Email:           req.Email,
		Domain:          req.Domain,
		TranslationType: req.TranslationType,
		PlanType:        req.PlanType,
		TokenLimit:      req.TokenLimit,
		RegenerateKey:   req.RegenerateAPIKey,
	})
	if errors.Is(err, store.ErrInvalidID) {
		writeError(w, http.StatusBadRequest, "Invalid client ID")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Client not found")
		return
	}
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, http.StatusConflict,
			"Email or domain is already in use by another client")
		return
	}
	if err != nil {
		s.log.ErrorWithCode("", requestID(r.Context()), "client update failed",
			http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, "Error updating client")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Client updated successfully",
		"client":  client,
	})
}

// handleRegenerateKey rotates a tenant's API key without touching the
// rest of the record. The old key stops working immediately.
func (s *Server) handleRegenerateKey(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	client, err := s.clients.GetClient(r.Context(), id)
	if errors.Is(err, store.ErrInvalidID) {
		writeError(w, http.StatusBadRequest, "Invalid client ID")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Client not found")
		return
	}
	if err != nil {
		s.log.ErrorWithCode("", requestID(r.Context()), "client fetch failed",
			http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, "Error regenerating API key")
		return
	}

	updated, err := s.clients.UpdateClient(r.Context(), id, store.ClientUpdate{
		Name:            client.Name,
		Email:           client.Email,
		Domain:          client.Domain,
		TranslationType: client.TranslationType,
		PlanType:        client.PlanType,
		TokenLimit:      client.TokenLimit,
		RegenerateKey:   true,
	})
	if err != nil {
		s.log.ErrorWithCode("", requestID(r.Context()), "key rotation failed",
			http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, "Error regenerating API key")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "API key regenerated successfully",
		"apiKey":  updated.APIKey,
	})
}

// handleDeleteClient removes a tenant and its ledger entries.
func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	err := s.clients.DeleteClient(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrInvalidID) {
		writeError(w, http.StatusBadRequest, "Invalid client ID")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Client not found")
		return
	}
	if err != nil {
		s.log.ErrorWithCode("", requestID(r.Context()), "client deletion failed",
			http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, "Error deleting client")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Client deleted successfully",
	})
}
