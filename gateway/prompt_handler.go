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
	"net/http"

	"lexigate/llm"
	"lexigate/store"
)

const promptSystemInstruction = "You are a helpful, professional AI assistant. Respond clearly and concisely."

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type promptResponse struct {
	Reply        string  `json:"reply"`
	Tokens       int64   `json:"tokens"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	Cost         float64 `json:"cost"`
}

// handlePrompt serves the Prompt AI capability: freeform completion
// with token metering.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	client := s.authenticate(w, r)
	if client == nil {
		return
	}
	if !requireTier(w, client, store.TierPromptAI) {
		return
	}
	if !checkQuota(w, client, 0) {
		return
	}

	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "Missing or invalid prompt")
		return
	}

	reply, err := s.chat.Chat(r.Context(), llm.ChatRequest{
		System:      promptSystemInstruction,
		User:        req.Prompt,
		Temperature: 0.7,
		TopP:        1,
	})
	if err != nil {
		upstreamErrors.WithLabelValues("azure-openai").Inc()
		s.log.ErrorWithCode(client.ID.Hex(), requestID(r.Context()),
			"prompt completion failed", http.StatusBadGateway, err, nil)
		writeError(w, http.StatusBadGateway, "Prompt generation failed")
		return
	}

	charge := s.meter.PriceLLM(req.Prompt, reply)
	s.meter.Record(r.Context(), client.APIKey, charge, &store.UsageRecord{
		ClientID:   client.ID,
		ClientName: client.Name,
		AIType:     store.TierPromptAI,
		Prompt:     req.Prompt,
	}, clientIP(r), false)
	observeBilling("prompt", charge.Tokens, charge.Cost)

	writeJSON(w, http.StatusOK, promptResponse{
		Reply:        reply,
		Tokens:       charge.Tokens,
		InputTokens:  charge.InputTokens,
		OutputTokens: charge.OutputTokens,
		Cost:         charge.Cost,
	})
}
