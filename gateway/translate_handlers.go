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
	"fmt"
	"net/http"

	"lexigate/llm"
	"lexigate/store"
)

type translateRequest struct {
	Text           string `json:"text"`
	BaseLanguage   string `json:"baseLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

func (t translateRequest) valid() bool {
	return t.Text != "" && t.BaseLanguage != "" && t.TargetLanguage != ""
}

// basicTranslateResponse carries only tokens and cost: the basic tier
// bills characters, so there is no input/output split.
type basicTranslateResponse struct {
	TranslatedText string  `json:"translatedText"`
	Tokens         int64   `json:"tokens"`
	Cost           float64 `json:"cost"`
}

type llmTranslateResponse struct {
	TranslatedText string  `json:"translatedText"`
	Tokens         int64   `json:"tokens"`
	InputTokens    int64   `json:"inputTokens"`
	OutputTokens   int64   `json:"outputTokens"`
	Cost           float64 `json:"cost"`
}

// handleTranslateBasic serves the character-billed tier against the
// dedicated translation upstream.
func (s *Server) handleTranslateBasic(w http.ResponseWriter, r *http.Request) {
	client := s.authenticate(w, r)
	if client == nil {
		return
	}
	if !requireTranslationTier(w, client, store.TranslationBasic) {
		return
	}

	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.valid() {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	// Character count is known before the upstream call, so the quota
	// check covers the whole charge up front.
	charge := s.meter.PriceChars(req.Text)
	if !checkQuota(w, client, charge.Tokens) {
		return
	}

	translated, err := s.translator.Translate(r.Context(), req.Text, req.BaseLanguage, req.TargetLanguage)
	if err != nil {
		upstreamErrors.WithLabelValues("azure-translator").Inc()
		s.log.ErrorWithCode(client.ID.Hex(), requestID(r.Context()),
			"basic translation failed", http.StatusBadGateway, err, nil)
		writeError(w, http.StatusBadGateway, "Translation service failed")
		return
	}

	s.meter.Record(r.Context(), client.APIKey, charge, &store.UsageRecord{
		ClientID:        client.ID,
		ClientName:      client.Name,
		AIType:          store.TierTranslateAI,
		TranslationType: store.TranslationBasic,
		BaseLanguage:    req.BaseLanguage,
		TargetLanguage:  req.TargetLanguage,
	}, clientIP(r), true)
	observeBilling("translate_basic", charge.Tokens, charge.Cost)

	writeJSON(w, http.StatusOK, basicTranslateResponse{
		TranslatedText: translated,
		Tokens:         charge.Tokens,
		Cost:           charge.Cost,
	})
}

// handleTranslateAdvanced serves the mid LLM tier: fluent translation
// without the expert register instructions.
func (s *Server) handleTranslateAdvanced(w http.ResponseWriter, r *http.Request) {
	s.handleLLMTranslate(w, r, store.TranslationAdvanced)
}

// handleTranslateExpert serves the top LLM tier.
func (s *Server) handleTranslateExpert(w http.ResponseWriter, r *http.Request) {
	s.handleLLMTranslate(w, r, store.TranslationExpert)
}

const translateSystemInstruction = "You are a strict, accurate, and professional translation engine. Do not explain or reformat. Only return the translated content exactly."

func expertTranslatePrompt(text, from, to string) string {
	return fmt.Sprintf(`You are a highly experienced native-speaking professional translator.

Translate the following content from '%s' to '%s' with perfect fluency, clarity, and cultural appropriateness.

Instructions:
- Ensure the translation reads as if originally written by a native %s speaker.
- Improve fluency and word choice; avoid literal or awkward translations.
- Adapt idioms, expressions, and tone to match cultural norms.
- Use precise, expert-level vocabulary and grammar, suitable for UI labels, section titles, websites, and digital interfaces.
- If the content includes HTML, preserve the structure and all tags exactly as provided.
- Do not include explanations, markdown syntax, comments, or formatting hints.
- Return only the translated content, nothing else.

Content to translate:
%s`, from, to, to, text)
}

func advancedTranslatePrompt(text, from, to string) string {
	return fmt.Sprintf(`Translate the following content from '%s' to '%s' accurately and fluently.

Instructions:
- Preserve the meaning and tone of the original.
- If the content includes HTML, preserve the structure and all tags exactly as provided.
- Return only the translated content, nothing else.

Content to translate:
%s`, from, to, text)
}

func (s *Server) handleLLMTranslate(w http.ResponseWriter, r *http.Request, tier string) {
	client := s.authenticate(w, r)
	if client == nil {
		return
	}
	if !requireTranslationTier(w, client, tier) {
		return
	}
	if !checkQuota(w, client, 0) {
		return
	}

	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.valid() {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	var prompt string
	if tier == store.TranslationExpert {
		prompt = expertTranslatePrompt(req.Text, req.BaseLanguage, req.TargetLanguage)
	} else {
		prompt = advancedTranslatePrompt(req.Text, req.BaseLanguage, req.TargetLanguage)
	}

	translated, err := s.chat.Chat(r.Context(), llm.ChatRequest{
		System:      translateSystemInstruction,
		User:        prompt,
		Temperature: 0.2,
		TopP:        1,
	})
	if err != nil {
		upstreamErrors.WithLabelValues("azure-openai").Inc()
		s.log.ErrorWithCode(client.ID.Hex(), requestID(r.Context()),
			"llm translation failed", http.StatusBadGateway, err, map[string]interface{}{
				"tier": tier,
			})
		writeError(w, http.StatusBadGateway, "Translation service failed")
		return
	}

	// The whole instruction prompt is billed as input, matching how
	// the upstream charges for it.
	charge := s.meter.PriceLLM(prompt, translated)
	s.meter.Record(r.Context(), client.APIKey, charge, &store.UsageRecord{
		ClientID:        client.ID,
		ClientName:      client.Name,
		AIType:          store.TierTranslateAI,
		TranslationType: tier,
		BaseLanguage:    req.BaseLanguage,
		TargetLanguage:  req.TargetLanguage,
	}, clientIP(r), false)
	observeBilling("translate_"+tier, charge.Tokens, charge.Cost)

	writeJSON(w, http.StatusOK, llmTranslateResponse{
		TranslatedText: translated,
		Tokens:         charge.Tokens,
		InputTokens:    charge.InputTokens,
		OutputTokens:   charge.OutputTokens,
		Cost:           charge.Cost,
	})
}
