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

// Package nlq turns natural language prompts into dialect-typed
// database queries: prompt construction, model invocation, and strict
// validation of what comes back.
package nlq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lexigate/connectors/base"
)

// ErrEmptyGeneration reports that the model returned no usable text.
var ErrEmptyGeneration = errors.New("model did not return a query")

// CompletionProvider produces a chat completion for a system/user
// message pair. The gateway's Azure OpenAI client implements it; tests
// substitute fakes.
type CompletionProvider interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Synthesizer generates raw query text for a dialect and table.
type Synthesizer struct {
	provider CompletionProvider
}

// NewSynthesizer wraps a completion provider.
func NewSynthesizer(provider CompletionProvider) *Synthesizer {
	return &Synthesizer{provider: provider}
}

// Generate asks the model for a query over the given table. The
// returned string is raw model output: callers validate it with
// ParseDocumentQuery or ParseSQLQuery before execution.
func (s *Synthesizer) Generate(ctx context.Context, dialect base.Dialect, table, prompt string, sampleFields []string) (string, error) {
	system := SystemPrompt(dialect, table, sampleFields)

	raw, err := s.provider.Complete(ctx, system, prompt)
	if err != nil {
		return "", fmt.Errorf("query generation failed: %w", err)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyGeneration
	}
	return raw, nil
}
