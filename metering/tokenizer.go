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

package metering

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// ReferenceModel fixes the tokenizer all capabilities bill against,
// independent of which deployment served the request.
const ReferenceModel = "gpt-4o"

// TokenCounter counts billable tokens in a text.
type TokenCounter interface {
	Count(text string) int64
}

// TiktokenCounter counts with the reference model's BPE encoding.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the reference encoding.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	encoding, err := tiktoken.EncodingForModel(ReferenceModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer encoding: %w", err)
	}
	return &TiktokenCounter{encoding: encoding}, nil
}

// Count returns the token count of text under the reference encoding.
func (c *TiktokenCounter) Count(text string) int64 {
	return int64(len(c.encoding.Encode(text, nil, nil)))
}

// CharCounter bills raw character length, used by the basic
// translation tier.
type CharCounter struct{}

// Count returns the rune count of text.
func (CharCounter) Count(text string) int64 {
	return int64(utf8.RuneCountInString(text))
}
