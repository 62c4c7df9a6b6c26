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

// Package metering turns model usage into billable numbers and records
// them: token counting, fixed-rate pricing, the atomic usage writeback,
// and best-effort request geolocation for the ledger.
package metering

import "math"

// Per-million-token rates for language-model-backed capabilities.
const (
	InputRatePerMillion  = 1.10
	OutputRatePerMillion = 4.40
)

// CharRatePerMillion prices the basic translation tier, which bills
// raw character length instead of tokenizer counts.
const CharRatePerMillion = 10.00

// round6 rounds to 6 decimal places, the ledger's cost precision.
func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Cost prices one LLM exchange.
func Cost(inputTokens, outputTokens int64) float64 {
	in := float64(inputTokens) / 1_000_000 * InputRatePerMillion
	out := float64(outputTokens) / 1_000_000 * OutputRatePerMillion
	return round6(in + out)
}

// CharCost prices a character-billed call.
func CharCost(chars int64) float64 {
	return round6(float64(chars) / 1_000_000 * CharRatePerMillion)
}
