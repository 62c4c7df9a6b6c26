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
	"context"

	"lexigate/shared/logger"
	"lexigate/store"
)

// Recorder persists the two metering side effects. *store.Store
// implements it; tests use fakes.
type Recorder interface {
	IncrementUsage(ctx context.Context, apiKey string, tokens int64, cost float64, countRequest bool) error
	InsertUsageRecord(ctx context.Context, record *store.UsageRecord) error
}

// Charge is the billable outcome of one metered call.
type Charge struct {
	InputTokens  int64
	OutputTokens int64
	Tokens       int64
	Cost         float64
}

// Engine prices calls and writes them to the usage aggregate and the
// ledger.
type Engine struct {
	recorder Recorder
	counter  TokenCounter
	geo      *GeoResolver
	log      *logger.Logger
}

// NewEngine wires pricing, token counting, persistence, and
// geolocation together.
func NewEngine(recorder Recorder, counter TokenCounter, geo *GeoResolver) *Engine {
	return &Engine{
		recorder: recorder,
		counter:  counter,
		geo:      geo,
		log:      logger.New("metering"),
	}
}

// PriceLLM prices one model exchange under the reference tokenizer.
func (e *Engine) PriceLLM(input, output string) Charge {
	in := e.counter.Count(input)
	out := e.counter.Count(output)
	return Charge{
		InputTokens:  in,
		OutputTokens: out,
		Tokens:       in + out,
		Cost:         Cost(in, out),
	}
}

// PriceChars prices a character-billed call. The character count
// stands in for tokens in the aggregate and the ledger.
func (e *Engine) PriceChars(text string) Charge {
	chars := CharCounter{}.Count(text)
	return Charge{
		Tokens: chars,
		Cost:   CharCost(chars),
	}
}

// Record applies both metering side effects for a call that already
// succeeded: the atomic usage increment and the ledger append, with
// best-effort geolocation from the caller's IP hint. Failures here must
// not fail the client's response, so they are logged and swallowed.
func (e *Engine) Record(ctx context.Context, apiKey string, charge Charge, record *store.UsageRecord, ipHint string, countRequest bool) {
	record.Tokens = charge.Tokens
	record.Cost = charge.Cost

	if e.geo != nil {
		ip, location := e.geo.Resolve(ctx, ipHint)
		record.IP = ip
		record.Location = location
	}

	clientID := record.ClientID.Hex()

	if err := e.recorder.IncrementUsage(ctx, apiKey, charge.Tokens, charge.Cost, countRequest); err != nil {
		e.log.Warn(clientID, "", "failed to update usage aggregate", map[string]interface{}{
			"tokens": charge.Tokens,
			"cost":   charge.Cost,
			"error":  err.Error(),
		})
	}

	if err := e.recorder.InsertUsageRecord(ctx, record); err != nil {
		e.log.Warn(clientID, "", "failed to append usage record", map[string]interface{}{
			"tokens": charge.Tokens,
			"cost":   charge.Cost,
			"error":  err.Error(),
		})
	}
}
