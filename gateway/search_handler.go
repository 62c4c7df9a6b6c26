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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"lexigate/connectors/base"
	"lexigate/nlq"
	"lexigate/store"
)

// searchConnection is the caller-supplied target database. Field names
// accept both the discrete form and the connection-string form; the
// connection string wins when both are present.
type searchConnection struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	User             string `json:"user"`
	Password         string `json:"password"`
	Database         string `json:"database"`
	ConnectionString string `json:"connectionString"`
	URI              string `json:"uri"`
	UseSSL           bool   `json:"useSsl"`
	CAPath           string `json:"caPath"`
	SSLCAPath        string `json:"sslCaPath"`
}

func (c searchConnection) descriptor() base.Descriptor {
	uri := c.ConnectionString
	if uri == "" {
		uri = c.URI
	}
	ca := c.CAPath
	if ca == "" {
		ca = c.SSLCAPath
	}
	return base.Descriptor{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Database: c.Database,
		URI:      uri,
		TLS:      c.UseSSL || ca != "",
		CAFile:   ca,
	}
}

func (c searchConnection) empty() bool {
	return c.Host == "" && c.ConnectionString == "" && c.URI == ""
}

type searchRequest struct {
	Prompt     string           `json:"prompt"`
	Connection searchConnection `json:"connection"`
	Table      string           `json:"table"`
}

type searchResponse struct {
	Query        string                   `json:"query"`
	Result       []map[string]interface{} `json:"result"`
	Tokens       int64                    `json:"tokens"`
	InputTokens  int64                    `json:"inputTokens"`
	OutputTokens int64                    `json:"outputTokens"`
	Cost         float64                  `json:"cost"`
}

// searchHandler builds the Search AI endpoint for one dialect:
// synthesize a query from the prompt, validate it, run it against the
// caller's database under the execution deadline, and meter the call.
func (s *Server) searchHandler(dialect base.Dialect) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := s.authenticate(w, r)
		if client == nil {
			return
		}
		if !requireTier(w, client, store.TierSearchAI) {
			return
		}
		if !requireDialect(w, client, dialect) {
			return
		}
		if !checkQuota(w, client, 0) {
			return
		}

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
			req.Prompt == "" || req.Table == "" || req.Connection.empty() {
			writeError(w, http.StatusBadRequest, "Missing required parameters")
			return
		}

		reqID := requestID(r.Context())
		desc := req.Connection.descriptor()

		exec, err := s.registry.Resolve(r.Context(), dialect, desc)
		if err != nil {
			s.log.ErrorWithCode(client.ID.Hex(), reqID, "target database unreachable",
				http.StatusInternalServerError, err, map[string]interface{}{
					"dialect": string(dialect),
				})
			writeError(w, http.StatusInternalServerError, "Database connection failed")
			return
		}

		sampleFields := exec.SampleFields(r.Context(), req.Table)

		raw, err := s.synth.Generate(r.Context(), dialect, req.Table, req.Prompt, sampleFields)
		if err != nil {
			upstreamErrors.WithLabelValues("azure-openai").Inc()
			s.log.ErrorWithCode(client.ID.Hex(), reqID, "query generation failed",
				http.StatusBadGateway, err, map[string]interface{}{
					"dialect": string(dialect),
					"table":   req.Table,
				})
			writeError(w, http.StatusBadGateway, "Query generation failed")
			return
		}

		cleaned := nlq.CleanFences(raw)

		var query base.Query
		if dialect == base.DialectMongoDB {
			query, err = nlq.ParseDocumentQuery(cleaned, nlq.WantsLimitedFields(req.Prompt))
		} else {
			query, err = nlq.ParseSQLQuery(cleaned)
		}
		if err != nil {
			var verr *nlq.ValidationError
			if errors.As(err, &verr) {
				writeErrorRaw(w, http.StatusBadRequest, verr.Message, verr.Raw)
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		execCtx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
		defer cancel()

		result, err := exec.Execute(execCtx, req.Table, query)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				queryTimeouts.WithLabelValues(string(dialect)).Inc()
				writeError(w, http.StatusInternalServerError,
					fmt.Sprintf("Query timeout after %ds", int(s.cfg.QueryTimeout.Seconds())))
				return
			}
			// A failed pool should not be handed to the next request.
			s.registry.Evict(r.Context(), dialect, desc)
			s.log.ErrorWithCode(client.ID.Hex(), reqID, "query execution failed",
				http.StatusInternalServerError, err, map[string]interface{}{
					"dialect": string(dialect),
					"table":   req.Table,
				})
			writeError(w, http.StatusInternalServerError, "Query execution failed")
			return
		}
		if result == nil {
			result = []map[string]interface{}{}
		}

		charge := s.meter.PriceLLM(req.Prompt, cleaned)
		s.meter.Record(r.Context(), client.APIKey, charge, &store.UsageRecord{
			ClientID:       client.ID,
			ClientName:     client.Name,
			AIType:         store.TierSearchAI,
			Dialect:        string(dialect),
			Prompt:         req.Prompt,
			GeneratedQuery: cleaned,
			Table:          req.Table,
		}, clientIP(r), false)
		observeBilling("search", charge.Tokens, charge.Cost)

		writeJSON(w, http.StatusOK, searchResponse{
			Query:        cleaned,
			Result:       result,
			Tokens:       charge.Tokens,
			InputTokens:  charge.InputTokens,
			OutputTokens: charge.OutputTokens,
			Cost:         charge.Cost,
		})
	}
}
