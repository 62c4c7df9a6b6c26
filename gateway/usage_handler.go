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
	"time"

	"lexigate/store"
)

// handleUsageReport serves the usage dashboard: ledger records plus
// summary, per-day, per-client, and per-capability aggregations.
// Query parameters: clientId, period (7days|30days|90days|year),
// startDate, endDate (both 2006-01-02; the pair overrides period).
func (s *Server) handleUsageReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := store.ReportOptions{
		ClientID: q.Get("clientId"),
		Period:   q.Get("period"),
	}

	if raw := q.Get("startDate"); raw != "" {
		start, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid startDate")
			return
		}
		opts.Start = start
	}
	if raw := q.Get("endDate"); raw != "" {
		end, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid endDate")
			return
		}
		opts.End = end
	}

	report, err := s.reports.Report(r.Context(), opts)
	if errors.Is(err, store.ErrInvalidID) {
		writeError(w, http.StatusBadRequest, "Invalid client ID")
		return
	}
	if err != nil {
		s.log.ErrorWithCode("", requestID(r.Context()), "usage report failed",
			http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, "Error generating usage report")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
