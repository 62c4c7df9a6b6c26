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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexigate_requests_total",
		Help: "API requests by route and status code.",
	}, []string{"route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lexigate_request_duration_seconds",
		Help:    "End-to-end request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	tokensBilled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexigate_tokens_billed_total",
		Help: "Billable token units by capability.",
	}, []string{"capability"})

	costBilled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexigate_cost_billed_total",
		Help: "Billable cost in dollars by capability.",
	}, []string{"capability"})

	upstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexigate_upstream_errors_total",
		Help: "Upstream provider failures by upstream name.",
	}, []string{"upstream"})

	queryTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexigate_query_timeouts_total",
		Help: "Tenant database queries that hit the execution deadline.",
	}, []string{"dialect"})
)

// observeBilling feeds the billing counters after a metered call.
func observeBilling(capability string, tokens int64, cost float64) {
	tokensBilled.WithLabelValues(capability).Add(float64(tokens))
	costBilled.WithLabelValues(capability).Add(cost)
}
