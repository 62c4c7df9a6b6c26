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

package nlq

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"lexigate/connectors/base"
)

// ValidationError rejects model output before it reaches a database.
// Raw carries the cleaned model text for the error response.
type ValidationError struct {
	Message string
	Raw     string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// fenceRegexp strips markdown code fences the model sometimes wraps
// around its output despite instructions.
var fenceRegexp = regexp.MustCompile("```(json|sql)?")

// CleanFences removes markdown fences and surrounding whitespace.
func CleanFences(raw string) string {
	return strings.TrimSpace(fenceRegexp.ReplaceAllString(raw, ""))
}

// documentQuery is the JSON shape the model is instructed to emit for
// the document dialect.
type documentQuery struct {
	Aggregate  []map[string]interface{} `json:"aggregate"`
	Filter     map[string]interface{}   `json:"filter"`
	Projection map[string]interface{}   `json:"projection"`
	Limit      int64                    `json:"limit"`
}

// orderedDocumentQuery re-reads the order-sensitive parts of the model
// output. Go maps drop key order, so the aggregate stages and the sort
// document are decoded into bson.D to keep the precedence the model emitted.
type orderedDocumentQuery struct {
	Aggregate []bson.D `bson:"aggregate"`
	Sort      bson.D   `bson:"sort"`
}

// ParseDocumentQuery validates model output for the document dialect.
// An object with an "aggregate" array becomes a PipelineQuery; anything
// else becomes a FindQuery with the filter, sort, projection, and limit
// the model supplied. keepProjection gates the projection: it is applied
// only when the caller's prompt asked for specific fields.
func ParseDocumentQuery(raw string, keepProjection bool) (base.Query, error) {
	clean := CleanFences(raw)

	var parsed documentQuery
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, &ValidationError{Message: "failed to parse generated query", Raw: clean}
	}

	var ordered orderedDocumentQuery
	if err := bson.UnmarshalExtJSON([]byte(clean), false, &ordered); err != nil {
		return nil, &ValidationError{Message: "failed to parse generated query", Raw: clean}
	}

	if len(parsed.Aggregate) > 0 {
		return base.PipelineQuery{Stages: ordered.Aggregate}, nil
	}

	q := base.FindQuery{
		Filter: parsed.Filter,
		Sort:   normalizeSort(ordered.Sort),
		Limit:  parsed.Limit,
	}
	if keepProjection {
		q.Projection = parsed.Projection
	}
	return q, nil
}

// normalizeSort coerces fractional sort directions to int so the driver
// sees plain 1/-1 values regardless of how the model wrote them.
func normalizeSort(sort bson.D) bson.D {
	for i, e := range sort {
		if f, ok := e.Value.(float64); ok {
			sort[i].Value = int(f)
		}
	}
	return sort
}

// projectionIntent matches prompts that ask for specific fields rather
// than whole documents.
var projectionIntent = regexp.MustCompile(`(?i)only|just|specific fields|select`)

// WantsLimitedFields reports whether the prompt asked for a subset of
// fields, which permits the model's projection to apply.
func WantsLimitedFields(prompt string) bool {
	return projectionIntent.MatchString(prompt)
}

// placeholderTable is what the model emits when it could not bind the
// real table name. Executing it would always fail, so reject early.
const placeholderTable = "your_table_name"

// ParseSQLQuery validates model output for the relational dialects:
// only a single SELECT statement with the real table name passes.
func ParseSQLQuery(raw string) (base.SQLQuery, error) {
	clean := CleanFences(raw)

	if strings.Contains(clean, placeholderTable) {
		return "", &ValidationError{
			Message: "model returned placeholder table name, try a clearer prompt",
			Raw:     clean,
		}
	}

	if !strings.HasPrefix(strings.ToLower(clean), "select") {
		return "", &ValidationError{Message: "only SELECT queries allowed", Raw: clean}
	}

	if err := ScreenSQL(clean); err != nil {
		return "", err
	}

	return base.SQLQuery(clean), nil
}
