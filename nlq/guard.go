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

import "regexp"

// guardPattern is one screening rule applied to generated SQL before
// it may run against a tenant database.
type guardPattern struct {
	name  string
	regex *regexp.Regexp
}

// sqlGuardPatterns screens for constructs that survive the SELECT
// prefix check but still mutate data or escape the query. The model is
// instructed to emit plain SELECTs, so any hit here is rejected.
var sqlGuardPatterns = []guardPattern{
	{
		name:  "stacked_statement",
		regex: regexp.MustCompile(`;\s*\S`),
	},
	{
		name:  "data_modification",
		regex: regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|TRUNCATE|ALTER|CREATE|GRANT|REVOKE|EXEC|EXECUTE)\b`),
	},
	{
		name:  "comment_evasion",
		regex: regexp.MustCompile(`--|/\*|#`),
	},
	{
		name:  "file_access",
		regex: regexp.MustCompile(`(?i)\b(INTO\s+(OUT|DUMP)FILE|LOAD_FILE)\b`),
	},
	{
		name:  "time_probe",
		regex: regexp.MustCompile(`(?i)\b(SLEEP|BENCHMARK|WAITFOR\s+DELAY|PG_SLEEP)\b`),
	},
}

// quotedLiteral matches string literals, covering backslash escapes and
// doubled-quote escapes. Literal bodies are caller data, not SQL, so the
// guard patterns must not see them.
var quotedLiteral = regexp.MustCompile(`'(?:[^'\\]|\\.|'')*'|"(?:[^"\\]|\\.|"")*"`)

// stripLiterals blanks out quoted literal bodies. The quote marks stay
// so the surrounding tokens remain separated.
func stripLiterals(query string) string {
	return quotedLiteral.ReplaceAllString(query, "''")
}

// ScreenSQL rejects generated SQL containing constructs outside a plain
// read query. It runs in addition to the SELECT prefix check because a
// statement that starts with SELECT can still stack a second statement,
// hide one behind a comment, or call a side-effecting function. Quoted
// literals are stripped first: a WHERE clause comparing against the
// string 'delete' is a read, not a mutation. Returns nil when the
// statement is clean.
func ScreenSQL(query string) error {
	screened := stripLiterals(query)
	for _, p := range sqlGuardPatterns {
		if p.regex.MatchString(screened) {
			return &ValidationError{
				Message: "generated query contains disallowed SQL (" + p.name + ")",
				Raw:     query,
			}
		}
	}
	return nil
}
