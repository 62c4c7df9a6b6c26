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

package base

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Dialect identifies the target database technology a Search AI client
// is bound to. The values match the Client.idxdb enum in the system store.
type Dialect string

const (
	DialectMongoDB    Dialect = "MongoDB"
	DialectMySQL      Dialect = "MySQL"
	DialectMSSQL      Dialect = "MSSQL"
	DialectPostgreSQL Dialect = "PostgreSQL"
)

// Valid reports whether d is one of the four supported dialects.
func (d Dialect) Valid() bool {
	switch d {
	case DialectMongoDB, DialectMySQL, DialectMSSQL, DialectPostgreSQL:
		return true
	}
	return false
}

const (
	// DefaultMaxOpenConns caps each tenant-supplied pool. Descriptors are
	// caller-controlled, so pools must stay small.
	DefaultMaxOpenConns = 5
	// DefaultConnMaxIdleTime closes idle tenant connections quickly
	DefaultConnMaxIdleTime = 10 * time.Second
	// DefaultConnectTimeout bounds the initial dial/ping
	DefaultConnectTimeout = 10 * time.Second
	// DefaultFindLimit caps document-dialect result sets when the
	// synthesized query carries no explicit limit
	DefaultFindLimit = 100
)

// Descriptor is a caller-supplied connection target. It is ephemeral:
// never persisted to the Client or UsageRecord entities, only used to key
// the pool registry for the process lifetime.
type Descriptor struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`

	// URI, when set, takes precedence over the discrete fields
	// (MongoDB connection string, PostgreSQL connection string).
	URI string `json:"uri,omitempty"`

	// TLS enables server certificate verification against CAFile when set
	TLS    bool   `json:"tls,omitempty"`
	CAFile string `json:"ca_file,omitempty"`
}

// PortOrDefault returns the descriptor port, falling back to def.
func (d Descriptor) PortOrDefault(def int) int {
	if d.Port > 0 {
		return d.Port
	}
	return def
}

// Fingerprint derives a stable pool key from the dialect and descriptor.
// The key is hashed so credentials never appear in logs or metrics labels.
func (d Descriptor) Fingerprint(dialect Dialect) string {
	raw := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%t|%s",
		dialect, d.Host, d.Port, d.User, d.Password, d.Database, d.URI, d.TLS, d.CAFile)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:16])
}

// Query is the validated, dialect-typed query produced by the validator.
// Exactly one of the three concrete types flows to an Executor:
// FindQuery and PipelineQuery for the document dialect, SQLQuery for the
// relational dialects.
type Query interface {
	isQuery()
}

// FindQuery is a document-dialect filtered find with optional projection,
// sort, and limit. A nil Filter matches all documents. Sort is an ordered
// document: multi-key sorts keep the precedence the model emitted.
type FindQuery struct {
	Filter     map[string]interface{}
	Projection map[string]interface{}
	Sort       bson.D
	Limit      int64
}

func (FindQuery) isQuery() {}

// PipelineQuery is a document-dialect aggregation pipeline: an ordered
// sequence of stage documents. Stages are ordered all the way down so
// documents like a multi-key $sort body keep their key precedence.
type PipelineQuery struct {
	Stages []bson.D
}

func (PipelineQuery) isQuery() {}

// SQLQuery is a single validated SELECT statement for a relational dialect.
type SQLQuery string

func (SQLQuery) isQuery() {}

// Executor runs validated queries against one resolved target database.
// Implementations are safe for concurrent use; the underlying pool is
// owned by the registry and shared across requests with the same
// descriptor fingerprint.
type Executor interface {
	// Dialect identifies which query types this executor accepts.
	Dialect() Dialect

	// SampleFields returns the field names of the named table/collection
	// as a grounding hint for query synthesis. Best effort: any failure
	// yields an empty slice, never an error.
	SampleFields(ctx context.Context, table string) []string

	// Execute runs a validated query and returns the result rows.
	// Implementations must honor ctx cancellation and deadline.
	Execute(ctx context.Context, table string, q Query) ([]map[string]interface{}, error)

	// Close releases the underlying pool. Called on registry eviction.
	Close(ctx context.Context) error
}

// ConnectorError wraps dialect driver failures with enough context to
// map them to an API response without leaking connection details.
type ConnectorError struct {
	Dialect   Dialect
	Operation string
	Message   string
	Cause     error
}

func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return string(e.Dialect) + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return string(e.Dialect) + "." + e.Operation + ": " + e.Message
}

func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new ConnectorError
func NewConnectorError(dialect Dialect, operation, message string, cause error) *ConnectorError {
	return &ConnectorError{
		Dialect:   dialect,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}
