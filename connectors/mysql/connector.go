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

package mysql

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"os"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"

	"lexigate/connectors/base"
	"lexigate/shared/logger"
)

// Connector executes SQL-dialect queries against a tenant-supplied MySQL
// database. One Connector owns one small connection pool.
type Connector struct {
	db  *sql.DB
	log *logger.Logger
}

// New opens a pooled connection to the MySQL database described by desc
// and verifies it with a ping.
func New(ctx context.Context, desc base.Descriptor) (*Connector, error) {
	dsn, err := buildDSN(desc)
	if err != nil {
		return nil, base.NewConnectorError(base.DialectMySQL, "Connect", "failed to build DSN", err)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, base.NewConnectorError(base.DialectMySQL, "Connect", "failed to open connection", err)
	}

	db.SetMaxOpenConns(base.DefaultMaxOpenConns)
	db.SetMaxIdleConns(base.DefaultMaxOpenConns)
	db.SetConnMaxIdleTime(base.DefaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, base.DefaultConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, base.NewConnectorError(base.DialectMySQL, "Connect", "failed to ping database", err)
	}

	return &Connector{db: db, log: logger.New("connector.mysql")}, nil
}

// tlsConfigName is the registered name for descriptor-supplied CA material
const tlsConfigName = "lexigate-tenant-ca"

// buildDSN constructs the MySQL Data Source Name from the descriptor
func buildDSN(desc base.Descriptor) (string, error) {
	if desc.Host == "" || desc.Database == "" {
		return "", fmt.Errorf("host and database are required")
	}

	cfg := mysqldriver.NewConfig()
	cfg.User = desc.User
	cfg.Passwd = desc.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", desc.Host, desc.PortOrDefault(3306))
	cfg.DBName = desc.Database
	cfg.ParseTime = true
	cfg.Timeout = base.DefaultConnectTimeout
	// Generated queries run server-side prepared; multi-statements stay off.
	cfg.MultiStatements = false
	cfg.InterpolateParams = false

	if desc.CAFile != "" {
		pem, err := os.ReadFile(desc.CAFile)
		if err != nil {
			return "", fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return "", fmt.Errorf("no certificates found in %s", desc.CAFile)
		}
		if err := mysqldriver.RegisterTLSConfig(tlsConfigName, &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		}); err != nil {
			// RegisterTLSConfig only errors on reserved names
			return "", err
		}
		cfg.TLSConfig = tlsConfigName
	} else if desc.TLS {
		cfg.TLSConfig = "true"
	}

	return cfg.FormatDSN(), nil
}

// Dialect identifies the connector's query dialect
func (c *Connector) Dialect() base.Dialect {
	return base.DialectMySQL
}

// SampleFields reads the table's column names via DESCRIBE. Best effort:
// an unknown table or connection failure yields an empty slice.
func (c *Connector) SampleFields(ctx context.Context, table string) []string {
	rows, err := c.db.QueryContext(ctx, "DESCRIBE "+quoteIdentifier(table))
	if err != nil {
		c.log.Warn("", "", "field sampling failed", map[string]interface{}{
			"table": table,
			"error": err.Error(),
		})
		return nil
	}
	defer func() { _ = rows.Close() }()

	var fields []string
	for rows.Next() {
		var field, colType string
		var null, key, extra sql.NullString
		var def sql.NullString
		if err := rows.Scan(&field, &colType, &null, &key, &def, &extra); err != nil {
			return nil
		}
		fields = append(fields, field)
	}
	if rows.Err() != nil {
		return nil
	}
	return fields
}

// quoteIdentifier backtick-quotes a MySQL identifier
func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Execute runs a validated SELECT as a prepared statement and scans the
// result set into field-name keyed maps.
func (c *Connector) Execute(ctx context.Context, _ string, q base.Query) ([]map[string]interface{}, error) {
	stmt, ok := q.(base.SQLQuery)
	if !ok {
		return nil, base.NewConnectorError(base.DialectMySQL, "Execute",
			fmt.Sprintf("unsupported query type %T", q), nil)
	}

	prepared, err := c.db.PrepareContext(ctx, string(stmt))
	if err != nil {
		return nil, base.NewConnectorError(base.DialectMySQL, "Execute", "failed to prepare statement", err)
	}
	defer func() { _ = prepared.Close() }()

	rows, err := prepared.QueryContext(ctx)
	if err != nil {
		return nil, base.NewConnectorError(base.DialectMySQL, "Execute", "query execution failed", err)
	}
	defer func() { _ = rows.Close() }()

	results, err := scanRows(rows)
	if err != nil {
		return nil, base.NewConnectorError(base.DialectMySQL, "Execute", "failed to scan rows", err)
	}
	return results, nil
}

// Close releases the connection pool
func (c *Connector) Close(context.Context) error {
	return c.db.Close()
}

// scanRows decodes a result set into field-name keyed maps
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i], columnTypes[i])
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// convertValue maps driver values to JSON-friendly Go types. The MySQL
// driver returns []byte for text and decimal columns.
func convertValue(val interface{}, colType *sql.ColumnType) interface{} {
	raw, ok := val.([]byte)
	if !ok {
		return val
	}

	typeName := strings.ToUpper(colType.DatabaseTypeName())
	switch {
	case strings.Contains(typeName, "CHAR"),
		strings.Contains(typeName, "TEXT"),
		strings.Contains(typeName, "ENUM"),
		strings.Contains(typeName, "SET"),
		typeName == "JSON":
		return string(raw)
	case strings.Contains(typeName, "DECIMAL"),
		strings.Contains(typeName, "NUMERIC"):
		// Keep decimals as strings to preserve precision
		return string(raw)
	default:
		return raw
	}
}
