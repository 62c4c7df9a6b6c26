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

package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"lexigate/connectors/base"
	"lexigate/shared/logger"
)

// Connector executes SQL-dialect queries against a tenant-supplied
// SQL Server database. One Connector owns one small connection pool.
type Connector struct {
	db  *sql.DB
	log *logger.Logger
}

// New opens a pooled connection to the SQL Server database described by
// desc and verifies it with a ping.
func New(ctx context.Context, desc base.Descriptor) (*Connector, error) {
	dsn, err := buildDSN(desc)
	if err != nil {
		return nil, base.NewConnectorError(base.DialectMSSQL, "Connect", "failed to build DSN", err)
	}

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, base.NewConnectorError(base.DialectMSSQL, "Connect", "failed to open connection", err)
	}

	db.SetMaxOpenConns(base.DefaultMaxOpenConns)
	db.SetMaxIdleConns(base.DefaultMaxOpenConns)
	db.SetConnMaxIdleTime(base.DefaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, base.DefaultConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, base.NewConnectorError(base.DialectMSSQL, "Connect", "failed to ping database", err)
	}

	return &Connector{db: db, log: logger.New("connector.sqlserver")}, nil
}

// buildDSN constructs the go-mssqldb URL-form connection string. An
// explicit URI takes precedence over the discrete fields.
func buildDSN(desc base.Descriptor) (string, error) {
	if desc.URI != "" {
		return desc.URI, nil
	}

	if desc.Host == "" || desc.Database == "" {
		return "", fmt.Errorf("host and database are required")
	}

	query := url.Values{}
	query.Set("database", desc.Database)
	switch {
	case desc.CAFile != "":
		query.Set("encrypt", "true")
		query.Set("certificate", desc.CAFile)
	case desc.TLS:
		query.Set("encrypt", "true")
	default:
		query.Set("encrypt", "disable")
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		Host:     fmt.Sprintf("%s:%d", desc.Host, desc.PortOrDefault(1433)),
		RawQuery: query.Encode(),
	}
	if desc.User != "" {
		u.User = url.UserPassword(desc.User, desc.Password)
	}
	return u.String(), nil
}

// Dialect identifies the connector's query dialect
func (c *Connector) Dialect() base.Dialect {
	return base.DialectMSSQL
}

// SampleFields reads the table's column names from the information
// schema. Best effort: failures yield an empty slice.
func (c *Connector) SampleFields(ctx context.Context, table string) []string {
	rows, err := c.db.QueryContext(ctx,
		`SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = @p1 ORDER BY ORDINAL_POSITION`,
		table)
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
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil
		}
		fields = append(fields, name)
	}
	if rows.Err() != nil {
		return nil
	}
	return fields
}

// Execute runs a validated SELECT as a prepared statement and scans the
// result set into field-name keyed maps.
func (c *Connector) Execute(ctx context.Context, _ string, q base.Query) ([]map[string]interface{}, error) {
	stmt, ok := q.(base.SQLQuery)
	if !ok {
		return nil, base.NewConnectorError(base.DialectMSSQL, "Execute",
			fmt.Sprintf("unsupported query type %T", q), nil)
	}

	prepared, err := c.db.PrepareContext(ctx, string(stmt))
	if err != nil {
		return nil, base.NewConnectorError(base.DialectMSSQL, "Execute", "failed to prepare statement", err)
	}
	defer func() { _ = prepared.Close() }()

	rows, err := prepared.QueryContext(ctx)
	if err != nil {
		return nil, base.NewConnectorError(base.DialectMSSQL, "Execute", "query execution failed", err)
	}
	defer func() { _ = rows.Close() }()

	results, err := scanRows(rows)
	if err != nil {
		return nil, base.NewConnectorError(base.DialectMSSQL, "Execute", "failed to scan rows", err)
	}
	return results, nil
}

// Close releases the connection pool
func (c *Connector) Close(context.Context) error {
	return c.db.Close()
}

func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
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
			if raw, ok := values[i].([]byte); ok {
				row[col] = string(raw)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}

	return results, rows.Err()
}
