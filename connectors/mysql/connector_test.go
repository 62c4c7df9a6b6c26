// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Lexigate

package mysql

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexigate/connectors/base"
	"lexigate/shared/logger"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name    string
		desc    base.Descriptor
		want    string
		wantErr bool
	}{
		{
			name: "discrete fields with default port",
			desc: base.Descriptor{
				Host:     "db.example.com",
				User:     "reader",
				Password: "secret",
				Database: "orders",
			},
			want: "reader:secret@tcp(db.example.com:3306)/orders?parseTime=true&timeout=10s",
		},
		{
			name: "custom port",
			desc: base.Descriptor{
				Host:     "db.example.com",
				Port:     3307,
				User:     "reader",
				Database: "orders",
			},
			want: "reader@tcp(db.example.com:3307)/orders?parseTime=true&timeout=10s",
		},
		{
			name: "TLS without CA uses system roots",
			desc: base.Descriptor{
				Host:     "db.example.com",
				User:     "reader",
				Database: "orders",
				TLS:      true,
			},
			want: "reader@tcp(db.example.com:3306)/orders?parseTime=true&timeout=10s&tls=true",
		},
		{
			name:    "missing host",
			desc:    base.Descriptor{Database: "orders"},
			wantErr: true,
		},
		{
			name:    "missing database",
			desc:    base.Descriptor{Host: "db.example.com"},
			wantErr: true,
		},
		{
			name: "unreadable CA file",
			desc: base.Descriptor{
				Host:     "db.example.com",
				Database: "orders",
				CAFile:   "/nonexistent/ca.pem",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.desc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`orders`", quoteIdentifier("orders"))
	assert.Equal(t, "`odd``name`", quoteIdentifier("odd`name"))
}

func newMockConnector(t *testing.T) (*Connector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Connector{db: db, log: logger.New("connector.mysql")}, mock
}

func TestSampleFields(t *testing.T) {
	c, mock := newMockConnector(t)

	mock.ExpectQuery("DESCRIBE `customers`").
		WillReturnRows(sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"}).
			AddRow("id", "int", "NO", "PRI", nil, "auto_increment").
			AddRow("email", "varchar(255)", "YES", "", nil, "").
			AddRow("created_at", "datetime", "YES", "", nil, ""))

	fields := c.SampleFields(context.Background(), "customers")
	assert.Equal(t, []string{"id", "email", "created_at"}, fields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleFieldsUnknownTable(t *testing.T) {
	c, mock := newMockConnector(t)

	mock.ExpectQuery("DESCRIBE `missing`").WillReturnError(assert.AnError)

	assert.Nil(t, c.SampleFields(context.Background(), "missing"))
}

func TestExecuteSelect(t *testing.T) {
	c, mock := newMockConnector(t)

	mock.ExpectPrepare(`SELECT id, email FROM customers LIMIT 2`).
		ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
			AddRow(int64(1), []byte("a@example.com")).
			AddRow(int64(2), []byte("b@example.com")))

	rows, err := c.Execute(context.Background(), "customers",
		base.SQLQuery("SELECT id, email FROM customers LIMIT 2"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteRejectsNonSQLQuery(t *testing.T) {
	c, _ := newMockConnector(t)

	_, err := c.Execute(context.Background(), "customers", base.FindQuery{})
	require.Error(t, err)
	var cerr *base.ConnectorError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, base.DialectMySQL, cerr.Dialect)
}

func TestConvertValue(t *testing.T) {
	// sqlmock does not carry MySQL type names through ColumnTypes, so
	// convertValue is exercised directly against the fallthrough paths.
	assert.Equal(t, int64(7), convertValue(int64(7), nil))
	assert.Nil(t, convertValue(nil, nil))
}
