// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Lexigate

package postgres

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
			name: "explicit URI wins",
			desc: base.Descriptor{
				URI:  "postgres://u:p@db.example.com:5432/orders?sslmode=require",
				Host: "ignored",
			},
			want: "postgres://u:p@db.example.com:5432/orders?sslmode=require",
		},
		{
			name: "discrete fields with default port",
			desc: base.Descriptor{
				Host:     "db.example.com",
				User:     "reader",
				Password: "secret",
				Database: "orders",
			},
			want: "host=db.example.com port=5432 dbname=orders user=reader password=secret sslmode=disable",
		},
		{
			name: "custom port and TLS",
			desc: base.Descriptor{
				Host:     "db.example.com",
				Port:     6432,
				User:     "reader",
				Password: "secret",
				Database: "orders",
				TLS:      true,
			},
			want: "host=db.example.com port=6432 dbname=orders user=reader password=secret sslmode=require",
		},
		{
			name: "CA file forces full verification",
			desc: base.Descriptor{
				Host:     "db.example.com",
				Database: "orders",
				CAFile:   "/etc/certs/tenant-ca.pem",
			},
			want: "host=db.example.com port=5432 dbname=orders sslmode=verify-full sslrootcert=/etc/certs/tenant-ca.pem",
		},
		{
			name: "password with spaces gets quoted",
			desc: base.Descriptor{
				Host:     "db.example.com",
				Database: "orders",
				Password: "two words",
			},
			want: "host=db.example.com port=5432 dbname=orders password='two words' sslmode=disable",
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

func TestEscapeValue(t *testing.T) {
	assert.Equal(t, "plain", escapeValue("plain"))
	assert.Equal(t, `'has space'`, escapeValue("has space"))
	assert.Equal(t, `'it\'s'`, escapeValue("it's"))
}

func newMockConnector(t *testing.T) (*Connector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Connector{db: db, log: logger.New("connector.postgres")}, mock
}

func TestSampleFields(t *testing.T) {
	c, mock := newMockConnector(t)

	mock.ExpectQuery("SELECT column_name FROM information_schema.columns").
		WithArgs("customers").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).
			AddRow("id").
			AddRow("email").
			AddRow("created_at"))

	fields := c.SampleFields(context.Background(), "customers")
	assert.Equal(t, []string{"id", "email", "created_at"}, fields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleFieldsQueryFailure(t *testing.T) {
	c, mock := newMockConnector(t)

	mock.ExpectQuery("SELECT column_name FROM information_schema.columns").
		WithArgs("customers").
		WillReturnError(assert.AnError)

	assert.Nil(t, c.SampleFields(context.Background(), "customers"))
}

func TestExecuteSelect(t *testing.T) {
	c, mock := newMockConnector(t)

	mock.ExpectPrepare(`SELECT id, email FROM customers`).
		ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
			AddRow(int64(1), []byte("a@example.com")).
			AddRow(int64(2), []byte("b@example.com")))

	rows, err := c.Execute(context.Background(), "customers",
		base.SQLQuery("SELECT id, email FROM customers"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, "a@example.com", rows[0]["email"])
	assert.Equal(t, "b@example.com", rows[1]["email"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteRejectsNonSQLQuery(t *testing.T) {
	c, _ := newMockConnector(t)

	_, err := c.Execute(context.Background(), "customers",
		base.FindQuery{Limit: 10})
	require.Error(t, err)
	var cerr *base.ConnectorError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, base.DialectPostgreSQL, cerr.Dialect)
}

func TestExecutePrepareFailure(t *testing.T) {
	c, mock := newMockConnector(t)

	mock.ExpectPrepare(`SELECT \* FROM broken`).
		WillReturnError(assert.AnError)

	_, err := c.Execute(context.Background(), "broken",
		base.SQLQuery("SELECT * FROM broken"))
	assert.Error(t, err)
}
