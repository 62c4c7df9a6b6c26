// Copyright 2025 Lexigate
// SPDX-License-Identifier: Apache-2.0

package mongodb

import (
	"reflect"
	"sort"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"lexigate/connectors/base"
)

func TestBuildURI(t *testing.T) {
	tests := []struct {
		name     string
		desc     base.Descriptor
		wantURI  string
		wantDB   string
		wantErr  bool
	}{
		{
			name:    "explicit URI with database",
			desc:    base.Descriptor{URI: "mongodb://u:p@db.example.com:27017/sales", Database: "sales"},
			wantURI: "mongodb://u:p@db.example.com:27017/sales",
			wantDB:  "sales",
		},
		{
			name:    "URI with database from path",
			desc:    base.Descriptor{URI: "mongodb://db.example.com:27017/analytics"},
			wantURI: "mongodb://db.example.com:27017/analytics",
			wantDB:  "analytics",
		},
		{
			name:    "discrete fields with credentials",
			desc:    base.Descriptor{Host: "db.example.com", User: "reader", Password: "pw", Database: "sales"},
			wantURI: "mongodb://reader:pw@db.example.com:27017/sales?authSource=admin",
			wantDB:  "sales",
		},
		{
			name:    "discrete fields without credentials",
			desc:    base.Descriptor{Host: "localhost", Port: 27018, Database: "t"},
			wantURI: "mongodb://localhost:27018/t",
			wantDB:  "t",
		},
		{
			name:    "missing database",
			desc:    base.Descriptor{Host: "db.example.com"},
			wantErr: true,
		},
		{
			name:    "URI without database anywhere",
			desc:    base.Descriptor{URI: "mongodb://db.example.com:27017/"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri, db, err := buildURI(tt.desc)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if uri != tt.wantURI {
				t.Errorf("uri = %s, want %s", uri, tt.wantURI)
			}
			if db != tt.wantDB {
				t.Errorf("db = %s, want %s", db, tt.wantDB)
			}
		})
	}
}

func TestFlattenFields(t *testing.T) {
	doc := bson.M{
		"name": "acme",
		"usage": bson.M{
			"tokens": int64(120),
			"window": bson.M{"start": 1, "end": 2},
		},
		"tags": bson.A{"a", "b"}, // arrays are leaves
	}

	got := flattenFields(doc, "")
	sort.Strings(got)

	want := []string{"name", "tags", "usage.tokens", "usage.window.end", "usage.window.start"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("flattenFields = %v, want %v", got, want)
	}
}

func TestConvertFromBSON(t *testing.T) {
	oid := primitive.NewObjectID()
	doc := bson.M{
		"_id":    oid,
		"nested": bson.M{"n": int32(1)},
		"list":   bson.A{bson.M{"x": int64(2)}},
	}

	got := bsonToMap(doc)

	if got["_id"] != oid.Hex() {
		t.Errorf("_id = %v, want hex string %s", got["_id"], oid.Hex())
	}
	nested, ok := got["nested"].(map[string]interface{})
	if !ok || nested["n"] != int32(1) {
		t.Errorf("nested = %#v", got["nested"])
	}
	list, ok := got["list"].([]interface{})
	if !ok || len(list) != 1 {
		t.Fatalf("list = %#v", got["list"])
	}
}
