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

// Package store is the system-of-record layer: tenant clients, admin
// users, and the append-only usage ledger, all in the gateway's own
// MongoDB database. Tenant databases never live here; those are dialed
// per request through the connector registry.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lexigate/shared/logger"
)

const (
	clientsCollection      = "clients"
	usersCollection        = "users"
	usageRecordsCollection = "usageRecords"

	connectTimeout = 10 * time.Second
)

// Sentinel errors surfaced to handlers for status mapping.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate record")
	ErrInvalidID = errors.New("invalid id")
)

// Store wraps the system MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *logger.Logger
}

// Connect dials the system database and verifies it with a ping.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongodb uri is required")
	}
	if dbName == "" {
		return nil, fmt.Errorf("mongodb database name is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system database: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping system database: %w", err)
	}

	return &Store{
		client: client,
		db:     client.Database(dbName),
		log:    logger.New("store"),
	}, nil
}

// EnsureIndexes creates the indexes the gateway depends on: unique API
// keys and tenant identity fields, and ledger indexes for reporting.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	_, err := s.db.Collection(clientsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "apiKey", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "domain", Value: 1}}, Options: unique},
	})
	if err != nil {
		return fmt.Errorf("failed to create client indexes: %w", err)
	}

	_, err = s.db.Collection(usageRecordsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "clientId", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create usage record indexes: %w", err)
	}

	_, err = s.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}}, Options: unique,
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	return nil
}

// Close disconnects from the system database.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping reports system database reachability, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
