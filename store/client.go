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

package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func findOneAndUpdateReturnAfter() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

// Capability tiers a client can hold.
const (
	TierPromptAI    = "Prompt AI"
	TierTranslateAI = "Translate AI"
	TierSearchAI    = "Search AI"
)

// Translation sub-tiers for Translate AI clients.
const (
	TranslationBasic    = "basic"
	TranslationAdvanced = "advanced"
	TranslationExpert   = "expert"
)

// Plan types.
const (
	PlanLimited   = "limited"
	PlanUnlimited = "unlimited"
)

// Usage is the mutable per-client usage aggregate, updated atomically
// on every metered call.
type Usage struct {
	Tokens        int64      `bson:"tokens" json:"tokens"`
	Cost          float64    `bson:"cost" json:"cost"`
	TotalRequests int64      `bson:"totalRequests,omitempty" json:"totalRequests,omitempty"`
	LastUsed      *time.Time `bson:"lastUsed" json:"lastUsed"`
}

// Client is one tenant record. APIKey is the bearer secret presented
// as x-api-key on every data-plane request.
type Client struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name            string             `bson:"name" json:"name"`
	Email           string             `bson:"email" json:"email"`
	Domain          string             `bson:"domain" json:"domain"`
	PlanType        string             `bson:"planType" json:"planType"`
	TokenLimit      int64              `bson:"tokenLimit,omitempty" json:"tokenLimit,omitempty"`
	AIModel         string             `bson:"aiModel,omitempty" json:"aiModel,omitempty"`
	AIType          string             `bson:"idxAiType" json:"idxAiType"`
	TranslationType string             `bson:"translationType,omitempty" json:"translationType,omitempty"`
	Dialect         string             `bson:"idxdb,omitempty" json:"idxdb,omitempty"`
	APIKey          string             `bson:"apiKey" json:"apiKey"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
	Usage           Usage              `bson:"usage" json:"usage"`
}

// GenerateAPIKey returns a fresh 256-bit key as 64 hex characters.
func GenerateAPIKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// FindClientByAPIKey resolves the tenant for a bearer key.
func (s *Store) FindClientByAPIKey(ctx context.Context, apiKey string) (*Client, error) {
	var client Client
	err := s.db.Collection(clientsCollection).
		FindOne(ctx, bson.M{"apiKey": apiKey}).
		Decode(&client)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}
	return &client, nil
}

// GetClient fetches one client by hex object id.
func (s *Store) GetClient(ctx context.Context, id string) (*Client, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}

	var client Client
	err = s.db.Collection(clientsCollection).
		FindOne(ctx, bson.M{"_id": oid}).
		Decode(&client)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client: %w", err)
	}
	return &client, nil
}

// ListClients returns every tenant record.
func (s *Store) ListClients(ctx context.Context) ([]Client, error) {
	cursor, err := s.db.Collection(clientsCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	clients := make([]Client, 0)
	if err := cursor.All(ctx, &clients); err != nil {
		return nil, fmt.Errorf("failed to decode clients: %w", err)
	}
	return clients, nil
}

// CreateClient inserts a new tenant with a fresh API key and zeroed
// usage. Name, email, and domain must each be unique.
func (s *Store) CreateClient(ctx context.Context, client *Client) error {
	existing := s.db.Collection(clientsCollection).FindOne(ctx, bson.M{
		"$or": bson.A{
			bson.M{"name": client.Name},
			bson.M{"email": client.Email},
			bson.M{"domain": client.Domain},
		},
	})
	if existing.Err() == nil {
		return ErrDuplicate
	}
	if existing.Err() != mongo.ErrNoDocuments {
		return fmt.Errorf("failed to check for duplicates: %w", existing.Err())
	}

	apiKey, err := GenerateAPIKey()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	client.APIKey = apiKey
	client.CreatedAt = now
	client.UpdatedAt = now
	client.Usage = Usage{}

	result, err := s.db.Collection(clientsCollection).InsertOne(ctx, client)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create client: %w", err)
	}
	client.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

// ClientUpdate carries the mutable administrative fields.
type ClientUpdate struct {
	Name            string
	Email           string
	Domain          string
	TranslationType string
	PlanType        string
	TokenLimit      int64
	RegenerateKey   bool
}

// UpdateClient applies an administrative edit, optionally rotating the
// API key, and returns the updated record.
func (s *Store) UpdateClient(ctx context.Context, id string, update ClientUpdate) (*Client, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}

	// Reject edits that would collide with another tenant's identity.
	dup := s.db.Collection(clientsCollection).FindOne(ctx, bson.M{
		"_id": bson.M{"$ne": oid},
		"$or": bson.A{
			bson.M{"email": update.Email},
			bson.M{"domain": update.Domain},
		},
	})
	if dup.Err() == nil {
		return nil, ErrDuplicate
	}
	if dup.Err() != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to check for duplicates: %w", dup.Err())
	}

	set := bson.M{
		"name":            update.Name,
		"email":           update.Email,
		"domain":          update.Domain,
		"translationType": update.TranslationType,
		"planType":        update.PlanType,
		"updatedAt":       time.Now().UTC(),
	}
	if update.PlanType == PlanLimited {
		set["tokenLimit"] = update.TokenLimit
	} else {
		set["tokenLimit"] = nil
	}
	if update.RegenerateKey {
		apiKey, err := GenerateAPIKey()
		if err != nil {
			return nil, err
		}
		set["apiKey"] = apiKey
	}

	var updated Client
	err = s.db.Collection(clientsCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set},
			findOneAndUpdateReturnAfter()).
		Decode(&updated)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}
	return &updated, nil
}

// DeleteClient removes a tenant and cascades to its usage history.
func (s *Store) DeleteClient(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidID
	}

	result, err := s.db.Collection(clientsCollection).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}

	if _, err := s.db.Collection(usageRecordsCollection).DeleteMany(ctx, bson.M{"clientId": oid}); err != nil {
		return fmt.Errorf("failed to delete usage history: %w", err)
	}
	return nil
}
