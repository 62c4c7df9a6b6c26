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

package mongodb

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"lexigate/connectors/base"
	"lexigate/shared/logger"
)

// Connector executes document-dialect queries against a tenant-supplied
// MongoDB deployment. One Connector owns one pooled client, shared across
// requests that resolve to the same descriptor.
type Connector struct {
	client *mongo.Client
	db     *mongo.Database
	log    *logger.Logger
}

// New dials the MongoDB deployment described by desc and verifies the
// connection with a ping. The pool is capped per the tenant-pool limits.
func New(ctx context.Context, desc base.Descriptor) (*Connector, error) {
	uri, dbName, err := buildURI(desc)
	if err != nil {
		return nil, base.NewConnectorError(base.DialectMongoDB, "Connect", "failed to build URI", err)
	}

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(base.DefaultMaxOpenConns).
		SetMinPoolSize(0).
		SetMaxConnIdleTime(base.DefaultConnMaxIdleTime).
		SetConnectTimeout(base.DefaultConnectTimeout).
		SetRetryReads(true).
		SetAppName("lexigate-search")

	if desc.TLS || desc.CAFile != "" {
		tlsConfig, err := buildTLSConfig(desc.CAFile)
		if err != nil {
			return nil, base.NewConnectorError(base.DialectMongoDB, "Connect", "failed to load CA file", err)
		}
		clientOpts.SetTLSConfig(tlsConfig)
	}

	connectCtx, cancel := context.WithTimeout(ctx, base.DefaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, base.NewConnectorError(base.DialectMongoDB, "Connect", "failed to connect", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, base.NewConnectorError(base.DialectMongoDB, "Connect", "failed to ping deployment", err)
	}

	return &Connector{
		client: client,
		db:     client.Database(dbName),
		log:    logger.New("connector.mongodb"),
	}, nil
}

// buildURI constructs the connection string and resolves the database name
func buildURI(desc base.Descriptor) (uri, dbName string, err error) {
	if desc.URI != "" {
		dbName = desc.Database
		if dbName == "" {
			parsed, perr := url.Parse(desc.URI)
			if perr != nil {
				return "", "", fmt.Errorf("invalid connection URI: %w", perr)
			}
			dbName = strings.TrimPrefix(parsed.Path, "/")
		}
		if dbName == "" {
			return "", "", fmt.Errorf("database name is required")
		}
		return desc.URI, dbName, nil
	}

	if desc.Host == "" || desc.Database == "" {
		return "", "", fmt.Errorf("host and database are required")
	}

	hostPort := fmt.Sprintf("%s:%d", desc.Host, desc.PortOrDefault(27017))
	if desc.User != "" {
		uri = fmt.Sprintf("mongodb://%s:%s@%s/%s?authSource=admin",
			url.QueryEscape(desc.User), url.QueryEscape(desc.Password), hostPort, desc.Database)
	} else {
		uri = fmt.Sprintf("mongodb://%s/%s", hostPort, desc.Database)
	}

	return uri, desc.Database, nil
}

func buildTLSConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", caFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// Dialect identifies the connector's query dialect
func (c *Connector) Dialect() base.Dialect {
	return base.DialectMongoDB
}

// SampleFields samples one arbitrary document from the collection and
// flattens nested objects (not arrays) into dotted paths. Best effort:
// a missing collection or connection failure yields an empty slice.
func (c *Connector) SampleFields(ctx context.Context, table string) []string {
	var doc bson.M
	err := c.db.Collection(table).FindOne(ctx, bson.M{}).Decode(&doc)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			c.log.Warn("", "", "field sampling failed", map[string]interface{}{
				"collection": table,
				"error":      err.Error(),
			})
		}
		return nil
	}

	fields := flattenFields(doc, "")
	sort.Strings(fields)
	return fields
}

// flattenFields walks the document and emits dot-notation paths for
// nested objects. Arrays are treated as leaves.
func flattenFields(doc bson.M, prefix string) []string {
	var fields []string
	for key, value := range doc {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch nested := value.(type) {
		case bson.M:
			fields = append(fields, flattenFields(nested, path)...)
		case map[string]interface{}:
			fields = append(fields, flattenFields(bson.M(nested), path)...)
		case primitive.D:
			fields = append(fields, flattenFields(nested.Map(), path)...)
		default:
			fields = append(fields, path)
		}
	}
	return fields
}

// Execute dispatches on the validated query shape: a PipelineQuery runs
// as an aggregation pipeline, a FindQuery as a filtered find with the
// default result cap when no limit was synthesized.
func (c *Connector) Execute(ctx context.Context, table string, q base.Query) ([]map[string]interface{}, error) {
	collection := c.db.Collection(table)

	switch query := q.(type) {
	case base.PipelineQuery:
		return c.aggregate(ctx, collection, query)
	case base.FindQuery:
		return c.find(ctx, collection, query)
	default:
		return nil, base.NewConnectorError(base.DialectMongoDB, "Execute",
			fmt.Sprintf("unsupported query type %T", q), nil)
	}
}

func (c *Connector) find(ctx context.Context, collection *mongo.Collection, q base.FindQuery) ([]map[string]interface{}, error) {
	filter := q.Filter
	if filter == nil {
		filter = map[string]interface{}{}
	}

	opts := options.Find()
	if q.Projection != nil {
		opts.SetProjection(q.Projection)
	}
	if len(q.Sort) > 0 {
		opts.SetSort(q.Sort)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = base.DefaultFindLimit
	}
	opts.SetLimit(limit)

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, base.NewConnectorError(base.DialectMongoDB, "Execute", "find failed", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	return c.decodeCursor(ctx, cursor)
}

func (c *Connector) aggregate(ctx context.Context, collection *mongo.Collection, q base.PipelineQuery) ([]map[string]interface{}, error) {
	cursor, err := collection.Aggregate(ctx, mongo.Pipeline(q.Stages))
	if err != nil {
		return nil, base.NewConnectorError(base.DialectMongoDB, "Execute", "aggregation failed", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	return c.decodeCursor(ctx, cursor)
}

// Close releases the pooled client
func (c *Connector) Close(ctx context.Context) error {
	disconnectCtx, cancel := context.WithTimeout(ctx, base.DefaultConnectTimeout)
	defer cancel()
	return c.client.Disconnect(disconnectCtx)
}

// decodeCursor decodes all documents from a cursor
func (c *Connector) decodeCursor(ctx context.Context, cursor *mongo.Cursor) ([]map[string]interface{}, error) {
	results := make([]map[string]interface{}, 0)

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, base.NewConnectorError(base.DialectMongoDB, "Execute", "failed to decode document", err)
		}
		results = append(results, bsonToMap(doc))
	}

	if err := cursor.Err(); err != nil {
		return nil, base.NewConnectorError(base.DialectMongoDB, "Execute", "cursor iteration failed", err)
	}

	return results, nil
}

// bsonToMap converts a BSON document to a JSON-serializable Go map
func bsonToMap(doc bson.M) map[string]interface{} {
	result := make(map[string]interface{})
	for k, v := range doc {
		result[k] = convertFromBSON(v)
	}
	return result
}

// convertFromBSON converts BSON types to JSON-serializable Go types
func convertFromBSON(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time()
	case primitive.Binary:
		return val.Data
	case primitive.Decimal128:
		return val.String()
	case bson.M:
		return bsonToMap(val)
	case bson.A:
		result := make([]interface{}, len(val))
		for i, item := range val {
			result[i] = convertFromBSON(item)
		}
		return result
	case primitive.D:
		result := make(map[string]interface{})
		for _, elem := range val {
			result[elem.Key] = convertFromBSON(elem.Value)
		}
		return result
	default:
		return val
	}
}
