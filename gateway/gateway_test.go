// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Lexigate

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"lexigate/config"
	"lexigate/connectors/base"
	"lexigate/llm"
	"lexigate/metering"
	"lexigate/store"
)

// memClientStore is an in-memory ClientStore for handler tests.
type memClientStore struct {
	mu      sync.Mutex
	clients map[string]*store.Client
}

func newMemClientStore() *memClientStore {
	return &memClientStore{clients: map[string]*store.Client{}}
}

func (m *memClientStore) add(c *store.Client) *store.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	m.clients[c.ID.Hex()] = c
	return c
}

func (m *memClientStore) FindClientByAPIKey(_ context.Context, apiKey string) (*store.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		if c.APIKey == apiKey {
			copied := *c
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memClientStore) GetClient(_ context.Context, id string) (*store.Client, error) {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, store.ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memClientStore) ListClients(context.Context) ([]store.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memClientStore) CreateClient(_ context.Context, client *store.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		if c.Name == client.Name || c.Email == client.Email || c.Domain == client.Domain {
			return store.ErrDuplicate
		}
	}
	client.ID = primitive.NewObjectID()
	key, err := store.GenerateAPIKey()
	if err != nil {
		return err
	}
	client.APIKey = key
	m.clients[client.ID.Hex()] = client
	return nil
}

func (m *memClientStore) UpdateClient(_ context.Context, id string, update store.ClientUpdate) (*store.Client, error) {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, store.ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	for otherID, other := range m.clients {
		if otherID != id && (other.Email == update.Email || other.Domain == update.Domain) {
			return nil, store.ErrDuplicate
		}
	}
	c.Name = update.Name
	c.Email = update.Email
	c.Domain = update.Domain
	c.TranslationType = update.TranslationType
	c.PlanType = update.PlanType
	c.TokenLimit = update.TokenLimit
	if update.RegenerateKey {
		key, err := store.GenerateAPIKey()
		if err != nil {
			return nil, err
		}
		c.APIKey = key
	}
	copied := *c
	return &copied, nil
}

func (m *memClientStore) DeleteClient(_ context.Context, id string) error {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return store.ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.clients, id)
	return nil
}

// memUserStore is an in-memory UserStore.
type memUserStore struct {
	mu    sync.Mutex
	users map[string]*store.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]*store.User{}}
}

func (m *memUserStore) FindUserByEmail(_ context.Context, email string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memUserStore) CreateUser(_ context.Context, user *store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Email]; ok {
		return store.ErrDuplicate
	}
	user.ID = primitive.NewObjectID()
	m.users[user.Email] = user
	return nil
}

// fakeReporter returns a canned report.
type fakeReporter struct {
	report *store.UsageReport
	err    error
	got    store.ReportOptions
}

func (f *fakeReporter) Report(_ context.Context, opts store.ReportOptions) (*store.UsageReport, error) {
	f.got = opts
	return f.report, f.err
}

// fakeChat answers completions from a function.
type fakeChat struct {
	fn  func(llm.ChatRequest) (string, error)
	got []llm.ChatRequest
}

func (f *fakeChat) Chat(_ context.Context, req llm.ChatRequest) (string, error) {
	f.got = append(f.got, req)
	return f.fn(req)
}

// fakeTranslateUpstream answers translations from a function.
type fakeTranslateUpstream struct {
	fn func(text, from, to string) (string, error)
}

func (f *fakeTranslateUpstream) Translate(_ context.Context, text, from, to string) (string, error) {
	return f.fn(text, from, to)
}

// fakeSynth answers query generation from a function.
type fakeSynth struct {
	fn func(dialect base.Dialect, table, prompt string, sampleFields []string) (string, error)
}

func (f *fakeSynth) Generate(_ context.Context, dialect base.Dialect, table, prompt string, sampleFields []string) (string, error) {
	return f.fn(dialect, table, prompt, sampleFields)
}

// fakeExecutor records what it ran and returns canned rows.
type fakeExecutor struct {
	dialect base.Dialect
	fields  []string
	rows    []map[string]interface{}
	err     error
	query   base.Query
	table   string
}

func (f *fakeExecutor) Dialect() base.Dialect { return f.dialect }

func (f *fakeExecutor) SampleFields(context.Context, string) []string { return f.fields }

func (f *fakeExecutor) Execute(_ context.Context, table string, q base.Query) ([]map[string]interface{}, error) {
	f.table = table
	f.query = q
	return f.rows, f.err
}

func (f *fakeExecutor) Close(context.Context) error { return nil }

// fakeResolver always hands out the same executor.
type fakeResolver struct {
	exec    base.Executor
	err     error
	evicted int
}

func (f *fakeResolver) Resolve(context.Context, base.Dialect, base.Descriptor) (base.Executor, error) {
	return f.exec, f.err
}

func (f *fakeResolver) Evict(context.Context, base.Dialect, base.Descriptor) {
	f.evicted++
}

// fakeRecorder captures metering side effects.
type fakeRecorder struct {
	mu      sync.Mutex
	tokens  int64
	cost    float64
	records []*store.UsageRecord
}

func (f *fakeRecorder) IncrementUsage(_ context.Context, _ string, tokens int64, cost float64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens += tokens
	f.cost += cost
	return nil
}

func (f *fakeRecorder) InsertUsageRecord(_ context.Context, record *store.UsageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

// denyLimiter rejects every request.
type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) bool { return false }

// testEnv is everything a handler test needs to drive the router and
// inspect side effects.
type testEnv struct {
	server   *Server
	router   http.Handler
	clients  *memClientStore
	users    *memUserStore
	reporter *fakeReporter
	recorder *fakeRecorder
	chat     *fakeChat
	resolver *fakeResolver
}

func newTestEnv(mutate func(*Deps)) *testEnv {
	env := &testEnv{
		clients:  newMemClientStore(),
		users:    newMemUserStore(),
		reporter: &fakeReporter{report: &store.UsageReport{}},
		recorder: &fakeRecorder{},
		chat: &fakeChat{fn: func(llm.ChatRequest) (string, error) {
			return "canned reply", nil
		}},
		resolver: &fakeResolver{},
	}

	deps := Deps{
		Config: &config.Config{
			Port:         "8080",
			JWTSecret:    "test-secret",
			QueryTimeout: 200 * time.Millisecond,
		},
		Clients:  env.clients,
		Users:    env.users,
		Reports:  env.reporter,
		Meter:    metering.NewEngine(env.recorder, metering.CharCounter{}, nil),
		Chat:     env.chat,
		Translator: &fakeTranslateUpstream{fn: func(text, _, _ string) (string, error) {
			return "translated: " + text, nil
		}},
		Synth: &fakeSynth{fn: func(base.Dialect, string, string, []string) (string, error) {
			return `{"filter": {}}`, nil
		}},
		Registry: env.resolver,
	}
	if mutate != nil {
		mutate(&deps)
	}

	env.server = NewServer(deps)
	env.router = env.server.Router()
	return env
}

// do sends a JSON request through the router.
func (env *testEnv) do(method, path, apiKey string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set(apiKeyHeader, apiKey)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON body %q: %v", rec.Body.String(), err)
	}
	return out
}
