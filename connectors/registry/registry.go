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

// Package registry caches live database connectors keyed by connection
// descriptor, so repeated requests against the same tenant database
// reuse one pool instead of dialing per request. The cache is bounded:
// least recently used pools are closed and evicted once capacity is
// reached.
package registry

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"lexigate/connectors/base"
	"lexigate/connectors/mongodb"
	"lexigate/connectors/mysql"
	"lexigate/connectors/postgres"
	"lexigate/connectors/sqlserver"
	"lexigate/shared/logger"
)

// DefaultCapacity bounds the number of live tenant pools per process.
const DefaultCapacity = 64

// Factory dials a connector for one dialect.
type Factory func(ctx context.Context, desc base.Descriptor) (base.Executor, error)

// Registry is a bounded LRU cache of live connectors.
type Registry struct {
	mu        sync.Mutex
	capacity  int
	entries   map[string]*list.Element
	order     *list.List // front = most recently used
	factories map[base.Dialect]Factory
	log       *logger.Logger
}

type entry struct {
	key      string
	executor base.Executor
}

// New returns a Registry with the standard dialect factories installed.
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		factories: map[base.Dialect]Factory{
			base.DialectMongoDB: func(ctx context.Context, desc base.Descriptor) (base.Executor, error) {
				return mongodb.New(ctx, desc)
			},
			base.DialectMySQL: func(ctx context.Context, desc base.Descriptor) (base.Executor, error) {
				return mysql.New(ctx, desc)
			},
			base.DialectPostgreSQL: func(ctx context.Context, desc base.Descriptor) (base.Executor, error) {
				return postgres.New(ctx, desc)
			},
			base.DialectMSSQL: func(ctx context.Context, desc base.Descriptor) (base.Executor, error) {
				return sqlserver.New(ctx, desc)
			},
		},
		log: logger.New("connector.registry"),
	}
}

// RegisterFactory overrides the factory for a dialect. Tests use this to
// install fakes.
func (r *Registry) RegisterFactory(dialect base.Dialect, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[dialect] = f
}

// Resolve returns a live connector for the descriptor, dialing one if
// no cached pool exists. A resolved entry moves to the front of the LRU
// order; dialing past capacity closes the least recently used pool.
func (r *Registry) Resolve(ctx context.Context, dialect base.Dialect, desc base.Descriptor) (base.Executor, error) {
	factory, err := r.factoryFor(dialect)
	if err != nil {
		return nil, err
	}

	key := desc.Fingerprint(dialect)

	r.mu.Lock()
	if el, ok := r.entries[key]; ok {
		r.order.MoveToFront(el)
		exec := el.Value.(*entry).executor
		r.mu.Unlock()
		return exec, nil
	}
	r.mu.Unlock()

	// Dial outside the lock; connecting can take seconds.
	exec, err := factory(ctx, desc)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if el, ok := r.entries[key]; ok {
		// Lost the race to another request; keep the first pool.
		r.order.MoveToFront(el)
		cached := el.Value.(*entry).executor
		r.mu.Unlock()
		_ = exec.Close(ctx)
		return cached, nil
	}

	el := r.order.PushFront(&entry{key: key, executor: exec})
	r.entries[key] = el

	var evicted []*entry
	for r.order.Len() > r.capacity {
		oldest := r.order.Back()
		r.order.Remove(oldest)
		ev := oldest.Value.(*entry)
		delete(r.entries, ev.key)
		evicted = append(evicted, ev)
	}
	r.mu.Unlock()

	for _, ev := range evicted {
		if cerr := ev.executor.Close(ctx); cerr != nil {
			r.log.Warn("", "", "failed to close evicted pool", map[string]interface{}{
				"dialect": string(ev.executor.Dialect()),
				"error":   cerr.Error(),
			})
		}
	}

	return exec, nil
}

// Evict closes and removes the cached pool for the descriptor, if any.
// Callers use it after a pool-level failure to force a fresh dial.
func (r *Registry) Evict(ctx context.Context, dialect base.Dialect, desc base.Descriptor) {
	key := desc.Fingerprint(dialect)

	r.mu.Lock()
	el, ok := r.entries[key]
	if ok {
		r.order.Remove(el)
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if ok {
		_ = el.Value.(*entry).executor.Close(ctx)
	}
}

// Len reports the number of cached pools.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

// Close shuts down every cached pool.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	var all []*entry
	for el := r.order.Front(); el != nil; el = el.Next() {
		all = append(all, el.Value.(*entry))
	}
	r.entries = make(map[string]*list.Element)
	r.order.Init()
	r.mu.Unlock()

	var firstErr error
	for _, e := range all {
		if err := e.executor.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Registry) factoryFor(dialect base.Dialect) (Factory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.factories[dialect]
	if !ok {
		return nil, fmt.Errorf("no connector factory for dialect %q", dialect)
	}
	return f, nil
}
