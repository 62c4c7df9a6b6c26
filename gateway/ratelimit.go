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

package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"lexigate/shared/logger"
)

// RateLimiter gates per-client request volume.
type RateLimiter interface {
	// Allow reports whether the client may proceed. Infrastructure
	// failures fail open.
	Allow(ctx context.Context, clientKey string) bool
}

// SlidingWindowLimiter enforces a per-minute budget with a Redis
// sorted-set sliding window. When Redis is unavailable it falls back
// to per-process in-memory counters.
type SlidingWindowLimiter struct {
	client         *redis.Client
	limitPerMinute int
	log            *logger.Logger

	mu     sync.Mutex
	memory map[string][]time.Time
}

// NewSlidingWindowLimiter builds a limiter. redisURL may be empty, in
// which case only the in-memory fallback is used.
func NewSlidingWindowLimiter(redisURL string, limitPerMinute int) (*SlidingWindowLimiter, error) {
	l := &SlidingWindowLimiter{
		limitPerMinute: limitPerMinute,
		log:            logger.New("gateway.ratelimit"),
		memory:         make(map[string][]time.Time),
	}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		l.client = client
	}

	return l, nil
}

// Close releases the Redis connection, if any.
func (l *SlidingWindowLimiter) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

// Allow implements RateLimiter. A zero limit disables enforcement.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, clientKey string) bool {
	if l.limitPerMinute <= 0 {
		return true
	}
	if l.client == nil {
		return l.allowInMemory(clientKey)
	}

	now := time.Now()
	key := "ratelimit:" + clientKey

	pipe := l.client.Pipeline()
	minScore := now.Add(-time.Minute).Unix()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))
	pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, 2*time.Minute)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		// Fail open on infrastructure errors; throttling must never
		// take the data plane down with it.
		l.log.Warn("", "", "rate limit check failed, failing open", map[string]interface{}{
			"error": err.Error(),
		})
		return true
	}

	count := cmds[1].(*redis.IntCmd).Val()
	return count < int64(l.limitPerMinute)
}

func (l *SlidingWindowLimiter) allowInMemory(clientKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Minute)

	kept := l.memory[clientKey][:0]
	for _, ts := range l.memory[clientKey] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limitPerMinute {
		l.memory[clientKey] = kept
		return false
	}

	l.memory[clientKey] = append(kept, now)
	return true
}
