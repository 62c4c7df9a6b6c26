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
	"time"

	"lexigate/config"
	"lexigate/connectors/registry"
	"lexigate/llm"
	"lexigate/metering"
	"lexigate/nlq"
	"lexigate/shared/logger"
	"lexigate/store"
)

// Run loads configuration, wires every dependency, and serves until
// shutdown. It is the single entry point used by cmd/gateway.
func Run() error {
	log := logger.New("bootstrap")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	systemStore, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return fmt.Errorf("system store: %w", err)
	}
	if err := systemStore.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("system store indexes: %w", err)
	}

	azure, err := llm.NewAzureProvider(llm.AzureConfig{
		Endpoint:   cfg.AzureOpenAI.Endpoint,
		APIKey:     cfg.AzureOpenAI.APIKey,
		Deployment: cfg.AzureOpenAI.Deployment,
		APIVersion: cfg.AzureOpenAI.APIVersion,
	})
	if err != nil {
		return fmt.Errorf("completion upstream: %w", err)
	}

	translator, err := llm.NewTranslator(llm.TranslatorConfig{
		Endpoint: cfg.Translator.Endpoint,
		APIKey:   cfg.Translator.APIKey,
		Region:   cfg.Translator.Region,
	})
	if err != nil {
		return fmt.Errorf("translation upstream: %w", err)
	}

	counter, err := metering.NewTiktokenCounter()
	if err != nil {
		return fmt.Errorf("tokenizer: %w", err)
	}
	meter := metering.NewEngine(systemStore, counter, metering.NewGeoResolver())

	limiter, err := NewSlidingWindowLimiter(cfg.RedisURL, cfg.RateLimitPerMinute)
	if err != nil {
		// The limiter fails open by design; a broken Redis should not
		// keep the gateway down.
		log.Warn("", "", "rate limiter degraded to in-memory", map[string]interface{}{
			"error": err.Error(),
		})
		limiter, _ = NewSlidingWindowLimiter("", cfg.RateLimitPerMinute)
	}

	pools := registry.New(registry.DefaultCapacity)
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		_ = pools.Close(shutdownCtx)
		_ = limiter.Close()
		_ = systemStore.Close(shutdownCtx)
	}()

	server := NewServer(Deps{
		Config:     cfg,
		Clients:    systemStore,
		Users:      systemStore,
		Reports:    systemStore,
		Meter:      meter,
		Chat:       azure,
		Translator: translator,
		Synth:      nlq.NewSynthesizer(llm.QueryCompleter{Provider: azure}),
		Registry:   pools,
		Limiter:    limiter,
		Health:     systemStore,
	})
	return server.Run()
}
