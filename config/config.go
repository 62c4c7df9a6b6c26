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

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envVarRegex matches ${VAR_NAME} references in config files
var envVarRegex = regexp.MustCompile(`\$\{(\w+)\}`)

// Config holds the full gateway configuration. Values are read from the
// environment; an optional YAML file (GATEWAY_CONFIG_FILE) can override them.
type Config struct {
	Port string `yaml:"port"`

	// System store (clients + usage records)
	MongoURI string `yaml:"mongo_uri"`
	MongoDB  string `yaml:"mongo_db"`

	// Upstream completion endpoint (Azure OpenAI)
	AzureOpenAI AzureOpenAIConfig `yaml:"azure_openai"`

	// Upstream basic-tier translator (Azure Translator)
	Translator TranslatorConfig `yaml:"translator"`

	// Optional Redis for distributed per-client rate limiting.
	// Empty disables Redis; the limiter falls back to in-memory counters.
	RedisURL string `yaml:"redis_url"`

	// JWTSecret signs admin session tokens for the dashboard surfaces
	JWTSecret string `yaml:"jwt_secret"`

	// QueryTimeout bounds target-database query execution
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// RateLimitPerMinute is the per-client request budget (0 disables)
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// AzureOpenAIConfig configures the chat-completion upstream
type AzureOpenAIConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// TranslatorConfig configures the character-billed translation upstream
type TranslatorConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Region   string `yaml:"region"`
}

// Load reads configuration from the environment, then applies the optional
// YAML overlay named by GATEWAY_CONFIG_FILE.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		MongoURI: getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:  getEnv("MONGODB_DB", "lexigate"),
		AzureOpenAI: AzureOpenAIConfig{
			Endpoint:   os.Getenv("AZURE_ENDPOINT"),
			APIKey:     os.Getenv("AZURE_API_KEY"),
			Deployment: getEnv("AZURE_DEPLOYMENT_ID", "gpt-4o-mini"),
			APIVersion: getEnv("AZURE_API_VERSION", "2023-05-15"),
		},
		Translator: TranslatorConfig{
			Endpoint: os.Getenv("AZURE_TRANSLATOR_ENDPOINT"),
			APIKey:   os.Getenv("AZURE_TRANSLATOR_API_KEY"),
			Region:   os.Getenv("AZURE_TRANSLATOR_REGION"),
		},
		RedisURL:           os.Getenv("REDIS_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		QueryTimeout:       10 * time.Second,
		RateLimitPerMinute: 300,
	}

	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid QUERY_TIMEOUT %q: %w", v, err)
		}
		cfg.QueryTimeout = d
	}

	if path := os.Getenv("GATEWAY_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, cfg.validate()
}

// applyFile overlays a YAML config file onto the current values.
// ${VAR} references in the file are expanded from the environment.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("system store URI is required (MONGODB_URI)")
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}
	return nil
}

// expandEnvVars expands ${VAR_NAME} references in the string.
// Undefined variables expand to the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
