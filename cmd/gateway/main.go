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

// Package main is the entry point for the Lexigate gateway service.
//
// The gateway is a multi-tenant AI API front door that:
// - Authenticates tenants by API key and enforces plan token limits
// - Serves Prompt AI completions via Azure OpenAI
// - Serves Translate AI (basic, advanced, expert tiers)
// - Serves Search AI: natural language to MongoDB, MySQL, MSSQL, and
//   PostgreSQL queries, validated and executed against tenant databases
// - Meters every call (tokens, cost, request origin) into a usage ledger
//
// Usage:
//
//	./gateway
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	MONGODB_URI - system store connection string
//	AZURE_ENDPOINT / AZURE_API_KEY / AZURE_DEPLOYMENT_ID - completion upstream
//	AZURE_TRANSLATOR_ENDPOINT / AZURE_TRANSLATOR_API_KEY / AZURE_TRANSLATOR_REGION
//	REDIS_URL - distributed rate limiting (optional)
//	JWT_SECRET - admin session token signing key
//	GATEWAY_CONFIG_FILE - optional YAML overlay
package main

import (
	"fmt"
	"os"

	"lexigate/gateway"
)

func main() {
	if err := gateway.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "gateway:", err)
		os.Exit(1)
	}
}
