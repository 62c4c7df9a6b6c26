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

// Package gateway is the HTTP surface: tenant authentication, the
// metered data-plane endpoints (prompt, translate, search), and the
// administrative management API.
package gateway

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"lexigate/config"
	"lexigate/connectors/base"
	"lexigate/llm"
	"lexigate/metering"
	"lexigate/shared/logger"
	"lexigate/store"
)

// ClientStore is the tenant persistence surface the gateway needs.
type ClientStore interface {
	FindClientByAPIKey(ctx context.Context, apiKey string) (*store.Client, error)
	GetClient(ctx context.Context, id string) (*store.Client, error)
	ListClients(ctx context.Context) ([]store.Client, error)
	CreateClient(ctx context.Context, client *store.Client) error
	UpdateClient(ctx context.Context, id string, update store.ClientUpdate) (*store.Client, error)
	DeleteClient(ctx context.Context, id string) error
}

// UserStore is the admin account surface.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*store.User, error)
	CreateUser(ctx context.Context, user *store.User) error
}

// UsageReporter runs ledger aggregations for the reporting endpoint.
type UsageReporter interface {
	Report(ctx context.Context, opts store.ReportOptions) (*store.UsageReport, error)
}

// ChatProvider is the completion upstream.
type ChatProvider interface {
	Chat(ctx context.Context, req llm.ChatRequest) (string, error)
}

// TranslateProvider is the character-billed translation upstream.
type TranslateProvider interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// QueryGenerator synthesizes raw query text for the search pipeline.
type QueryGenerator interface {
	Generate(ctx context.Context, dialect base.Dialect, table, prompt string, sampleFields []string) (string, error)
}

// ConnectorResolver hands out live tenant database connectors.
type ConnectorResolver interface {
	Resolve(ctx context.Context, dialect base.Dialect, desc base.Descriptor) (base.Executor, error)
	Evict(ctx context.Context, dialect base.Dialect, desc base.Descriptor)
}

// Pinger reports system store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the HTTP surface to its dependencies.
type Server struct {
	cfg        *config.Config
	clients    ClientStore
	users      UserStore
	reports    UsageReporter
	meter      *metering.Engine
	chat       ChatProvider
	translator TranslateProvider
	synth      QueryGenerator
	registry   ConnectorResolver
	limiter    RateLimiter
	health     Pinger
	log        *logger.Logger
}

// Deps collects everything a Server needs.
type Deps struct {
	Config     *config.Config
	Clients    ClientStore
	Users      UserStore
	Reports    UsageReporter
	Meter      *metering.Engine
	Chat       ChatProvider
	Translator TranslateProvider
	Synth      QueryGenerator
	Registry   ConnectorResolver
	Limiter    RateLimiter
	Health     Pinger
}

// NewServer builds the gateway server.
func NewServer(deps Deps) *Server {
	return &Server{
		cfg:        deps.Config,
		clients:    deps.Clients,
		users:      deps.Users,
		reports:    deps.Reports,
		meter:      deps.Meter,
		chat:       deps.Chat,
		translator: deps.Translator,
		synth:      deps.Synth,
		registry:   deps.Registry,
		limiter:    deps.Limiter,
		health:     deps.Health,
		log:        logger.New("gateway"),
	}
}

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	// Data plane
	r.HandleFunc("/api/v1/prompt", s.handlePrompt).Methods("POST")
	r.HandleFunc("/api/v1/translate/basic", s.handleTranslateBasic).Methods("POST")
	r.HandleFunc("/api/v1/translate/advanced", s.handleTranslateAdvanced).Methods("POST")
	r.HandleFunc("/api/v1/translate/expert", s.handleTranslateExpert).Methods("POST")
	r.HandleFunc("/api/v1/search/mongodb", s.searchHandler(base.DialectMongoDB)).Methods("POST")
	r.HandleFunc("/api/v1/search/mysql", s.searchHandler(base.DialectMySQL)).Methods("POST")
	r.HandleFunc("/api/v1/search/mssql", s.searchHandler(base.DialectMSSQL)).Methods("POST")
	r.HandleFunc("/api/v1/search/postgres", s.searchHandler(base.DialectPostgreSQL)).Methods("POST")

	// Management plane
	r.HandleFunc("/api/v1/auth/login", s.handleLogin).Methods("POST")
	r.HandleFunc("/api/v1/auth/register", s.handleRegister).Methods("POST")
	r.HandleFunc("/api/v1/usage", s.requireAdmin(s.handleUsageReport)).Methods("GET")
	r.HandleFunc("/api/v1/clients", s.requireAdmin(s.handleListClients)).Methods("GET")
	r.HandleFunc("/api/v1/clients", s.requireAdmin(s.handleCreateClient)).Methods("POST")
	r.HandleFunc("/api/v1/clients/{id}", s.requireAdmin(s.handleGetClient)).Methods("GET")
	r.HandleFunc("/api/v1/clients/{id}", s.requireAdmin(s.handleUpdateClient)).Methods("PUT")
	r.HandleFunc("/api/v1/clients/{id}", s.requireAdmin(s.handleDeleteClient)).Methods("DELETE")
	r.HandleFunc("/api/v1/clients/{id}/regenerate-key", s.requireAdmin(s.handleRegenerateKey)).Methods("POST")

	// Operational surface
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.Use(s.requestMiddleware)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	})
	return c.Handler(r)
}

// Run serves until SIGINT/SIGTERM, then drains in-flight requests.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("", "", "gateway listening", map[string]interface{}{"port": s.cfg.Port})
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		s.log.Info("", "", "shutting down", map[string]interface{}{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// handleHealth reports gateway and system store health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
