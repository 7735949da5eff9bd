// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package server assembles the passkey HTTP server: storage, the
// ceremony service, session issuance, middleware, health probes and
// the metrics endpoint.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/pkg/health"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/passkey/http"
	"github.com/jeremyhahn/go-passkey/pkg/passkey/sqlite"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the assembled passkey HTTP server.
type Server struct {
	server    *http.Server
	router    *chi.Mux
	port      int
	tlsConfig *tls.Config
	logger    *slog.Logger

	service   *passkey.Service
	store     *sqlite.Store
	checker   *health.Checker
	limiter   *ratelimit.Limiter
	collector *metrics.StateCollector

	shutdownTimeout time.Duration
}

// New builds a server from the loaded configuration.
func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := cfg.Logging.NewLogger()

	// Credential store
	var (
		repo        passkey.CredentialRepository
		store       *sqlite.Store
		countCreds  metrics.CredentialCounter
		storePinger health.Pinger
	)
	switch cfg.Storage.Backend {
	case "sqlite":
		s, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		repo = s
		store = s
		storePinger = s
		countCreds = s.Count
	case "memory":
		m := passkey.NewMemoryRepository()
		repo = m
		countCreds = func(ctx context.Context) (int, error) { return m.Count(), nil }
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}

	// Ceremony service
	svc, err := passkey.NewService(passkey.ServiceParams{
		Config:     cfg.ToPasskeyConfig(),
		Repository: repo,
		Identities: passkey.NewMemoryIdentityProvider(),
		Logger:     logger,
	})
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("failed to create passkey service: %w", err)
	}

	// Session issuance
	issuer, err := cfg.Session.CreateIssuer()
	if err != nil {
		svc.Close()
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	handler := passkeyhttp.NewHandler(svc).WithLogger(logger)
	if issuer != nil {
		handler = handler.WithSessionIssuer(issuer)
	}

	// Health checks
	checker := health.NewChecker()
	if storePinger != nil {
		checker.RegisterCheck("credential-store", health.RepositoryCheck("credential-store", storePinger))
	}
	checker.RegisterCheck("challenges",
		health.ChallengeBacklogCheck(svc.Challenges(), cfg.Health.MaxPendingChallenges))

	// Rate limiting
	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
		Burst:             cfg.RateLimit.Burst,
	})

	tlsConfig, err := cfg.TLS.LoadTLSConfig()
	if err != nil {
		svc.Close()
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	srv := &Server{
		port:            cfg.Server.Port,
		tlsConfig:       tlsConfig,
		logger:          logger,
		service:         svc,
		store:           store,
		checker:         checker,
		limiter:         limiter,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	srv.router = srv.setupRouter(cfg, handler)
	srv.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		TLSConfig:    tlsConfig,
	}

	if cfg.Metrics.Enabled {
		metrics.Enable()
		srv.collector = metrics.NewStateCollector(context.Background(),
			15*time.Second, svc.Challenges(), countCreds)
	}

	return srv, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter(cfg *config.Config, handler *passkeyhttp.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(s.RecoveryMiddleware())
	r.Use(s.CorrelationMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(CORSMiddleware)

	// Health probes (no rate limiting)
	if cfg.Health.Enabled {
		r.Get("/health", s.HealthHandler)
		r.Head("/health", s.HealthHandler)
		r.Get("/health/live", s.LivenessHandler)
		r.Get("/health/ready", s.ReadinessHandler)
		r.Get("/health/startup", s.StartupHandler)
	}

	// Prometheus metrics
	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	// Ceremony and credential endpoints
	r.Route("/api/v1/passkey", func(r chi.Router) {
		r.Use(ratelimit.Middleware(s.limiter))
		passkeyhttp.MountChi(r, handler)
	})

	return r
}

// Start starts the server. It blocks until the listener stops.
func (s *Server) Start() error {
	if s.collector != nil {
		s.collector.Start()
	}
	s.checker.MarkStarted()

	if s.tlsConfig != nil {
		s.logger.Info("Starting HTTPS server", "port", s.port)
		if err := s.server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
	} else {
		s.logger.Info("Starting HTTP server", "port", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	return nil
}

// Stop gracefully stops the server and releases its resources.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	s.checker.MarkNotStarted()

	if s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}

	err := s.server.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Failed to shutdown server", "error", err)
	}

	if s.collector != nil {
		s.collector.Stop()
	}
	s.limiter.Stop()
	s.service.Close()
	if s.store != nil {
		if cerr := s.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	if err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Router exposes the assembled router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Service exposes the ceremony service, mainly for tests.
func (s *Server) Service() *passkey.Service {
	return s.service
}
