// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

// Package server exposes the agent over a REST API built on chi and huma.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// Version is reported by the OpenAPI document and /health.
var Version = "0.1.0"

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr string
	// APIKey enables bearer authentication on /api routes. Empty disables it.
	APIKey       string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    RateLimitConfig
	Logger       *slog.Logger
}

// Server wraps a chi router with huma API and HTTP server.
type Server struct {
	router   chi.Router
	api      huma.API
	cfg      Config
	services *Services
	log      *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Server with chi router, huma API, health endpoint, and CORS.
// With a nil svc every route is still documented but /api requests answer
// 503; cmd/openapi-gen relies on that.
func New(cfg Config, svc *Services) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, pawerr.New(pawerr.CodeServerConfigInvalid, "listen address is required")
	}
	if svc != nil {
		if err := svc.Validate(); err != nil {
			return nil, err
		}
	}
	if err := cfg.RateLimit.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Agent turns run inside the request.
		cfg.WriteTimeout = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		services: svc,
		log:      cfg.Logger,
		done:     make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware(cfg.RateLimit, s.done))
	r.Use(authMiddleware(cfg.APIKey, s.log))
	if svc == nil {
		r.Use(unavailableMiddleware)
	}

	humaConfig := huma.DefaultConfig("PAW", Version)
	humaConfig.Info.Description = "Personal agent workspace API"
	if cfg.APIKey != "" {
		humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
			"bearer": {Type: "http", Scheme: "bearer"},
		}
	}
	api := humachi.New(r, humaConfig)

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
		return &HealthResponse{Body: HealthBody{Status: "ok", Version: Version}}, nil
	})

	s.router = r
	s.api = api

	s.registerRoutes()
	s.registerStreamRoute()
	return s, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API for registering additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}
	if s.cfg.APIKey == "" && !isLoopback(ln.Addr()) {
		s.log.Warn("api_key is empty and the server is reachable beyond loopback", "addr", ln.Addr().String())
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("http server listening", "addr", ln.Addr().String(), "auth", s.cfg.APIKey != "")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return pawerr.Wrap(err, pawerr.CodeServerStartFailure, "serving http")
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return pawerr.Wrap(err, pawerr.CodeServerShutdownFailure, "shutting down")
	}
	return <-errCh
}

// Close stops background goroutines started by the middleware.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status  string `json:"status" example:"ok" doc:"Health status"`
	Version string `json:"version" doc:"Server version"`
}

// HealthResponse wraps the health check response.
type HealthResponse struct {
	Body HealthBody
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func unavailableMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":503,"title":"Service Unavailable","detail":"services not configured"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopback(addr net.Addr) bool {
	tcp, ok := addr.(*net.TCPAddr)
	return ok && tcp.IP.IsLoopback()
}
