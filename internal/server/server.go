// Package server implements the blobd HTTP server: routing, middleware and
// the system endpoints around the blob operations.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/bleepstore/blobd/internal/auth"
	"github.com/bleepstore/blobd/internal/blob"
	"github.com/bleepstore/blobd/internal/config"
	"github.com/bleepstore/blobd/internal/handlers"
	"github.com/bleepstore/blobd/internal/logging"
)

// Server is the blobd HTTP server.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	svc        *blob.Service
	verifier   *auth.Verifier
	limiter    *multiLimiter
	httpServer *http.Server
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Body HealthBody
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithVerifier sets the token verifier, overriding the one built from the
// auth config.
func WithVerifier(v *auth.Verifier) ServerOption {
	return func(s *Server) {
		s.verifier = v
	}
}

// New creates a Server serving svc and wires up all routes on the Chi
// router with the Huma API.
func New(cfg *config.Config, svc *blob.Service, opts ...ServerOption) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("blob service is required")
	}

	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("blobd", "1.0.0")
	humaConfig.Info.Description = "Stores base64-encoded blobs under client-chosen ids."
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	if cfg.Auth.Enabled {
		humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
			"bearer": {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		}
		humaConfig.Security = []map[string][]string{{"bearer": {}}}
	}
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:    cfg,
		router: router,
		api:    api,
		svc:    svc,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Auth.Enabled && s.verifier == nil {
		v, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		if err != nil {
			return nil, fmt.Errorf("creating token verifier: %w", err)
		}
		s.verifier = v
	}
	if cfg.RateLimit.RPS > 0 {
		s.limiter = newMultiLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	}

	s.registerRoutes()
	return s, nil
}

// Handler returns the router wrapped in the middleware chain:
// metricsMiddleware -> requestContext -> auth -> rateLimit -> bodyLimit -> router.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router
	handler = bodyLimit(s.cfg.Server.MaxBodyBytes)(handler)
	if s.limiter != nil {
		handler = rateLimit(s.limiter)(handler)
	}
	if s.cfg.Auth.Enabled {
		handler = auth.Middleware(s.verifier)(handler)
	}
	handler = requestContext(handler)
	if s.cfg.Server.Metrics {
		handler = metricsMiddleware(handler)
	}
	return handler
}

// ListenAndServe starts the HTTP server on the given address.
// The returned http.Server is stored so it can be shut down gracefully.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes configures all routes on the Chi router.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns ok while the process is serving requests.",
		Tags:        []string{"System"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		return &HealthOutput{Body: HealthBody{Status: "ok"}}, nil
	})

	// Register HEAD /health separately (Huma only does one method per registration).
	s.router.Head("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-ready",
		Method:      http.MethodGet,
		Path:        "/ready",
		Summary:     "Readiness check",
		Description: "Pings the metadata store and the active storage backend.",
		Tags:        []string{"System"},
		Security:    []map[string][]string{},
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		if err := s.svc.Ready(ctx); err != nil {
			logging.FromContext(ctx).Warn("Readiness check failed", "error", err)
			return nil, huma.Error503ServiceUnavailable("not ready", err)
		}
		return &HealthOutput{Body: HealthBody{Status: "ok"}}, nil
	})

	if s.cfg.Server.Metrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	handlers.NewBlobHandler(s.svc, s.cfg.Server.MaxBodyBytes).Register(s.api)
}
